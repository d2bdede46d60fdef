package linkedin

import "sync"

// userLocks はユーザー単位の排他ロックを管理する。
// 参照カウントが0になったエントリは削除するため、マップは待機中のユーザー数までしか育たない。
type userLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{entries: make(map[string]*lockEntry)}
}

// lock はユーザーのロックを取得し、解放関数を返す。
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	e, ok := l.entries[userID]
	if !ok {
		e = &lockEntry{}
		l.entries[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
