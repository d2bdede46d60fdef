package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockPurger は SessionPurger インターフェースに対するモック実装
type mockPurger struct {
	mu       sync.Mutex
	calls    int
	lastNow  time.Time
	deleted  int64
	err      error
	calledCh chan struct{}
}

func (m *mockPurger) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	m.calls++
	m.lastNow = now
	m.mu.Unlock()
	if m.calledCh != nil {
		select {
		case m.calledCh <- struct{}{}:
		default:
		}
	}
	return m.deleted, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	counts []int64
}

func (m *mockRecorder) RecordSessionsPurged(count int64) {
	m.counts = append(m.counts, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogValue はJSONログの各行から指定キーの値を探す。
func findLogValue(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestCleanupJob_Run_PassesCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{deleted: 3}
	job := NewCleanupJob(purger, nil, newTestLogger(&buf))

	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if purger.callCount() != 1 {
		t.Fatalf("DeleteExpired 呼び出し回数 = %d, want 1", purger.callCount())
	}
	if !purger.lastNow.Equal(fixed) {
		t.Errorf("DeleteExpired に渡された時刻 = %v, want %v", purger.lastNow, fixed)
	}
}

func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewCleanupJob(&mockPurger{deleted: 42}, recorder, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if len(recorder.counts) != 1 || recorder.counts[0] != 42 {
		t.Errorf("記録された削除件数 = %v, want [42]", recorder.counts)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	tests := []struct {
		name    string
		deleted int64
	}{
		{"削除あり", 42},
		{"0件削除でもログを出す", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			job := NewCleanupJob(&mockPurger{deleted: tt.deleted}, nil, newTestLogger(&buf))

			_ = job.Run(context.Background())

			count, ok := findLogValue(&buf, "deleted_count")
			if !ok {
				t.Fatalf("ログに deleted_count が記録されていない。ログ出力: %s", buf.String())
			}
			if count != float64(tt.deleted) {
				t.Errorf("deleted_count = %v, want %d", count, tt.deleted)
			}
		})
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewCleanupJob(&mockPurger{err: sql.ErrConnDone}, recorder, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}

	// エラー時はメトリクスを記録しない
	if len(recorder.counts) != 0 {
		t.Errorf("エラー時に削除件数が記録された: %v", recorder.counts)
	}

	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_RecordsPartialPurgeOnError(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewCleanupJob(&mockPurger{deleted: 1000, err: context.Canceled}, recorder, newTestLogger(&buf))

	if err := job.Run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(recorder.counts) != 1 || recorder.counts[0] != 1000 {
		t.Errorf("記録された削除件数 = %v, want [1000]", recorder.counts)
	}
	if !strings.Contains(buf.String(), `"deleted_count":1000`) {
		t.Errorf("エラーログに削除済み件数がない: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, nil, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{calledCh: make(chan struct{}, 1)}
	job := NewCleanupJob(purger, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-purger.calledCh:
	case <-time.After(2 * time.Second):
		t.Fatal("起動直後に Run が実行されなかった")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に Start が終了しなかった")
	}

	if purger.callCount() != 1 {
		t.Errorf("DeleteExpired 呼び出し回数 = %d, want 1", purger.callCount())
	}
}

func TestCleanupJob_Start_RepeatsOnInterval(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewCleanupJob(purger, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for purger.callCount() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("間隔実行が行われなかった: calls=%d", purger.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
