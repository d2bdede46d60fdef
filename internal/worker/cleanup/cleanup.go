// Package cleanup は失効セッションリストの自動削除ジョブを提供する。
// 有効期限を過ぎた失効エントリはトークン自体が期限切れで検証に失敗するため、
// 保持する必要がない。定期実行で失効リストの肥大化を防ぐ。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れの失効エントリを削除するインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeRecorder は削除件数の記録先。metrics.Collectorが実装する。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// CleanupJob は期限切れ失効セッションの削除ジョブ。
// 冪等な削除処理であり、何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions SessionPurger
	recorder PurgeRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewCleanupJob(sessions SessionPurger, recorder PurgeRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は有効期限を過ぎた失効エントリを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, j.now())
	// バッチ削除の途中で失敗しても、消えた分は記録する
	if j.recorder != nil && deletedCount > 0 {
		j.recorder.RecordSessionsPurged(deletedCount)
	}
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.Int64("deleted_count", deletedCount),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降interval間隔でRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログのみで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	// 起動直後に1回実行（エラーはRun内でログ済み）
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup stopped")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
