// Package cleanup は診断用スナップショットの自動削除ジョブを提供する。
// 保持期間（デフォルト7日）を超過したブロック時のページスナップショットを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner は指定時刻より古いスナップショットを削除するインターフェース。
// *source.SnapshotStore を受け付けることができる。
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// CleanupJob は保持期間を超過したスナップショットの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	pruner        Pruner
	logger        *slog.Logger
	RetentionDays int // スナップショットの保持日数（デフォルト: 7）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は7日。
func NewCleanupJob(pruner Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		RetentionDays: 7,
		now:           time.Now,
	}
}

// Run は保持期間を超過したスナップショットを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)

	deletedCount, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Error("スナップショットクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("スナップショットクリーンアップの実行に失敗: %w", err)
	}

	duration := j.now().Sub(start)
	j.logger.Info("スナップショットクリーンアップジョブが完了しました",
		slog.Int("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	// 起動直後に1回実行（失敗はRun内でログ出力済み）
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
