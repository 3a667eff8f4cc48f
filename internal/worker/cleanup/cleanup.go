// Package cleanup は期限切れの台帳データを削除するジョブを提供する。
// セッションと資格情報のうち、有効期限を過ぎたものを定期的に削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Pruner は基準時刻までに期限切れとなったレコードを削除する。
// repository.SessionRepository / CredentialRepository が満たす。
type Pruner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Recorder は削除件数を記録する。
type Recorder interface {
	RecordCleanup(kind string, deleted int64)
}

type target struct {
	kind   string
	pruner Pruner
}

// CleanupJob は期限切れセッションと資格情報の削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	targets  []target
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions, credentials Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		targets: []target{
			{kind: "sessions", pruner: sessions},
			{kind: "credentials", pruner: credentials},
		},
		logger: logger,
		now:    time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (j *CleanupJob) SetRecorder(r Recorder) {
	j.recorder = r
}

// Run は各対象の期限切れレコードを削除する。
// ある対象で失敗しても残りの対象は処理し、失敗をまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now()

	var errs []error
	var total int64
	for _, t := range j.targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		deleted, err := t.pruner.DeleteExpired(ctx, before)
		if err != nil {
			j.logger.Error("クリーンアップジョブの実行に失敗しました",
				slog.String("kind", t.kind),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%sのクリーンアップに失敗しました: %w", t.kind, err))
			continue
		}

		total += deleted
		if j.recorder != nil {
			j.recorder.RecordCleanup(t.kind, deleted)
		}
		j.logger.Info("期限切れレコードを削除しました",
			slog.String("kind", t.kind),
			slog.Int64("deleted_count", deleted),
		)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}
