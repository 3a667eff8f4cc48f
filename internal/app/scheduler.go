package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// jobRunner はスケジューラから実行されるジョブ。
type jobRunner interface {
	Run(ctx context.Context) error
}

// newCleanupScheduler はscheduleに従ってjobを実行するcronスケジューラを生成する。
// scheduleは5フィールド形式または "@daily" などの記述子。
// 前回の実行が終わっていない場合、その回はスキップする。
func newCleanupScheduler(ctx context.Context, schedule string, job jobRunner) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := job.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	return c, nil
}
