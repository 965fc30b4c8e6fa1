package hauler_scheduler

import (
	"context"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// Serve 在当前进程内按 spec 周期性调用 Scheduler，直到 ctx 结束。
// 上一次调用尚未结束时本次触发直接跳过；跨进程的互斥仍由锁文件保证。
func (s *SchedulerCore) Serve(ctx context.Context, spec string) error {
	if _, err := _const.ParseSchedule(spec); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", spec)
	}

	limiter := semaphore.NewWeighted(1)
	c := cron.New(cron.WithParser(_const.Parser), cron.WithLocation(s.clock().Location()))
	_, err := c.AddFunc(spec, func() {
		if !limiter.TryAcquire(1) {
			s.logger.Warn("previous run still in progress, skipping", Field{Key: "schedule", Val: spec})
			return
		}
		defer limiter.Release(1)

		if _, err := s.Scheduler(ctx); err != nil {
			s.logger.Error("scheduler run failed", ErrField(err))
		}
	})
	if err != nil {
		return errors.Wrapf(err, "register schedule %q", spec)
	}

	s.logger.Info("serving", Field{Key: "schedule", Val: spec})
	c.Start()
	<-ctx.Done()
	// 等待正在执行的调用结束
	<-c.Stop().Done()
	s.logger.Info("stopped")
	return nil
}
