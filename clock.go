package hauler_scheduler

import (
	"context"
	"time"

	"github.com/maferick/hauler_scheduler/domain"
)

// DueChecker 判断任务距离上一次执行是否已经达到间隔
type DueChecker interface {
	Due(ctx context.Context, taskKey string, tenantID *int64, interval time.Duration, now time.Time) (bool, error)
}

// JobHistoryClock 全局任务以队列中最近一条 job 的时间线作为上一次执行时间
type JobHistoryClock struct {
	Queue *JobQueue
}

func (c JobHistoryClock) Due(ctx context.Context, taskKey string, tenantID *int64,
	interval time.Duration, now time.Time) (bool, error) {
	last, err := c.Queue.Latest(ctx, taskKey, tenantID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(last.LastActivity()) >= interval, nil
}

// StateBlobClock 租户任务以租户调度状态文档中的上一次尝试时间为准
type StateBlobClock struct {
	State *domain.TenantSchedulerState
}

func (c StateBlobClock) Due(_ context.Context, taskKey string, _ *int64,
	interval time.Duration, now time.Time) (bool, error) {
	last, ok := c.State.Get(taskKey)
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= interval, nil
}
