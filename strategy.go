package hauler_scheduler

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/repository/dao"
)

// ErrClaimRetriesExhausted 抢占重试次数用尽
var ErrClaimRetriesExhausted = errors.New("claim retries exhausted")

// RetryStrategy 抢占因版本冲突失败后的等待策略，由 dao 层在每次冲突后调用
type RetryStrategy = dao.RetryStrategy

// FixedScheduleStrategy 固定间隔、有限次数的重试。带状态，每次 ClaimNext 新建一个
type FixedScheduleStrategy struct {
	interval time.Duration
	budget   int
	used     int
}

func NewFixedScheduleStrategy(interval time.Duration, maxRetries int) *FixedScheduleStrategy {
	if interval < 0 {
		interval = 0
	}
	return &FixedScheduleStrategy{interval: interval, budget: maxRetries}
}

// Next 返回下一次重试前的等待时间；预算用尽后返回 ErrClaimRetriesExhausted
func (s *FixedScheduleStrategy) Next() (time.Duration, error) {
	if s.used >= s.budget {
		return 0, errors.WithDetailf(ErrClaimRetriesExhausted, "after %d retries", s.used)
	}
	s.used++
	return s.interval, nil
}

// Remaining 剩余可重试次数
func (s *FixedScheduleStrategy) Remaining() int {
	return s.budget - s.used
}
