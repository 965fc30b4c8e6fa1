package hauler_scheduler

import (
	"context"
	"encoding/json"

	"github.com/maferick/hauler_scheduler/domain"
)

// ProgressFunc 执行器汇报进度，message 为空时只更新进度
type ProgressFunc func(progress domain.Progress, message string)

// ExecutorFunc 执行一个已被抢占的 job，返回可选的结构化结果
type ExecutorFunc func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error)

// Executor 执行器抽象
type Executor interface {
	// Name Executor名称
	Name() string
	// Execute 执行方法
	Execute(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error)
}

// RegisterExecutor 将 Executor 以其名称注册为 job_type 的处理方法
func RegisterExecutor(s Scheduler, e Executor) error {
	return s.Register(e.Name(), e.Execute)
}
