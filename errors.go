package hauler_scheduler

import (
	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/repository/dao"
)

var (
	// ErrNoJob 没有可抢占的 job
	ErrNoJob = dao.ErrNoJob
	// ErrPreemptFailed 抢占被其他 worker 抢先
	ErrPreemptFailed = dao.ErrPreemptFailed
	// ErrJobNotFound 按 ID 查询不到 job
	ErrJobNotFound = dao.ErrJobNotFound

	// ErrWorkerUnhealthy 执行器用它包装错误，表示 worker 循环本身不应再继续抢占
	ErrWorkerUnhealthy  = errors.New("worker unhealthy")
	ErrExecutorExists   = errors.New("executor already registered")
	ErrExecutorNotFound = errors.New("no executor registered")
)
