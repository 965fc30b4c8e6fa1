package hauler_scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/lockfile"
	"github.com/maferick/hauler_scheduler/repository"
)

type Scheduler interface {
	// Scheduler 执行一次调度：加锁、评估到期任务并入队、同步执行有限数量的 job
	Scheduler(ctx context.Context) (TickReport, error)
	// Register 注册执行器方法
	Register(jobType string, executorFunc ExecutorFunc) error
}

// TickReport 一次调用的统计结果
type TickReport struct {
	// Locked 为 true 表示已有调度在运行，本次未做任何事
	Locked    bool
	Queued    int
	Pending   int
	Disabled  int
	NotDue    int
	Reclaimed int
	Errors    int
	Processed int
	Duration  time.Duration
}

type Options func(core *SchedulerCore)

func WithTasks(tasks []domain.TaskDefinition) Options {
	return func(c *SchedulerCore) {
		c.tasks = tasks
	}
}

// WithEnvIntervals 环境变量/配置文件中的全局间隔（秒），位于管理端覆盖与内置默认值之间
func WithEnvIntervals(intervals map[string]int) Options {
	return func(c *SchedulerCore) {
		c.envIntervals = intervals
	}
}

// WithWorkerLimit 设置单次调用最多执行的 job 数量
func WithWorkerLimit(limit int) Options {
	return func(c *SchedulerCore) {
		c.workerLimit = limit
	}
}

// WithWorkerJobTypes 设置 worker 抢占的 job 类型，按顺序依次尝试
func WithWorkerJobTypes(jobTypes []string) Options {
	return func(c *SchedulerCore) {
		c.workerJobTypes = jobTypes
	}
}

func WithStaleRuntime(d time.Duration) Options {
	return func(c *SchedulerCore) {
		c.staleRuntime = d
	}
}

func WithLockPath(path string) Options {
	return func(c *SchedulerCore) {
		c.lockPath = path
	}
}

func WithWorkerID(id string) Options {
	return func(c *SchedulerCore) {
		c.workerID = id
	}
}

func WithClock(now func() time.Time) Options {
	return func(c *SchedulerCore) {
		c.now = now
	}
}

type SchedulerCore struct {
	logger Logger
	// 本地的执行器注册中心
	execCenter map[string]ExecutorFunc
	mu         sync.RWMutex

	queue    *JobQueue
	settings repository.SettingsRepository
	tenants  repository.TenantRepository

	tasks          []domain.TaskDefinition
	envIntervals   map[string]int
	workerLimit    int
	workerJobTypes []string
	staleRuntime   time.Duration
	lockPath       string
	workerID       string
	now            func() time.Time
}

func NewSchedulerCore(
	queue *JobQueue,
	settings repository.SettingsRepository,
	tenants repository.TenantRepository,
	logger Logger,
	opts ...Options) *SchedulerCore {
	s := &SchedulerCore{
		logger:       logger,
		execCenter:   map[string]ExecutorFunc{},
		queue:        queue,
		settings:     settings,
		tenants:      tenants,
		tasks:        DefaultTasks(),
		workerLimit:  _const.DefaultWorkerLimit,
		staleRuntime: _const.DefaultStaleRuntime,
		lockPath:     filepath.Join(os.TempDir(), "hauler-scheduler.lock"),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.workerJobTypes == nil {
		s.workerJobTypes = SyncJobTypes(s.tasks)
	}
	if s.workerID == "" {
		s.workerID = DefaultWorkerID()
	}

	return s
}

func (s *SchedulerCore) Register(jobType string, executorFunc ExecutorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.execCenter[jobType]; ok {
		return errors.Wrapf(ErrExecutorExists, "job type %s", jobType)
	}
	s.execCenter[jobType] = executorFunc
	return nil
}

func (s *SchedulerCore) executor(jobType string) (ExecutorFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.execCenter[jobType]
	return fn, ok
}

func (s *SchedulerCore) clock() time.Time {
	return s.now().UTC()
}

// Scheduler 单次调用入口。锁被占用时记录日志并正常返回，重叠调用不产生任何副作用
func (s *SchedulerCore) Scheduler(ctx context.Context) (TickReport, error) {
	started := time.Now()

	lock, err := lockfile.Acquire(s.lockPath)
	if errors.Is(err, lockfile.ErrLocked) {
		s.logger.Info("scheduler already running, skipping this invocation",
			Field{Key: "lock", Val: s.lockPath},
			Field{Key: "holder", Val: lockfile.Holder(s.lockPath)})
		return TickReport{Locked: true}, nil
	}
	if err != nil {
		return TickReport{}, errors.Wrap(err, "acquire scheduler lock")
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn("failed to release scheduler lock", ErrField(err))
		}
	}()

	report := s.Tick(ctx)

	processed, err := s.Work(ctx)
	report.Processed = processed
	report.Duration = time.Since(started)
	if err != nil {
		report.Errors++
		s.logger.Error("worker loop stopped early", ErrField(err),
			Field{Key: "processed", Val: processed})
	}

	s.logger.Info("scheduler run finished",
		Field{Key: "queued", Val: report.Queued},
		Field{Key: "pending", Val: report.Pending},
		Field{Key: "reclaimed", Val: report.Reclaimed},
		Field{Key: "errors", Val: report.Errors},
		Field{Key: "processed", Val: report.Processed},
		Field{Key: "duration", Val: report.Duration})
	return report, nil
}
