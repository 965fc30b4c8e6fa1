package hauler_scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
)

type outcome int

const (
	outcomeQueued outcome = iota
	outcomePending
	outcomeDisabled
	outcomeNotDue
)

func (r *TickReport) record(o outcome) {
	switch o {
	case outcomeQueued:
		r.Queued++
	case outcomePending:
		r.Pending++
	case outcomeDisabled:
		r.Disabled++
	case outcomeNotDue:
		r.NotDue++
	}
}

// tickState 一次 tick 内共享的快照
type tickState struct {
	now       time.Time
	resolver  *IntervalResolver
	overrides *snapshotCache[map[string]int]
	flags     *snapshotCache[EnablementSnapshot]
	report    TickReport
}

// Tick 评估全部全局任务与各租户任务，将到期且没有挂起 job 的任务入队。
// 单个任务的错误只记录并计数，不会中断其余任务。
func (s *SchedulerCore) Tick(ctx context.Context) TickReport {
	ts := &tickState{
		now:       s.clock(),
		resolver:  NewIntervalResolver(s.tasks, s.envIntervals),
		overrides: newSnapshotCache[map[string]int](),
		flags:     newSnapshotCache[EnablementSnapshot](),
	}
	ts.resolver.SetGlobal(s.loadOverrides(ctx, ts, nil))

	globalFlags := s.loadEnablement(ctx, ts, nil)
	for _, task := range s.tasks {
		if task.Scope != _const.ScopeGlobal {
			continue
		}
		log := s.logger.With(TenantField(nil), TaskField(task.Key))
		o, err := guard(func() (outcome, error) {
			return s.evalGlobalTask(ctx, ts, task, globalFlags, log)
		})
		if err != nil {
			ts.report.Errors++
			log.Error("task evaluation failed", ErrField(err))
			continue
		}
		ts.report.record(o)
	}

	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		ts.report.Errors++
		s.logger.Error("failed to list tenants, skipping tenant tasks", ErrField(err))
		return ts.report
	}
	for _, tenant := range tenants {
		_, err := guard(func() (struct{}, error) {
			s.tenantPass(ctx, ts, tenant)
			return struct{}{}, nil
		})
		if err != nil {
			ts.report.Errors++
			s.logger.Error("tenant evaluation failed", TenantField(&tenant.ID), ErrField(err))
		}
	}

	return ts.report
}

func (s *SchedulerCore) evalGlobalTask(ctx context.Context, ts *tickState, task domain.TaskDefinition,
	flags EnablementSnapshot, log Logger) (outcome, error) {
	if !flags.IsEnabled(task.Key) {
		log.Info("task disabled, skipping")
		return outcomeDisabled, nil
	}

	interval := ts.resolver.Resolve(task.Key, nil)
	pending, err := s.queue.HasPending(ctx, task.Key, nil)
	if err != nil {
		return 0, err
	}
	if pending {
		log.Info("task already pending, skipping")
		s.warnIfUnclaimed(ctx, ts, task.Key, nil, interval, log)
		return outcomePending, nil
	}

	due, err := JobHistoryClock{Queue: s.queue}.Due(ctx, task.Key, nil, interval, ts.now)
	if err != nil {
		return 0, err
	}
	if !due {
		log.Debug("task not due", Field{Key: "interval", Val: interval})
		return outcomeNotDue, nil
	}

	id, err := s.queue.Enqueue(ctx, task.Key, nil, map[string]any{"task": task.Key})
	if err != nil {
		return 0, err
	}
	log.Info("task queued", JobField(id), Field{Key: "interval", Val: interval})
	return outcomeQueued, nil
}

func (s *SchedulerCore) tenantPass(ctx context.Context, ts *tickState, tenant domain.Tenant) {
	tenantID := tenant.ID
	tlog := s.logger.With(TenantField(&tenantID))

	state, err := s.settings.LoadState(ctx, tenantID)
	if err != nil {
		ts.report.Errors++
		tlog.Error("failed to load scheduler state, skipping tenant", ErrField(err))
		return
	}
	flags := s.loadEnablement(ctx, ts, &tenantID)
	ts.resolver.SetTenant(tenantID, s.loadOverrides(ctx, ts, &tenantID))

	for _, task := range s.tasks {
		if task.Scope != _const.ScopeTenant {
			continue
		}
		log := tlog.With(TaskField(task.Key))
		o, err := guard(func() (outcome, error) {
			return s.evalTenantTask(ctx, ts, tenant, task, flags, state, log)
		})
		if err != nil {
			ts.report.Errors++
			log.Error("task evaluation failed", ErrField(err))
			continue
		}
		ts.report.record(o)
	}

	if !state.Dirty() {
		return
	}
	if err := s.settings.SaveState(ctx, tenantID, state); err != nil {
		ts.report.Errors++
		tlog.Error("failed to save scheduler state", ErrField(err))
	}
}

func (s *SchedulerCore) evalTenantTask(ctx context.Context, ts *tickState, tenant domain.Tenant,
	task domain.TaskDefinition, flags EnablementSnapshot, state *domain.TenantSchedulerState, log Logger) (outcome, error) {
	tenantID := tenant.ID
	if !flags.IsEnabled(task.Key) {
		log.Info("task disabled, skipping")
		return outcomeDisabled, nil
	}

	interval := ts.resolver.Resolve(task.Key, &tenantID)
	due, err := StateBlobClock{State: state}.Due(ctx, task.Key, &tenantID, interval, ts.now)
	if err != nil {
		return 0, err
	}
	if !due {
		log.Debug("task not due", Field{Key: "interval", Val: interval})
		return outcomeNotDue, nil
	}

	if task.RuntimeSensitive {
		msg := fmt.Sprintf("%s job exceeded max runtime of %ds and was reclaimed by the scheduler",
			task.Key, int(s.staleRuntime/time.Second))
		reclaimed, err := s.queue.ExpireStaleRunning(ctx, task.Key, &tenantID, s.staleRuntime, msg, _const.StaleReasonTag)
		if err != nil {
			return 0, err
		}
		if reclaimed > 0 {
			ts.report.Reclaimed++
			log.Warn("stale job reclaimed", JobField(reclaimed),
				Field{Key: "max_runtime", Val: s.staleRuntime})
		}
	}

	pending, err := s.queue.HasPending(ctx, task.Key, &tenantID)
	if err != nil {
		return 0, err
	}
	if pending {
		state.Touch(task.Key, ts.now)
		log.Info("task already pending, skipping")
		s.warnIfUnclaimed(ctx, ts, task.Key, &tenantID, interval, log)
		return outcomePending, nil
	}

	id, err := s.queue.Enqueue(ctx, task.Key, &tenantID, tenantParams(tenant, task))
	if err != nil {
		return 0, err
	}
	state.Touch(task.Key, ts.now)
	log.Info("task queued", JobField(id), Field{Key: "interval", Val: interval})
	return outcomeQueued, nil
}

// warnIfUnclaimed 本进程的 worker 不抢占该类型，且挂起的 job 已排队超过一个间隔时告警，
// 通常说明外部消费者没有运行或 scheduler.job_types 漏配
func (s *SchedulerCore) warnIfUnclaimed(ctx context.Context, ts *tickState, jobType string,
	tenantID *int64, interval time.Duration, log Logger) {
	if s.claims(jobType) {
		return
	}
	job, err := s.queue.Latest(ctx, jobType, tenantID)
	if err != nil || job == nil || job.Status != _const.JobStatusQueued {
		return
	}
	if age := ts.now.Sub(job.CreatedAt); age >= interval {
		log.Warn("queued job has no consumer in this process and is older than its interval",
			JobField(job.ID), Field{Key: "age", Val: age}, Field{Key: "interval", Val: interval})
	}
}

func (s *SchedulerCore) claims(jobType string) bool {
	for _, t := range s.workerJobTypes {
		if t == jobType {
			return true
		}
	}
	return false
}

// tenantParams 租户配置参数加上固定字段，固定字段优先
func tenantParams(tenant domain.Tenant, task domain.TaskDefinition) map[string]any {
	params := make(map[string]any, len(tenant.Params)+3)
	for k, v := range tenant.Params {
		params[k] = v
	}
	params["tenant_id"] = tenant.ID
	params["principal_id"] = tenant.PrincipalID
	params["task"] = task.Key
	return params
}

func (s *SchedulerCore) loadEnablement(ctx context.Context, ts *tickState, tenantID *int64) EnablementSnapshot {
	snap, err := ts.flags.load(scopeKey(tenantID), func() (EnablementSnapshot, error) {
		flags, err := s.settings.LoadEnablement(ctx, tenantID)
		return NewEnablementSnapshot(flags), err
	})
	if err != nil {
		// 读取失败时按默认开启处理
		s.logger.Warn("failed to load task enablement, treating all tasks as enabled",
			TenantField(tenantID), ErrField(err))
		return NewEnablementSnapshot(nil)
	}
	return snap
}

func (s *SchedulerCore) loadOverrides(ctx context.Context, ts *tickState, tenantID *int64) map[string]int {
	overrides, err := ts.overrides.load(scopeKey(tenantID), func() (map[string]int, error) {
		return s.settings.LoadIntervalOverrides(ctx, tenantID)
	})
	if err != nil {
		s.logger.Warn("failed to load interval overrides, using defaults",
			TenantField(tenantID), ErrField(err))
		return nil
	}
	return overrides
}

// guard 将评估过程中的 panic 转换为错误
func guard[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic during evaluation: %v", r)
		}
	}()
	return fn()
}
