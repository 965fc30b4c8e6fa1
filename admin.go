package hauler_scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	// ErrTaskScope 写入的作用域不会被 tick 读取
	ErrTaskScope = errors.New("task does not read settings from this scope")
)

// TaskStatus 某个作用域下任务在 tick 中实际生效的开关与间隔
type TaskStatus struct {
	Task     domain.TaskDefinition
	Enabled  bool
	Interval time.Duration
}

func (s *SchedulerCore) LookupTask(key string) (domain.TaskDefinition, bool) {
	for _, t := range s.tasks {
		if t.Key == key {
			return t, true
		}
	}
	return domain.TaskDefinition{}, false
}

// TaskStatuses 按 tick 的读取方式计算任务状态。
// tenantID 为空时返回全局任务，否则返回该租户的租户任务
func (s *SchedulerCore) TaskStatuses(ctx context.Context, tenantID *int64) ([]TaskStatus, error) {
	resolver := NewIntervalResolver(s.tasks, s.envIntervals)
	global, err := s.settings.LoadIntervalOverrides(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "load global interval overrides")
	}
	resolver.SetGlobal(global)

	scope := _const.ScopeGlobal
	if tenantID != nil {
		scope = _const.ScopeTenant
		own, err := s.settings.LoadIntervalOverrides(ctx, tenantID)
		if err != nil {
			return nil, errors.Wrapf(err, "load interval overrides of tenant %d", *tenantID)
		}
		resolver.SetTenant(*tenantID, own)
	}

	flags, err := s.settings.LoadEnablement(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "load task enablement")
	}
	snap := NewEnablementSnapshot(flags)

	var res []TaskStatus
	for _, t := range s.tasks {
		if t.Scope != scope {
			continue
		}
		res = append(res, TaskStatus{
			Task:     t,
			Enabled:  snap.IsEnabled(t.Key),
			Interval: resolver.Resolve(t.Key, tenantID),
		})
	}
	return res, nil
}

// checkScope 开关只在任务自身的作用域读取；租户级间隔覆盖只对租户任务生效，
// 全局间隔覆盖对两类任务都生效
func (s *SchedulerCore) checkScope(taskKey string, tenantID *int64, interval bool) error {
	task, ok := s.LookupTask(taskKey)
	if !ok {
		return errors.Wrapf(ErrUnknownTask, "%q", taskKey)
	}
	switch {
	case task.Scope == _const.ScopeGlobal && tenantID != nil:
		return errors.Wrapf(ErrTaskScope, "%s is a global task, drop --tenant", taskKey)
	case task.Scope == _const.ScopeTenant && tenantID == nil && !interval:
		return errors.Wrapf(ErrTaskScope, "%s is a tenant task, pass --tenant", taskKey)
	}
	return nil
}

// SetTaskEnabled 写入任务开关，拒绝 tick 不会读取的作用域
func (s *SchedulerCore) SetTaskEnabled(ctx context.Context, taskKey string, tenantID *int64, enabled bool) error {
	if err := s.checkScope(taskKey, tenantID, false); err != nil {
		return err
	}
	return s.settings.SetEnablement(ctx, tenantID, taskKey, enabled)
}

// SetIntervalOverride 写入间隔覆盖，secs 为 0 时删除
func (s *SchedulerCore) SetIntervalOverride(ctx context.Context, taskKey string, tenantID *int64, secs int) error {
	if secs < 0 {
		return errors.Newf("interval must be >= 0, got %d", secs)
	}
	if err := s.checkScope(taskKey, tenantID, true); err != nil {
		return err
	}

	overrides, err := s.settings.LoadIntervalOverrides(ctx, tenantID)
	if err != nil {
		return err
	}
	if overrides == nil {
		overrides = map[string]int{}
	}
	if secs == 0 {
		delete(overrides, taskKey)
	} else {
		overrides[taskKey] = secs
	}
	return s.settings.SaveIntervalOverrides(ctx, tenantID, overrides)
}
