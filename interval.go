package hauler_scheduler

import (
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
)

// IntervalResolver 计算任务的最小重复执行间隔
// 优先级：租户覆盖 → 全局覆盖（管理端配置，其次环境变量/配置文件）→ 内置默认值，最终不低于 60 秒
type IntervalResolver struct {
	defaults map[string]int
	env      map[string]int
	global   map[string]int
	tenants  map[int64]map[string]int
}

func NewIntervalResolver(tasks []domain.TaskDefinition, env map[string]int) *IntervalResolver {
	defaults := make(map[string]int, len(tasks))
	for _, t := range tasks {
		defaults[t.Key] = int(t.Interval / time.Second)
	}
	return &IntervalResolver{
		defaults: defaults,
		env:      env,
		global:   map[string]int{},
		tenants:  map[int64]map[string]int{},
	}
}

// SetGlobal 设置管理端配置的全局覆盖
func (r *IntervalResolver) SetGlobal(overrides map[string]int) {
	if overrides == nil {
		overrides = map[string]int{}
	}
	r.global = overrides
}

func (r *IntervalResolver) SetTenant(tenantID int64, overrides map[string]int) {
	r.tenants[tenantID] = overrides
}

func (r *IntervalResolver) Resolve(taskKey string, tenantID *int64) time.Duration {
	return time.Duration(clampInterval(r.resolveSeconds(taskKey, tenantID))) * time.Second
}

func (r *IntervalResolver) resolveSeconds(taskKey string, tenantID *int64) int {
	if tenantID != nil {
		if v, ok := r.tenants[*tenantID][taskKey]; ok && v > 0 {
			return v
		}
	}
	if v, ok := r.global[taskKey]; ok && v > 0 {
		return v
	}
	if v, ok := r.env[taskKey]; ok && v > 0 {
		return v
	}
	return r.defaults[taskKey]
}

func clampInterval(secs int) int {
	if secs < _const.MinIntervalSeconds {
		return _const.MinIntervalSeconds
	}
	return secs
}
