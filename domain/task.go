package domain

import (
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
)

// TaskDefinition 一个可调度的后台任务
type TaskDefinition struct {
	Key         string
	Name        string
	Scope       _const.TaskScope
	Interval    time.Duration
	Description string
	Path        _const.ExecPath
	// RuntimeSensitive 入队前先回收超时的 running job
	RuntimeSensitive bool
}

// Tenant 配置了同步凭据且处于启用状态的租户
type Tenant struct {
	ID          int64
	PrincipalID int64
	// Params 合并到该租户每个 job 的参数中
	Params map[string]any
}
