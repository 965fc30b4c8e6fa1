package hauler_scheduler

import (
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
)

// 任务标识，同时作为 job_type 使用
const (
	TaskReferenceSync     = "reference.sync"
	TaskWebhookRequeue    = "webhook.requeue"
	TaskNotificationFlush = "notification.flush"
	TaskTokenRefresh      = "cron.token_refresh"
	TaskContractSync      = "cron.sync"
	TaskContractMatch     = "contract.match"
)

// DefaultTasks 返回内置任务列表，顺序即每次 tick 的评估顺序
func DefaultTasks() []domain.TaskDefinition {
	return []domain.TaskDefinition{
		{
			Key:         TaskReferenceSync,
			Name:        "Reference data sync",
			Scope:       _const.ScopeGlobal,
			Interval:    6 * time.Hour,
			Description: "Refresh shared reference data used by every tenant.",
			Path:        _const.ExecPathSync,
		},
		{
			Key:         TaskWebhookRequeue,
			Name:        "Webhook requeue",
			Scope:       _const.ScopeGlobal,
			Interval:    10 * time.Minute,
			Description: "Re-queue failed webhook deliveries that are due for another attempt.",
			Path:        _const.ExecPathEnqueue,
		},
		{
			Key:         TaskNotificationFlush,
			Name:        "Notification outbox flush",
			Scope:       _const.ScopeGlobal,
			Interval:    time.Minute,
			Description: "Flush pending notifications from the outbox.",
			Path:        _const.ExecPathEnqueue,
		},
		{
			Key:         TaskTokenRefresh,
			Name:        "Token refresh",
			Scope:       _const.ScopeTenant,
			Interval:    15 * time.Minute,
			Description: "Refresh the tenant's external API tokens before they expire.",
			Path:        _const.ExecPathSync,
		},
		{
			Key:              TaskContractSync,
			Name:             "Contract sync",
			Scope:            _const.ScopeTenant,
			Interval:         10 * time.Minute,
			Description:      "Pull remote contract data for the tenant.",
			Path:             _const.ExecPathSync,
			RuntimeSensitive: true,
		},
		{
			Key:         TaskContractMatch,
			Name:        "Contract matching",
			Scope:       _const.ScopeTenant,
			Interval:    5 * time.Minute,
			Description: "Match pulled contracts against open requests.",
			Path:        _const.ExecPathSync,
		},
	}
}

// SyncJobTypes 返回由本进程 worker 执行的任务标识
func SyncJobTypes(tasks []domain.TaskDefinition) []string {
	var res []string
	for _, t := range tasks {
		if t.Path == _const.ExecPathSync {
			res = append(res, t.Key)
		}
	}
	return res
}
