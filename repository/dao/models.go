package dao

import (
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
	"gorm.io/datatypes"
)

// Jobs 调度队列中的一行记录
type Jobs struct {
	// ID 在数据库中的ID信息
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// JobType 任务标识
	JobType string `gorm:"column:job_type;type:varchar(128);not null;index:idx_scheduler_jobs_lookup,priority:1" json:"job_type"`
	// TenantID 为空表示全局任务
	TenantID *int64 `gorm:"column:tenant_id;index:idx_scheduler_jobs_lookup,priority:2" json:"tenant_id"`
	// Status job的调度状态
	Status _const.JobStatus `gorm:"column:status;type:varchar(16);not null;index:idx_scheduler_jobs_lookup,priority:3" json:"status"`
	// Payload 参数、进度与日志
	Payload datatypes.JSON `gorm:"column:payload" json:"payload"`
	// Result 执行结果
	Result datatypes.JSON `gorm:"column:result" json:"result"`
	// LastError 失败原因
	LastError *string `gorm:"column:last_error;type:text" json:"last_error"`
	// FailureReason 强制失败的标签，例如 stale_runtime
	FailureReason string `gorm:"column:failure_reason;type:varchar(64)" json:"failure_reason"`
	// WorkerID 抢占者标识
	WorkerID string `gorm:"column:worker_id;type:varchar(255)" json:"worker_id"`
	// Epoch 乐观锁，等同于version，每次状态变更加一
	Epoch int `gorm:"column:epoch;not null" json:"epoch"`

	RunAt      *time.Time `gorm:"column:run_at" json:"run_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Jobs) TableName() string {
	return "scheduler_jobs"
}

// Settings 按作用域存储的 JSON 配置文档，TenantID 为空表示全局
type Settings struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  *int64         `gorm:"column:tenant_id;index:idx_settings_scope_key,priority:1"`
	Key       string         `gorm:"column:setting_key;type:varchar(128);not null;index:idx_settings_scope_key,priority:2"`
	Value     datatypes.JSON `gorm:"column:value"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

func (Settings) TableName() string {
	return "app_settings"
}

// TaskEnablement 任务开关，没有记录时视为开启
type TaskEnablement struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  *int64 `gorm:"column:tenant_id;index:idx_enablement_scope_key,priority:1"`
	TaskKey   string `gorm:"column:task_key;type:varchar(128);not null;index:idx_enablement_scope_key,priority:2"`
	IsEnabled bool   `gorm:"column:is_enabled;not null"`
}

func (TaskEnablement) TableName() string {
	return "scheduler_task_enablement"
}

// TenantSyncConfig 租户的同步配置，PrincipalID 为同步使用的身份
type TenantSyncConfig struct {
	TenantID    int64          `gorm:"column:tenant_id;primaryKey;autoIncrement:false"`
	PrincipalID int64          `gorm:"column:principal_id;not null"`
	Params      datatypes.JSON `gorm:"column:params"`
	Active      bool           `gorm:"column:active;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (TenantSyncConfig) TableName() string {
	return "tenant_sync_configs"
}
