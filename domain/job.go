package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	_const "github.com/maferick/hauler_scheduler/const"
)

// Job 一次调度产生的工作单元
type Job struct {
	// ID 数据库自增 ID
	ID int64
	// JobType 任务标识，例如 cron.sync
	JobType string
	// TenantID 为空表示全局任务
	TenantID *int64
	// Status 当前状态
	Status _const.JobStatus
	// Payload 任务参数、进度与日志
	Payload Payload
	// Result 成功时由执行器返回
	Result json.RawMessage
	// LastError 失败原因
	LastError string
	// FailureReason 区分普通失败与过期回收
	FailureReason string
	// WorkerID 抢占该 job 的 worker 标识
	WorkerID string
	// Epoch 乐观锁版本号
	Epoch int

	RunAt      *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payload 存储在 payload 列中的 JSON 文档
type Payload struct {
	Params   json.RawMessage `json:"params,omitempty"`
	Progress *Progress       `json:"progress,omitempty"`
	Log      []LogEntry      `json:"log,omitempty"`
}

// Progress 每次更新整体替换，不做累加
type Progress struct {
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Label     string    `json:"label,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percentage 返回 0-100，Total 未知时返回 0
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Merge 写入进度并追加可选的日志，日志只保留最新的 MaxLogEntries 条
func (p *Payload) Merge(progress Progress, message string, now time.Time) {
	progress.UpdatedAt = now
	p.Progress = &progress
	if message == "" {
		return
	}
	message = truncateMessage(message, _const.MaxLogMessageBytes)
	p.Log = append(p.Log, LogEntry{At: now, Message: message})
	if over := len(p.Log) - _const.MaxLogEntries; over > 0 {
		p.Log = append([]LogEntry(nil), p.Log[over:]...)
	}
}

// LastActivity 依次取 finished、started、created 中最新存在的时间
func (j Job) LastActivity() time.Time {
	switch {
	case j.FinishedAt != nil:
		return *j.FinishedAt
	case j.StartedAt != nil:
		return *j.StartedAt
	default:
		return j.CreatedAt
	}
}

// Global 是否为全局 job
func (j Job) Global() bool {
	return j.TenantID == nil
}

// truncateMessage 按字节截断，回退到完整的 UTF-8 字符边界
func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
