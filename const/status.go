package _const

// JobStatus job 的持久化状态
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"    // 等待 worker 抢占
	JobStatusRunning   JobStatus = "running"   // 已被某个 worker 抢占执行中
	JobStatusSucceeded JobStatus = "succeeded" // 执行成功
	JobStatusFailed    JobStatus = "failed"    // 执行失败，或被过期回收
	JobStatusDead      JobStatus = "dead"      // 人工终止
)

// PendingStatuses 处于这些状态时，同一 (tenant, job_type) 不会再次入队
var PendingStatuses = []JobStatus{JobStatusQueued, JobStatusRunning}

func (s JobStatus) String() string {
	return string(s)
}

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusDead:
		return true
	default:
		return false
	}
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusDead:
		return true
	default:
		return false
	}
}
