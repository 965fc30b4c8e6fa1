package _const

// TaskScope 任务是全局执行一次还是每个租户各执行一次
type TaskScope string

const (
	ScopeGlobal TaskScope = "global"
	ScopeTenant TaskScope = "tenant"
)

// ExecPath 任务入队的 job 由谁消费
type ExecPath string

const (
	// ExecPathSync 由本进程的 worker 抢占并执行
	ExecPathSync ExecPath = "sync"
	// ExecPathEnqueue 只负责入队，由外部消费者处理
	ExecPathEnqueue ExecPath = "enqueue"
)
