package _const

import "time"

const (
	// MinIntervalSeconds 任务间隔的下限
	MinIntervalSeconds = 60
	// DefaultWorkerLimit 单次调用最多执行的 job 数量
	DefaultWorkerLimit = 3
	// DefaultStaleRuntime 合同同步任务的最大运行时间，超过后被回收
	DefaultStaleRuntime = 45 * time.Minute
	// DefaultClaimRetries 抢占失败后的最大重试次数
	DefaultClaimRetries = 5
	// DefaultClaimRetryInterval 抢占重试间隔
	DefaultClaimRetryInterval = 50 * time.Millisecond
	// DefaultServeSpec serve 命令未配置 cron 表达式时的默认值
	DefaultServeSpec = "@every 1m"

	// MaxLogEntries 每个 job 在 payload 中保留的日志条数
	MaxLogEntries = 50
	// MaxLogMessageBytes 单条日志的最大字节数
	MaxLogMessageBytes = 500

	// StaleReasonTag 被超时回收的 job 的失败原因标记
	StaleReasonTag = "stale_runtime"
)
