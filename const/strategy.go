package _const

// PreemptStrategy 抢占策略
type PreemptStrategy int

const (
	TryPreemptStrategy   PreemptStrategy = 0x00000001 // 每次只尝试抢占一次，抢占失败则留给下一次调用
	RetryPreemptStrategy PreemptStrategy = 0x00000002 // 抢占失败后按固定间隔进行有限次的重试
)

func (s PreemptStrategy) String() string {
	switch s {
	case TryPreemptStrategy:
		return "try"
	case RetryPreemptStrategy:
		return "retry"
	default:
		return "unknown"
	}
}

// ParsePreemptStrategy 解析配置值，未知取值按 retry 处理
func ParsePreemptStrategy(v string) PreemptStrategy {
	if v == "try" {
		return TryPreemptStrategy
	}
	return RetryPreemptStrategy
}
