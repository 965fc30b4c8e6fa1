package hauler_scheduler

// EnablementSnapshot 某个作用域在本次 tick 开始时的任务开关
type EnablementSnapshot struct {
	flags map[string]bool
}

func NewEnablementSnapshot(flags map[string]bool) EnablementSnapshot {
	return EnablementSnapshot{flags: flags}
}

// IsEnabled 没有记录的任务默认开启
func (s EnablementSnapshot) IsEnabled(taskKey string) bool {
	enabled, ok := s.flags[taskKey]
	return !ok || enabled
}
