package _const

import (
	"github.com/robfig/cron/v3"
)

// Parser 定时时间解析器，serve 模式使用它解析调度周期
var Parser = cron.NewParser(cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule 校验并解析 cron 表达式，例如 "*/1 * * * *" 或 "@every 1m"
func ParseSchedule(spec string) (cron.Schedule, error) {
	return Parser.Parse(spec)
}
