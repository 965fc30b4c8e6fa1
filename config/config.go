package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/spf13/viper"
)

const EnvPrefix = "HAULER"

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Log       LogConfig       `mapstructure:"log"`
	// Executors job_type → 外部命令行，从 executors 表展开
	Executors map[string]string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SchedulerConfig struct {
	LockPath      string        `mapstructure:"lock_path"`
	WorkerLimit   int           `mapstructure:"worker_limit"`
	StaleRuntime  time.Duration `mapstructure:"stale_runtime"`
	JobTypes      []string      `mapstructure:"job_types"`
	ClaimStrategy string        `mapstructure:"claim_strategy"`
	ClaimRetries  int           `mapstructure:"claim_retries"`
	// Intervals 任务 → 秒，环境/配置层的全局间隔
	Intervals map[string]int `mapstructure:"-"`
}

type ServeConfig struct {
	Cron string `mapstructure:"cron"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "hauler.db?_busy_timeout=5000&_journal_mode=WAL")

	v.SetDefault("scheduler.lock_path", "")
	v.SetDefault("scheduler.worker_limit", _const.DefaultWorkerLimit)
	v.SetDefault("scheduler.stale_runtime", _const.DefaultStaleRuntime)
	v.SetDefault("scheduler.job_types", []string{})
	v.SetDefault("scheduler.claim_strategy", _const.RetryPreemptStrategy.String())
	v.SetDefault("scheduler.claim_retries", _const.DefaultClaimRetries)

	v.SetDefault("serve.cron", _const.DefaultServeSpec)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New 返回绑定了 HAULER_ 环境变量和默认值的 viper 实例，path 非空时读取该配置文件
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return v, nil
}

func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	intervals, err := parseIntervals(v.Get("scheduler.intervals"))
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.Intervals = intervals
	cfg.Executors = flatten(v.Get("executors"))

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Newf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn cannot be empty")
	}
	if c.Scheduler.WorkerLimit < 0 {
		return errors.Newf("scheduler.worker_limit must be >= 0, got %d", c.Scheduler.WorkerLimit)
	}
	if c.Scheduler.StaleRuntime <= 0 {
		return errors.Newf("scheduler.stale_runtime must be positive, got %s", c.Scheduler.StaleRuntime)
	}
	if c.Scheduler.ClaimRetries < 0 {
		return errors.Newf("scheduler.claim_retries must be >= 0, got %d", c.Scheduler.ClaimRetries)
	}
	if _, err := _const.ParseSchedule(c.Serve.Cron); err != nil {
		return errors.Wrapf(err, "serve.cron %q", c.Serve.Cron)
	}
	return nil
}

// ClaimStrategy 未知取值按 retry 处理
func (c *Config) ClaimStrategy() _const.PreemptStrategy {
	return _const.ParsePreemptStrategy(c.Scheduler.ClaimStrategy)
}

// parseIntervals 支持配置文件中的表，以及环境变量中的 "cron.sync=300,reference.sync=3600"
func parseIntervals(raw any) (map[string]int, error) {
	res := map[string]int{}
	if s, ok := raw.(string); ok {
		for _, pair := range strings.Split(s, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			key, val, found := strings.Cut(pair, "=")
			if !found {
				return nil, errors.Newf("scheduler.intervals: malformed entry %q", pair)
			}
			secs, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, errors.Wrapf(err, "scheduler.intervals: %s", key)
			}
			res[strings.TrimSpace(key)] = secs
		}
		return res, nil
	}

	for key, val := range flatten(raw) {
		secs, err := strconv.Atoi(val)
		if err != nil {
			return nil, errors.Wrapf(err, "scheduler.intervals: %s", key)
		}
		res[key] = secs
	}
	return res, nil
}

// flatten 任务标识中带点号，viper 会将其拆成嵌套表，这里还原为点号连接的键
func flatten(raw any) map[string]string {
	res := map[string]string{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch m := v.(type) {
		case map[string]any:
			for k, child := range m {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, child)
			}
		case nil:
		default:
			if prefix != "" {
				res[prefix] = strings.TrimSpace(toString(m))
			}
		}
	}
	walk("", raw)
	return res
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
