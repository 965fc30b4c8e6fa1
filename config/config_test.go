package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, _const.DefaultWorkerLimit, cfg.Scheduler.WorkerLimit)
	assert.Equal(t, 45*time.Minute, cfg.Scheduler.StaleRuntime)
	assert.Equal(t, _const.RetryPreemptStrategy, cfg.ClaimStrategy())
	assert.Equal(t, "@every 1m", cfg.Serve.Cron)
	assert.Empty(t, cfg.Scheduler.Intervals)
	assert.Empty(t, cfg.Executors)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HAULER_SCHEDULER_WORKER_LIMIT", "7")
	t.Setenv("HAULER_SCHEDULER_STALE_RUNTIME", "30m")
	t.Setenv("HAULER_SCHEDULER_CLAIM_STRATEGY", "try")
	t.Setenv("HAULER_SCHEDULER_INTERVALS", "cron.sync=300, reference.sync=3600")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scheduler.WorkerLimit)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.StaleRuntime)
	assert.Equal(t, _const.TryPreemptStrategy, cfg.ClaimStrategy())
	assert.Equal(t, map[string]int{"cron.sync": 300, "reference.sync": 3600}, cfg.Scheduler.Intervals)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hauler.yaml")
	content := `
database:
  driver: postgres
  dsn: host=localhost dbname=hauler
scheduler:
  worker_limit: 5
  job_types: [cron.sync]
  intervals:
    cron:
      sync: 120
    notification.flush: 90
executors:
  cron.sync: ./bin/sync --tenant-from-stdin
serve:
  cron: "*/5 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Scheduler.WorkerLimit)
	assert.Equal(t, []string{"cron.sync"}, cfg.Scheduler.JobTypes)
	assert.Equal(t, map[string]int{"cron.sync": 120, "notification.flush": 90}, cfg.Scheduler.Intervals)
	assert.Equal(t, map[string]string{"cron.sync": "./bin/sync --tenant-from-stdin"}, cfg.Executors)
	assert.Equal(t, "*/5 * * * *", cfg.Serve.Cron)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseIntervals_Malformed(t *testing.T) {
	_, err := parseIntervals("cron.sync")
	assert.Error(t, err)
	_, err = parseIntervals("cron.sync=soon")
	assert.Error(t, err)
	_, err = parseIntervals(map[string]any{"cron": map[string]any{"sync": "soon"}})
	assert.Error(t, err)

	res, err := parseIntervals(nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: "sqlite", DSN: "x.db"},
			Scheduler: SchedulerConfig{WorkerLimit: 3, StaleRuntime: time.Minute},
			Serve:     ServeConfig{Cron: "@every 1m"},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "dsn", mutate: func(c *Config) { c.Database.DSN = "" }, wantErr: "database.dsn"},
		{name: "worker limit", mutate: func(c *Config) { c.Scheduler.WorkerLimit = -1 }, wantErr: "worker_limit"},
		{name: "stale runtime", mutate: func(c *Config) { c.Scheduler.StaleRuntime = 0 }, wantErr: "stale_runtime"},
		{name: "claim retries", mutate: func(c *Config) { c.Scheduler.ClaimRetries = -2 }, wantErr: "claim_retries"},
		{name: "cron", mutate: func(c *Config) { c.Serve.Cron = "every minute" }, wantErr: "serve.cron"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
