package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	scheduler "github.com/maferick/hauler_scheduler"
	"github.com/maferick/hauler_scheduler/config"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/executor"
	"github.com/maferick/hauler_scheduler/repository/dao"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

var configPath string

// app 每个子命令共享的依赖
type app struct {
	cfg    *config.Config
	zap    *zap.Logger
	logger scheduler.Logger
	db     *gorm.DB
	core   *scheduler.SchedulerCore
}

var rootCmd = &cobra.Command{
	Use:   "hauler-scheduler",
	Short: "Periodic task scheduler and job queue",
	Long: `hauler-scheduler decides on every invocation which background tasks are due,
enqueues at most one job per (tenant, task) and drains a bounded number of
queued jobs before exiting.

Examples:
  hauler-scheduler tick                  # one scheduler invocation (run from a timer)
  hauler-scheduler serve                 # keep running, tick on serve.cron
  hauler-scheduler job list --status failed
  hauler-scheduler job show 42`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(tickCmd, serveCmd, migrateCmd, jobCmd, taskCmd, tenantCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

// setup 读取配置、创建日志、连接数据库并组装调度器
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger := scheduler.NewZapLogger(zl)

	db, err := dao.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	opts := []scheduler.Options{
		scheduler.WithEnvIntervals(cfg.Scheduler.Intervals),
		scheduler.WithWorkerLimit(cfg.Scheduler.WorkerLimit),
		scheduler.WithStaleRuntime(cfg.Scheduler.StaleRuntime),
	}
	if cfg.Scheduler.LockPath != "" {
		opts = append(opts, scheduler.WithLockPath(cfg.Scheduler.LockPath))
	}
	if len(cfg.Scheduler.JobTypes) > 0 {
		opts = append(opts, scheduler.WithWorkerJobTypes(cfg.Scheduler.JobTypes))
	}
	queueOpts := []scheduler.QueueOption{
		scheduler.WithClaimStrategy(cfg.ClaimStrategy(), _const.DefaultClaimRetryInterval, cfg.Scheduler.ClaimRetries),
	}
	core := scheduler.NewFromDB(db, logger, queueOpts, opts...)

	if err = executor.Register(core, cfg.Executors); err != nil {
		return nil, errors.Wrap(err, "register executors")
	}

	return &app{cfg: cfg, zap: zl, logger: logger, db: db, core: core}, nil
}

func (a *app) close() {
	_ = a.zap.Sync()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newZap(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "log.level %q", cfg.Level)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
