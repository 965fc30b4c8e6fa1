package hauler_scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository/dao"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	core     *SchedulerCore
	queue    *JobQueue
	clock    *fakeClock
	logs     *observer.ObservedLogs
	logger   Logger
	lockPath string
}

func newTestEnv(t *testing.T, opts ...Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := dao.Open(dao.DriverSQLite, filepath.Join(dir, "scheduler.db")+"?_busy_timeout=5000&_journal_mode=WAL")
	require.NoError(t, err)
	require.NoError(t, dao.InitTables(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clk := newFakeClock()
	zc, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(zc))
	lockPath := filepath.Join(dir, "scheduler.lock")

	base := []Options{
		WithClock(clk.Now),
		WithLockPath(lockPath),
		WithWorkerID("test-worker"),
	}
	core := NewFromDB(db, logger, []QueueOption{
		WithQueueClock(clk.Now),
		WithClaimStrategy(_const.RetryPreemptStrategy, time.Millisecond, 20),
	}, append(base, opts...)...)

	return &testEnv{
		db:       db,
		core:     core,
		queue:    core.Queue(),
		clock:    clk,
		logs:     logs,
		logger:   logger,
		lockPath: lockPath,
	}
}

func (e *testEnv) addTenant(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, e.core.Tenants().Save(context.Background(),
		domain.Tenant{ID: id, PrincipalID: id * 100, Params: map[string]any{"region": "eu"}}, true))
}

// jobs 按类型与租户查询全部 job，按 ID 升序
func (e *testEnv) jobs(t *testing.T, jobType string, tenantID *int64) []dao.Jobs {
	t.Helper()
	q := e.db.Where("job_type = ?", jobType)
	if tenantID == nil {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	var rows []dao.Jobs
	require.NoError(t, q.Order("id").Find(&rows).Error)
	return rows
}

func (e *testEnv) countJobs(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&dao.Jobs{}).Count(&n).Error)
	return n
}

func pendingCount(rows []dao.Jobs) int {
	n := 0
	for _, r := range rows {
		if !r.Status.Terminal() {
			n++
		}
	}
	return n
}

func int64p(v int64) *int64 {
	return &v
}

// zapField 转换为 observer 过滤使用的字段
func zapField(f Field) zapcore.Field {
	return (&ZapLogger{}).toZapFields([]Field{f})[0]
}
