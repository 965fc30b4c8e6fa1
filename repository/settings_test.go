package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository/dao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dao.Open(dao.DriverSQLite, filepath.Join(t.TempDir(), "repo.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	require.NoError(t, dao.InitTables(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestDecodeIntervalOverrides(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want map[string]int
	}{
		{name: "empty", raw: "", want: map[string]int{}},
		{name: "malformed document", raw: "{not json", want: map[string]int{}},
		{name: "not an object", raw: `[1,2]`, want: map[string]int{}},
		{
			name: "bad entries dropped",
			raw:  `{"cron.sync":120,"cron.token_refresh":"soon","contract.match":-5,"reference.sync":0}`,
			want: map[string]int{"cron.sync": 120},
		},
		{name: "fractional seconds truncated", raw: `{"cron.sync":90.7}`, want: map[string]int{"cron.sync": 90}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecodeIntervalOverrides([]byte(tc.raw)))
		})
	}
}

func TestSettingsRepository_StateRoundTrip(t *testing.T) {
	r := NewSettingsRepository(dao.NewSettingsDAO(newTestDB(t)))
	ctx := context.Background()

	st, err := r.LoadState(ctx, 42)
	require.NoError(t, err)
	_, ok := st.Get("cron.sync")
	assert.False(t, ok)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Touch("cron.sync", at)
	require.NoError(t, r.SaveState(ctx, 42, st))

	st, err = r.LoadState(ctx, 42)
	require.NoError(t, err)
	got, ok := st.Get("cron.sync")
	require.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.False(t, st.Dirty())

	other, err := r.LoadState(ctx, 43)
	require.NoError(t, err)
	_, ok = other.Get("cron.sync")
	assert.False(t, ok, "state is per tenant")
}

func TestSettingsRepository_Overrides(t *testing.T) {
	r := NewSettingsRepository(dao.NewSettingsDAO(newTestDB(t)))
	ctx := context.Background()
	tenant := int64(42)

	require.NoError(t, r.SaveIntervalOverrides(ctx, nil, map[string]int{"cron.sync": 300}))
	require.NoError(t, r.SaveIntervalOverrides(ctx, &tenant, map[string]int{"cron.sync": 120}))

	global, err := r.LoadIntervalOverrides(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cron.sync": 300}, global)

	own, err := r.LoadIntervalOverrides(ctx, &tenant)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cron.sync": 120}, own)
}

func TestTenantRepository_ListActive(t *testing.T) {
	db := newTestDB(t)
	r := NewTenantRepository(dao.NewTenantDAO(db))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, domain.Tenant{ID: 42, PrincipalID: 9001,
		Params: map[string]any{"region": "eu"}}, true))
	require.NoError(t, r.Save(ctx, domain.Tenant{ID: 43, PrincipalID: 9002}, false))
	// 参数损坏的租户仍然会被调度
	require.NoError(t, db.Create(&dao.TenantSyncConfig{TenantID: 44, PrincipalID: 9003,
		Params: []byte(`"oops"`), Active: true, UpdatedAt: time.Now().UTC()}).Error)

	tenants, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, int64(42), tenants[0].ID)
	assert.Equal(t, "eu", tenants[0].Params["region"])
	assert.Equal(t, int64(44), tenants[1].ID)
	assert.Empty(t, tenants[1].Params)
}
