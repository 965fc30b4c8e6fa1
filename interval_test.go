package hauler_scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/maferick/hauler_scheduler/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalResolver_Precedence(t *testing.T) {
	tasks := []domain.TaskDefinition{{Key: "cron.sync", Interval: 600 * time.Second}}
	tenant := int64(42)

	testCases := []struct {
		name   string
		env    map[string]int
		global map[string]int
		own    map[string]int
		want   time.Duration
	}{
		{name: "tenant override wins", global: map[string]int{"cron.sync": 300}, own: map[string]int{"cron.sync": 120}, want: 120 * time.Second},
		{name: "global override", global: map[string]int{"cron.sync": 300}, want: 300 * time.Second},
		{name: "compiled default", want: 600 * time.Second},
		{name: "env layer below global", env: map[string]int{"cron.sync": 900}, global: map[string]int{"cron.sync": 300}, want: 300 * time.Second},
		{name: "env layer above default", env: map[string]int{"cron.sync": 900}, want: 900 * time.Second},
		{name: "clamped to floor", own: map[string]int{"cron.sync": 5}, want: 60 * time.Second},
		{name: "non-positive override ignored", own: map[string]int{"cron.sync": -1}, global: map[string]int{"cron.sync": 0}, want: 600 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewIntervalResolver(tasks, tc.env)
			r.SetGlobal(tc.global)
			r.SetTenant(tenant, tc.own)
			assert.Equal(t, tc.want, r.Resolve("cron.sync", &tenant))
		})
	}
}

func TestIntervalResolver_GlobalScopeIgnoresTenantOverride(t *testing.T) {
	r := NewIntervalResolver([]domain.TaskDefinition{{Key: "cron.sync", Interval: 10 * time.Minute}}, nil)
	r.SetTenant(42, map[string]int{"cron.sync": 120})
	assert.Equal(t, 10*time.Minute, r.Resolve("cron.sync", nil))

	other := int64(43)
	assert.Equal(t, 10*time.Minute, r.Resolve("cron.sync", &other))
	assert.Equal(t, time.Minute, r.Resolve("unknown.task", nil), "unknown tasks fall to the floor")
}

func TestEnablementSnapshot(t *testing.T) {
	snap := NewEnablementSnapshot(map[string]bool{"cron.sync": false, "contract.match": true})
	assert.False(t, snap.IsEnabled("cron.sync"))
	assert.True(t, snap.IsEnabled("contract.match"))
	assert.True(t, snap.IsEnabled("cron.token_refresh"), "missing row means enabled")
	assert.True(t, NewEnablementSnapshot(nil).IsEnabled("anything"))
}

func TestDueCheckers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	var history DueChecker = JobHistoryClock{Queue: env.queue}
	due, err := history.Due(ctx, TaskReferenceSync, nil, time.Hour, now)
	require.NoError(t, err)
	assert.True(t, due, "no history means due")

	_, err = env.queue.Enqueue(ctx, TaskReferenceSync, nil, nil)
	require.NoError(t, err)
	due, err = history.Due(ctx, TaskReferenceSync, nil, time.Hour, now.Add(59*time.Minute))
	require.NoError(t, err)
	assert.False(t, due)
	due, err = history.Due(ctx, TaskReferenceSync, nil, time.Hour, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, due, "elapsed equal to the interval is due")

	state := domain.NewTenantSchedulerState()
	var blob DueChecker = StateBlobClock{State: state}
	due, err = blob.Due(ctx, TaskContractSync, int64p(42), time.Hour, now)
	require.NoError(t, err)
	assert.True(t, due)

	state.Touch(TaskContractSync, now)
	due, err = blob.Due(ctx, TaskContractSync, int64p(42), time.Hour, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, due)
}
