package repository

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository/dao"
)

const (
	KeySchedulerState    = "scheduler.state"
	KeyIntervalOverrides = "scheduler.interval_overrides"
)

// SettingsRepository 读写调度器相关的 JSON 配置文档与任务开关
type SettingsRepository interface {
	LoadState(ctx context.Context, tenantID int64) (*domain.TenantSchedulerState, error)
	SaveState(ctx context.Context, tenantID int64, state *domain.TenantSchedulerState) error
	// LoadIntervalOverrides 读取 task→seconds 映射，非法条目被忽略
	LoadIntervalOverrides(ctx context.Context, tenantID *int64) (map[string]int, error)
	SaveIntervalOverrides(ctx context.Context, tenantID *int64, overrides map[string]int) error
	LoadEnablement(ctx context.Context, tenantID *int64) (map[string]bool, error)
	SetEnablement(ctx context.Context, tenantID *int64, taskKey string, enabled bool) error
}

type settingsRepository struct {
	dao dao.SettingsDAO
}

func NewSettingsRepository(d dao.SettingsDAO) SettingsRepository {
	return &settingsRepository{dao: d}
}

func (r *settingsRepository) LoadState(ctx context.Context, tenantID int64) (*domain.TenantSchedulerState, error) {
	raw, err := r.dao.Get(ctx, &tenantID, KeySchedulerState)
	if err != nil {
		return nil, err
	}
	return domain.DecodeTenantSchedulerState(raw), nil
}

func (r *settingsRepository) SaveState(ctx context.Context, tenantID int64, state *domain.TenantSchedulerState) error {
	raw, err := state.Encode()
	if err != nil {
		return errors.Wrapf(err, "encode scheduler state of tenant %d", tenantID)
	}
	return r.dao.Put(ctx, &tenantID, KeySchedulerState, raw)
}

func (r *settingsRepository) LoadIntervalOverrides(ctx context.Context, tenantID *int64) (map[string]int, error) {
	raw, err := r.dao.Get(ctx, tenantID, KeyIntervalOverrides)
	if err != nil {
		return nil, err
	}
	return DecodeIntervalOverrides(raw), nil
}

func (r *settingsRepository) SaveIntervalOverrides(ctx context.Context, tenantID *int64, overrides map[string]int) error {
	raw, err := json.Marshal(overrides)
	if err != nil {
		return errors.Wrap(err, "encode interval overrides")
	}
	return r.dao.Put(ctx, tenantID, KeyIntervalOverrides, raw)
}

func (r *settingsRepository) LoadEnablement(ctx context.Context, tenantID *int64) (map[string]bool, error) {
	rows, err := r.dao.ListEnablement(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]bool, len(rows))
	for _, row := range rows {
		res[row.TaskKey] = row.IsEnabled
	}
	return res, nil
}

func (r *settingsRepository) SetEnablement(ctx context.Context, tenantID *int64, taskKey string, enabled bool) error {
	return r.dao.SetEnablement(ctx, tenantID, taskKey, enabled)
}

// DecodeIntervalOverrides 解析 {"task": seconds}，整体或单个条目非法时忽略
func DecodeIntervalOverrides(raw []byte) map[string]int {
	res := map[string]int{}
	if len(raw) == 0 {
		return res
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return res
	}
	for task, v := range doc {
		var secs float64
		if err := json.Unmarshal(v, &secs); err != nil || secs <= 0 {
			continue
		}
		res[task] = int(secs)
	}
	return res
}
