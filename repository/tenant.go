package repository

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository/dao"
)

type TenantRepository interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	Save(ctx context.Context, tenant domain.Tenant, active bool) error
}

type tenantRepository struct {
	dao dao.TenantDAO
}

func NewTenantRepository(d dao.TenantDAO) TenantRepository {
	return &tenantRepository{dao: d}
}

func (r *tenantRepository) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.dao.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]domain.Tenant, 0, len(rows))
	for _, row := range rows {
		t := domain.Tenant{ID: row.TenantID, PrincipalID: row.PrincipalID}
		if len(row.Params) > 0 {
			// 参数不可解析时仍然调度，只是不携带额外参数
			_ = json.Unmarshal(row.Params, &t.Params)
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (r *tenantRepository) Save(ctx context.Context, tenant domain.Tenant, active bool) error {
	var params []byte
	if len(tenant.Params) > 0 {
		var err error
		if params, err = json.Marshal(tenant.Params); err != nil {
			return errors.Wrapf(err, "encode params of tenant %d", tenant.ID)
		}
	}
	return r.dao.Save(ctx, dao.TenantSyncConfig{
		TenantID:    tenant.ID,
		PrincipalID: tenant.PrincipalID,
		Params:      params,
		Active:      active,
	})
}
