package dao

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TenantDAO interface {
	// ListActive 返回配置了同步身份的租户，按租户 ID 升序
	ListActive(ctx context.Context) ([]TenantSyncConfig, error)
	Save(ctx context.Context, cfg TenantSyncConfig) error
}

type GormTenantDAO struct {
	db *gorm.DB
}

func NewTenantDAO(db *gorm.DB) TenantDAO {
	return &GormTenantDAO{db: db}
}

func (d *GormTenantDAO) ListActive(ctx context.Context) ([]TenantSyncConfig, error) {
	var rows []TenantSyncConfig
	err := d.db.WithContext(ctx).
		Where("active = ? AND principal_id > 0", true).
		Order("tenant_id").Find(&rows).Error
	return rows, errors.Wrap(err, "list active tenants")
}

func (d *GormTenantDAO) Save(ctx context.Context, cfg TenantSyncConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"principal_id", "params", "active", "updated_at"}),
	}).Create(&cfg).Error
	return errors.Wrapf(err, "save tenant %d", cfg.TenantID)
}
