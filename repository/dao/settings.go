package dao

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SettingsDAO interface {
	// Get 返回配置文档，不存在时返回 nil
	Get(ctx context.Context, tenantID *int64, key string) ([]byte, error)
	Put(ctx context.Context, tenantID *int64, key string, value []byte) error
	// ListEnablement 读取某个作用域下的全部任务开关
	ListEnablement(ctx context.Context, tenantID *int64) ([]TaskEnablement, error)
	SetEnablement(ctx context.Context, tenantID *int64, taskKey string, enabled bool) error
}

type GormSettingsDAO struct {
	db *gorm.DB
}

func NewSettingsDAO(db *gorm.DB) SettingsDAO {
	return &GormSettingsDAO{db: db}
}

func (d *GormSettingsDAO) Get(ctx context.Context, tenantID *int64, key string) ([]byte, error) {
	var row Settings
	q := d.db.WithContext(ctx).Where("setting_key = ?", key)
	err := scopeTenant(q, tenantID).Order("id DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get setting %s", key)
	}
	return row.Value, nil
}

// Put 覆盖写入整个文档，NULL 作用域无法依赖唯一索引，因此在事务内先更新再插入
func (d *GormSettingsDAO) Put(ctx context.Context, tenantID *int64, key string, value []byte) error {
	now := time.Now().UTC()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := scopeTenant(tx.Model(&Settings{}).Where("setting_key = ?", key), tenantID).
			Updates(map[string]interface{}{
				"value":      datatypes.JSON(value),
				"updated_at": now,
			})
		if res.Error != nil || res.RowsAffected > 0 {
			return res.Error
		}
		return tx.Create(&Settings{
			TenantID:  tenantID,
			Key:       key,
			Value:     datatypes.JSON(value),
			UpdatedAt: now,
		}).Error
	})
	return errors.Wrapf(err, "put setting %s", key)
}

func (d *GormSettingsDAO) ListEnablement(ctx context.Context, tenantID *int64) ([]TaskEnablement, error) {
	var rows []TaskEnablement
	err := scopeTenant(d.db.WithContext(ctx), tenantID).Order("id").Find(&rows).Error
	return rows, errors.Wrap(err, "list task enablement")
}

func (d *GormSettingsDAO) SetEnablement(ctx context.Context, tenantID *int64, taskKey string, enabled bool) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := scopeTenant(tx.Model(&TaskEnablement{}).Where("task_key = ?", taskKey), tenantID).
			Update("is_enabled", enabled)
		if res.Error != nil || res.RowsAffected > 0 {
			return res.Error
		}
		return tx.Create(&TaskEnablement{
			TenantID:  tenantID,
			TaskKey:   taskKey,
			IsEnabled: enabled,
		}).Error
	})
	return errors.Wrapf(err, "set enablement of %s", taskKey)
}
