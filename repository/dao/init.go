package dao

import (
	"strings"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open 根据驱动名称打开数据库连接
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3", "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres, "postgresql", "pg":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Newf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	return db, nil
}

// InitTables 创建或升级调度器使用的表
func InitTables(db *gorm.DB) error {
	return errors.Wrap(
		db.AutoMigrate(&Jobs{}, &Settings{}, &TaskEnablement{}, &TenantSyncConfig{}),
		"migrate scheduler tables",
	)
}

// scopeTenant 追加租户作用域条件，nil 表示全局
func scopeTenant(db *gorm.DB, tenantID *int64) *gorm.DB {
	if tenantID == nil {
		return db.Where("tenant_id IS NULL")
	}
	return db.Where("tenant_id = ?", *tenantID)
}
