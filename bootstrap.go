package hauler_scheduler

import (
	"github.com/maferick/hauler_scheduler/repository"
	"github.com/maferick/hauler_scheduler/repository/dao"
	"gorm.io/gorm"
)

// NewFromDB 基于同一个 gorm 连接组装队列、配置与租户仓储
func NewFromDB(db *gorm.DB, logger Logger, queueOpts []QueueOption, opts ...Options) *SchedulerCore {
	queue := NewJobQueue(repository.NewJobRepository(dao.NewJobDAO(db)), logger, queueOpts...)
	settings := repository.NewSettingsRepository(dao.NewSettingsDAO(db))
	tenants := repository.NewTenantRepository(dao.NewTenantDAO(db))
	return NewSchedulerCore(queue, settings, tenants, logger, opts...)
}

func (s *SchedulerCore) Queue() *JobQueue {
	return s.queue
}

func (s *SchedulerCore) Settings() repository.SettingsRepository {
	return s.settings
}

func (s *SchedulerCore) Tenants() repository.TenantRepository {
	return s.tenants
}
