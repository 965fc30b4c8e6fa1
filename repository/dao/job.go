package dao

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrPreemptFailed 候选 job 被其他 worker 抢先占用
	ErrPreemptFailed = errors.New("preempt failed")
	// ErrNoJob 没有可抢占的 job
	ErrNoJob = errors.New("no queued job")
	// ErrJobNotFound 按 ID 查询不到 job
	ErrJobNotFound = errors.New("job not found")
)

// RetryStrategy 抢占失败后的重试间隔
type RetryStrategy interface {
	Next() (time.Duration, error)
}

type JobDAO interface {
	Insert(ctx context.Context, job *Jobs) error
	Get(ctx context.Context, id int64) (Jobs, error)
	List(ctx context.Context, status *_const.JobStatus, limit int) ([]Jobs, error)
	// CountPending 统计 queued/running 状态的 job
	CountPending(ctx context.Context, jobType string, tenantID *int64) (int64, error)
	// Latest 返回该任务最近创建的一条 job，没有则返回 nil
	Latest(ctx context.Context, jobType string, tenantID *int64) (*Jobs, error)
	// TryPreempt 尝试抢占一次
	TryPreempt(ctx context.Context, jobType, workerID string, now time.Time) (Jobs, error)
	// Preempt 抢占失败会按策略进行重试
	Preempt(ctx context.Context, jobType, workerID string, now time.Time, strategy RetryStrategy) (Jobs, error)
	// UpdatePayload 以 epoch 为条件更新 running job 的 payload
	UpdatePayload(ctx context.Context, id int64, epoch int, payload []byte, now time.Time) (bool, error)
	// Finish 将 running job 置为终态
	Finish(ctx context.Context, id int64, status _const.JobStatus, result []byte, lastError *string, now time.Time) (bool, error)
	// ExpireStale 将超过最大运行时长的 running job 强制置为失败，返回被回收的 ID
	ExpireStale(ctx context.Context, jobType string, tenantID *int64, cutoff time.Time, message, reason string, now time.Time) (int64, error)
}

type GormJobDAO struct {
	db *gorm.DB
}

func NewJobDAO(db *gorm.DB) JobDAO {
	return &GormJobDAO{db: db}
}

func (d *GormJobDAO) Insert(ctx context.Context, job *Jobs) error {
	return errors.Wrap(d.db.WithContext(ctx).Create(job).Error, "insert job")
}

func (d *GormJobDAO) Get(ctx context.Context, id int64) (Jobs, error) {
	var job Jobs
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Jobs{}, errors.Wrapf(ErrJobNotFound, "job %d", id)
	}
	return job, errors.Wrapf(err, "get job %d", id)
}

func (d *GormJobDAO) List(ctx context.Context, status *_const.JobStatus, limit int) ([]Jobs, error) {
	q := d.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var jobs []Jobs
	return jobs, errors.Wrap(q.Find(&jobs).Error, "list jobs")
}

func (d *GormJobDAO) CountPending(ctx context.Context, jobType string, tenantID *int64) (int64, error) {
	var n int64
	q := d.db.WithContext(ctx).Model(&Jobs{}).
		Where("job_type = ? AND status IN ?", jobType, _const.PendingStatuses)
	err := scopeTenant(q, tenantID).Count(&n).Error
	return n, errors.Wrapf(err, "count pending %s jobs", jobType)
}

func (d *GormJobDAO) Latest(ctx context.Context, jobType string, tenantID *int64) (*Jobs, error) {
	var job Jobs
	q := d.db.WithContext(ctx).Where("job_type = ?", jobType)
	err := scopeTenant(q, tenantID).Order("id DESC").Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "latest %s job", jobType)
	}
	return &job, nil
}

func (d *GormJobDAO) TryPreempt(ctx context.Context, jobType, workerID string, now time.Time) (Jobs, error) {
	if d.db.Dialector.Name() == DriverPostgres {
		return d.preemptLocked(ctx, jobType, workerID, now)
	}

	var job Jobs
	// 状态为等待中且到达执行时间的最早一条
	err := d.db.WithContext(ctx).
		Where("job_type = ? AND status = ? AND (run_at IS NULL OR run_at <= ?)",
			jobType, _const.JobStatusQueued, now).
		Order("id").Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Jobs{}, ErrNoJob
	}
	if err != nil {
		return Jobs{}, errors.Wrap(err, "select queued job")
	}

	res := d.db.WithContext(ctx).Model(&Jobs{}).
		Where("id = ? AND status = ? AND epoch = ?", job.ID, _const.JobStatusQueued, job.Epoch).
		Updates(claimColumns(job, workerID, now))
	if res.Error != nil {
		return Jobs{}, errors.Wrapf(res.Error, "claim job %d", job.ID)
	}
	if res.RowsAffected == 0 {
		// 抢占失败
		return Jobs{}, ErrPreemptFailed
	}

	return claimed(job, workerID, now), nil
}

// preemptLocked 使用 FOR UPDATE SKIP LOCKED，被其他事务锁住的行直接跳过
func (d *GormJobDAO) preemptLocked(ctx context.Context, jobType, workerID string, now time.Time) (Jobs, error) {
	var job Jobs
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("job_type = ? AND status = ? AND (run_at IS NULL OR run_at <= ?)",
				jobType, _const.JobStatusQueued, now).
			Order("id").Take(&job).Error
		if err != nil {
			return err
		}
		return tx.Model(&Jobs{}).Where("id = ?", job.ID).Updates(claimColumns(job, workerID, now)).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Jobs{}, ErrNoJob
	}
	if err != nil {
		return Jobs{}, errors.Wrap(err, "claim queued job")
	}
	return claimed(job, workerID, now), nil
}

func (d *GormJobDAO) Preempt(ctx context.Context, jobType, workerID string, now time.Time,
	strategy RetryStrategy) (Jobs, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		job, err := d.TryPreempt(ctx, jobType, workerID, now)
		if err == nil || !errors.Is(err, ErrPreemptFailed) {
			return job, err
		}

		interval, err := strategy.Next()
		if err != nil {
			return Jobs{}, ErrPreemptFailed
		}

		if timer == nil {
			timer = time.NewTimer(interval)
		} else {
			timer.Reset(interval)
		}

		select {
		case <-ctx.Done():
			return Jobs{}, ctx.Err()
		case <-timer.C:
			// 等待下一次抢占
		}
	}
}

func (d *GormJobDAO) UpdatePayload(ctx context.Context, id int64, epoch int, payload []byte, now time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&Jobs{}).
		Where("id = ? AND epoch = ? AND status = ?", id, epoch, _const.JobStatusRunning).
		Updates(map[string]interface{}{
			"payload":    datatypes.JSON(payload),
			"epoch":      epoch + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "update payload of job %d", id)
	}
	return res.RowsAffected == 1, nil
}

func (d *GormJobDAO) Finish(ctx context.Context, id int64, status _const.JobStatus,
	result []byte, lastError *string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":      status,
		"last_error":  lastError,
		"finished_at": now,
		"epoch":       gorm.Expr("epoch + 1"),
		"updated_at":  now,
	}
	if result != nil {
		updates["result"] = datatypes.JSON(result)
	}
	res := d.db.WithContext(ctx).Model(&Jobs{}).
		Where("id = ? AND status = ?", id, _const.JobStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "finish job %d as %s", id, status)
	}
	return res.RowsAffected == 1, nil
}

func (d *GormJobDAO) ExpireStale(ctx context.Context, jobType string, tenantID *int64,
	cutoff time.Time, message, reason string, now time.Time) (int64, error) {
	var job Jobs
	q := d.db.WithContext(ctx).
		Where("job_type = ? AND status = ? AND started_at < ?", jobType, _const.JobStatusRunning, cutoff)
	err := scopeTenant(q, tenantID).Order("id").Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "find stale %s job", jobType)
	}

	res := d.db.WithContext(ctx).Model(&Jobs{}).
		Where("id = ? AND status = ? AND epoch = ?", job.ID, _const.JobStatusRunning, job.Epoch).
		Updates(map[string]interface{}{
			"status":         _const.JobStatusFailed,
			"last_error":     message,
			"failure_reason": reason,
			"finished_at":    now,
			"epoch":          job.Epoch + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "expire stale job %d", job.ID)
	}
	if res.RowsAffected == 0 {
		// 在此期间 worker 已经完成或其他调用已回收
		return 0, nil
	}
	return job.ID, nil
}

func claimColumns(job Jobs, workerID string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":     _const.JobStatusRunning,
		"started_at": now,
		"worker_id":  workerID,
		"epoch":      job.Epoch + 1,
		"updated_at": now,
	}
}

func claimed(job Jobs, workerID string, now time.Time) Jobs {
	job.Status = _const.JobStatusRunning
	job.StartedAt = &now
	job.WorkerID = workerID
	job.Epoch++
	job.UpdatedAt = now
	return job
}
