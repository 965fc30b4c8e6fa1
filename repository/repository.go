package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository/dao"
)

// JobRepository 屏蔽 dao 模型，对外只暴露 domain.Job
type JobRepository interface {
	Create(ctx context.Context, job domain.Job) (int64, error)
	Get(ctx context.Context, id int64) (domain.Job, error)
	List(ctx context.Context, status *_const.JobStatus, limit int) ([]domain.Job, error)
	HasPending(ctx context.Context, jobType string, tenantID *int64) (bool, error)
	Latest(ctx context.Context, jobType string, tenantID *int64) (*domain.Job, error)
	// Preempt 抢占最早的 queued job，strategy 为 nil 时只尝试一次
	Preempt(ctx context.Context, jobType, workerID string, now time.Time, strategy dao.RetryStrategy) (domain.Job, error)
	// SavePayload 以 job.Epoch 为版本条件写回 payload，成功后 job.Epoch 需要加一
	SavePayload(ctx context.Context, job domain.Job, now time.Time) (bool, error)
	Finish(ctx context.Context, id int64, status _const.JobStatus, result json.RawMessage, lastError string, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, jobType string, tenantID *int64, cutoff time.Time, message, reason string, now time.Time) (int64, error)
}

type jobRepository struct {
	dao dao.JobDAO
}

func NewJobRepository(d dao.JobDAO) JobRepository {
	return &jobRepository{dao: d}
}

func (r *jobRepository) Create(ctx context.Context, job domain.Job) (int64, error) {
	entity, err := toEntity(job)
	if err != nil {
		return 0, err
	}
	if err = r.dao.Insert(ctx, &entity); err != nil {
		return 0, err
	}
	return entity.ID, nil
}

func (r *jobRepository) Get(ctx context.Context, id int64) (domain.Job, error) {
	entity, err := r.dao.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	return toDomain(entity), nil
}

func (r *jobRepository) List(ctx context.Context, status *_const.JobStatus, limit int) ([]domain.Job, error) {
	entities, err := r.dao.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(entities))
	for _, e := range entities {
		jobs = append(jobs, toDomain(e))
	}
	return jobs, nil
}

func (r *jobRepository) HasPending(ctx context.Context, jobType string, tenantID *int64) (bool, error) {
	n, err := r.dao.CountPending(ctx, jobType, tenantID)
	return n > 0, err
}

func (r *jobRepository) Latest(ctx context.Context, jobType string, tenantID *int64) (*domain.Job, error) {
	entity, err := r.dao.Latest(ctx, jobType, tenantID)
	if err != nil || entity == nil {
		return nil, err
	}
	job := toDomain(*entity)
	return &job, nil
}

func (r *jobRepository) Preempt(ctx context.Context, jobType, workerID string, now time.Time,
	strategy dao.RetryStrategy) (domain.Job, error) {
	var (
		entity dao.Jobs
		err    error
	)
	if strategy == nil {
		entity, err = r.dao.TryPreempt(ctx, jobType, workerID, now)
	} else {
		entity, err = r.dao.Preempt(ctx, jobType, workerID, now, strategy)
	}
	if err != nil {
		return domain.Job{}, err
	}
	return toDomain(entity), nil
}

func (r *jobRepository) SavePayload(ctx context.Context, job domain.Job, now time.Time) (bool, error) {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return false, errors.Wrapf(err, "marshal payload of job %d", job.ID)
	}
	return r.dao.UpdatePayload(ctx, job.ID, job.Epoch, raw, now)
}

func (r *jobRepository) Finish(ctx context.Context, id int64, status _const.JobStatus,
	result json.RawMessage, lastError string, now time.Time) (bool, error) {
	if !status.Terminal() {
		return false, errors.Newf("status %s is not terminal", status)
	}
	var errPtr *string
	if lastError != "" {
		errPtr = &lastError
	}
	return r.dao.Finish(ctx, id, status, result, errPtr, now)
}

func (r *jobRepository) ExpireStale(ctx context.Context, jobType string, tenantID *int64,
	cutoff time.Time, message, reason string, now time.Time) (int64, error) {
	return r.dao.ExpireStale(ctx, jobType, tenantID, cutoff, message, reason, now)
}

func toEntity(job domain.Job) (dao.Jobs, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return dao.Jobs{}, errors.Wrap(err, "marshal job payload")
	}
	entity := dao.Jobs{
		ID:            job.ID,
		JobType:       job.JobType,
		TenantID:      job.TenantID,
		Status:        job.Status,
		Payload:       payload,
		FailureReason: job.FailureReason,
		WorkerID:      job.WorkerID,
		Epoch:         job.Epoch,
		RunAt:         job.RunAt,
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		entity.Result = []byte(job.Result)
	}
	if job.LastError != "" {
		msg := job.LastError
		entity.LastError = &msg
	}
	return entity, nil
}

func toDomain(e dao.Jobs) domain.Job {
	job := domain.Job{
		ID:            e.ID,
		JobType:       e.JobType,
		TenantID:      e.TenantID,
		Status:        e.Status,
		FailureReason: e.FailureReason,
		WorkerID:      e.WorkerID,
		Epoch:         e.Epoch,
		RunAt:         e.RunAt,
		StartedAt:     e.StartedAt,
		FinishedAt:    e.FinishedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if len(e.Payload) > 0 {
		// 无法解析的 payload 保持为空，调用方仍能看到状态
		_ = json.Unmarshal(e.Payload, &job.Payload)
	}
	if len(e.Result) > 0 {
		job.Result = json.RawMessage(e.Result)
	}
	if e.LastError != nil {
		job.LastError = *e.LastError
	}
	return job
}
