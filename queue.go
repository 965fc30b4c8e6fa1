package hauler_scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository"
)

// maxPayloadConflicts 进度写入遇到版本冲突时的最大重读次数
const maxPayloadConflicts = 3

// JobQueue 基于关系型存储的任务队列
type JobQueue struct {
	repo   repository.JobRepository
	logger Logger
	now    func() time.Time

	strategy      _const.PreemptStrategy
	retryInterval time.Duration
	retryMax      int
}

type QueueOption func(q *JobQueue)

// WithQueueClock 替换时间来源，测试中使用
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *JobQueue) {
		q.now = now
	}
}

func WithClaimStrategy(strategy _const.PreemptStrategy, interval time.Duration, maxRetries int) QueueOption {
	return func(q *JobQueue) {
		q.strategy = strategy
		q.retryInterval = interval
		q.retryMax = maxRetries
	}
}

func NewJobQueue(repo repository.JobRepository, logger Logger, opts ...QueueOption) *JobQueue {
	q := &JobQueue{
		repo:          repo,
		logger:        logger,
		now:           time.Now,
		strategy:      _const.RetryPreemptStrategy,
		retryInterval: _const.DefaultClaimRetryInterval,
		retryMax:      _const.DefaultClaimRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *JobQueue) clock() time.Time {
	return q.now().UTC()
}

// Enqueue 插入一条 queued job，params 会被序列化为 payload.params
func (q *JobQueue) Enqueue(ctx context.Context, jobType string, tenantID *int64, params any) (int64, error) {
	var raw json.RawMessage
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return 0, errors.Wrapf(err, "encode params of %s", jobType)
		}
	}

	now := q.clock()
	id, err := q.repo.Create(ctx, domain.Job{
		JobType:   jobType,
		TenantID:  tenantID,
		Status:    _const.JobStatusQueued,
		Payload:   domain.Payload{Params: raw},
		RunAt:     &now,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create job")
		err = errors.WithDetail(err, fmt.Sprintf("Job type: %s", jobType))
		return 0, err
	}
	return id, nil
}

// HasPending 是否存在 queued 或 running 的同类 job
func (q *JobQueue) HasPending(ctx context.Context, jobType string, tenantID *int64) (bool, error) {
	return q.repo.HasPending(ctx, jobType, tenantID)
}

// Latest 最近创建的同类 job，没有时返回 nil
func (q *JobQueue) Latest(ctx context.Context, jobType string, tenantID *int64) (*domain.Job, error) {
	return q.repo.Latest(ctx, jobType, tenantID)
}

func (q *JobQueue) Get(ctx context.Context, id int64) (domain.Job, error) {
	return q.repo.Get(ctx, id)
}

func (q *JobQueue) List(ctx context.Context, status *_const.JobStatus, limit int) ([]domain.Job, error) {
	return q.repo.List(ctx, status, limit)
}

// ClaimNext 原子地抢占最早的 queued job 并置为 running，没有可用 job 时返回 ErrNoJob
func (q *JobQueue) ClaimNext(ctx context.Context, jobType, workerID string) (domain.Job, error) {
	var strategy RetryStrategy
	if q.strategy == _const.RetryPreemptStrategy {
		strategy = NewFixedScheduleStrategy(q.retryInterval, q.retryMax)
	}
	return q.repo.Preempt(ctx, jobType, workerID, q.clock(), strategy)
}

// UpdateProgress 合并进度并追加日志。尽力而为：失败只记录日志，调用方无需处理返回值
func (q *JobQueue) UpdateProgress(ctx context.Context, id int64, progress domain.Progress, message string) error {
	err := q.updateProgress(ctx, id, progress, message)
	if err != nil {
		q.logger.Warn("failed to update job progress", JobField(id), ErrField(err))
	}
	return err
}

func (q *JobQueue) updateProgress(ctx context.Context, id int64, progress domain.Progress, message string) error {
	for i := 0; i < maxPayloadConflicts; i++ {
		job, err := q.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.Status != _const.JobStatusRunning {
			return errors.Newf("job %d is %s, not running", id, job.Status)
		}

		now := q.clock()
		job.Payload.Merge(progress, message, now)
		ok, err := q.repo.SavePayload(ctx, job, now)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// 版本冲突，重新读取后再合并
	}
	return errors.Newf("job %d progress update lost %d version races", id, maxPayloadConflicts)
}

func (q *JobQueue) MarkSucceeded(ctx context.Context, id int64, result json.RawMessage) error {
	return q.finish(ctx, id, _const.JobStatusSucceeded, result, "")
}

func (q *JobQueue) MarkFailed(ctx context.Context, id int64, message string) error {
	if message == "" {
		message = "job failed"
	}
	return q.finish(ctx, id, _const.JobStatusFailed, nil, message)
}

func (q *JobQueue) finish(ctx context.Context, id int64, status _const.JobStatus,
	result json.RawMessage, message string) error {
	ok, err := q.repo.Finish(ctx, id, status, result, message, q.clock())
	if err != nil {
		return err
	}
	if !ok {
		// 已被过期回收或其他进程置为终态
		return errors.Newf("job %d is no longer running", id)
	}
	return nil
}

// ExpireStaleRunning 将 started_at 早于 maxRuntime 的 running job 强制置为 failed，
// 返回被回收的 job ID，没有过期 job 时返回 0
func (q *JobQueue) ExpireStaleRunning(ctx context.Context, jobType string, tenantID *int64,
	maxRuntime time.Duration, message, reasonTag string) (int64, error) {
	now := q.clock()
	return q.repo.ExpireStale(ctx, jobType, tenantID, now.Add(-maxRuntime), message, reasonTag, now)
}

// DefaultWorkerID host:pid:random，用于在 job 上标记抢占者
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
