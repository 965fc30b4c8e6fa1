package hauler_scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/maferick/hauler_scheduler/domain"
)

// maxClaimRaces 同一 job 类型连续抢占冲突的最大次数，超过后换下一种类型
const maxClaimRaces = 5

// Work 同步执行最多 workerLimit 个 job，没有可抢占的 job 时立即结束。
// 返回已处理的 job 数量；执行器报告 ErrWorkerUnhealthy 或抢占时存储出错会提前结束并返回错误。
func (s *SchedulerCore) Work(ctx context.Context) (int, error) {
	processed := 0
	for processed < s.workerLimit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		job, err := s.claimNext(ctx)
		if errors.Is(err, ErrNoJob) {
			s.logger.Debug("no queued jobs left", Field{Key: "processed", Val: processed})
			return processed, nil
		}
		if errors.Is(err, ErrPreemptFailed) {
			// 队列中仍有 job，但每次都被其他 worker 抢走
			s.logger.Warn("claim contention, stopping worker loop", ErrField(err),
				Field{Key: "processed", Val: processed})
			return processed, nil
		}
		if err != nil {
			return processed, err
		}

		processed++
		if err = s.execute(ctx, job); err != nil {
			return processed, err
		}
	}

	return processed, nil
}

// claimNext 按配置顺序依次尝试每种 job 类型。
// 抢占冲突说明该类型仍有 queued job，会在同一类型上重试；
// 只有所有类型都返回 ErrNoJob 时才返回 ErrNoJob。
func (s *SchedulerCore) claimNext(ctx context.Context) (domain.Job, error) {
	var contended []string
	for _, jobType := range s.workerJobTypes {
		job, err := s.claimType(ctx, jobType)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, ErrNoJob):
			continue
		case errors.Is(err, ErrPreemptFailed):
			contended = append(contended, jobType)
		default:
			return domain.Job{}, errors.Wrapf(err, "claim %s job", jobType)
		}
	}
	if len(contended) > 0 {
		return domain.Job{}, errors.WithDetailf(ErrPreemptFailed, "lost %d claim races on %v", maxClaimRaces, contended)
	}
	return domain.Job{}, ErrNoJob
}

func (s *SchedulerCore) claimType(ctx context.Context, jobType string) (domain.Job, error) {
	var err error
	for i := 0; i < maxClaimRaces; i++ {
		var job domain.Job
		job, err = s.queue.ClaimNext(ctx, jobType, s.workerID)
		if !errors.Is(err, ErrPreemptFailed) {
			return job, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Job{}, ctxErr
		}
	}
	return domain.Job{}, err
}

// execute 执行单个 job 并写入终态，只有 ErrWorkerUnhealthy 会被返回给调用方
func (s *SchedulerCore) execute(ctx context.Context, job domain.Job) error {
	log := s.logger.With(JobField(job.ID), TaskField(job.JobType), TenantField(job.TenantID))

	fn, ok := s.executor(job.JobType)
	if !ok {
		err := errors.Wrapf(ErrExecutorNotFound, "job type %s", job.JobType)
		log.Error("job has no executor", ErrField(err))
		s.markFailed(ctx, job, err.Error(), log)
		return nil
	}

	log.Info("job started", Field{Key: "worker_id", Val: s.workerID})
	report := func(progress domain.Progress, message string) {
		_ = s.queue.UpdateProgress(ctx, job.ID, progress, message)
	}

	result, err := invoke(ctx, fn, job, report)
	if err != nil {
		log.Error("job failed", ErrField(err))
		s.markFailed(ctx, job, err.Error(), log)
		if errors.Is(err, ErrWorkerUnhealthy) {
			return err
		}
		return nil
	}

	if err = s.queue.MarkSucceeded(ctx, job.ID, result); err != nil {
		log.Warn("failed to mark job succeeded", ErrField(err))
		return nil
	}
	log.Info("job succeeded")
	return nil
}

func (s *SchedulerCore) markFailed(ctx context.Context, job domain.Job, message string, log Logger) {
	if err := s.queue.MarkFailed(ctx, job.ID, message); err != nil {
		log.Warn("failed to mark job failed", ErrField(err))
	}
}

// invoke 执行器 panic 时转换为错误，job 按失败处理
func invoke(ctx context.Context, fn ExecutorFunc, job domain.Job, report ProgressFunc) (res json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("executor panicked: %s", fmt.Sprint(r))
		}
	}()
	return fn(ctx, job, report)
}
