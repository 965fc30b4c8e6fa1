package hauler_scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	_const "github.com/maferick/hauler_scheduler/const"
	"github.com/maferick/hauler_scheduler/domain"
	"github.com/maferick/hauler_scheduler/repository"
	"github.com/maferick/hauler_scheduler/repository/dao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueueN(t *testing.T, env *testEnv, jobType string, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := env.queue.Enqueue(context.Background(), jobType, int64p(int64(i+1)), nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func statusOf(t *testing.T, env *testEnv, id int64) _const.JobStatus {
	t.Helper()
	job, err := env.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}

func TestWork_BoundedByWorkerLimit(t *testing.T) {
	env := newTestEnv(t, WithWorkerLimit(3), WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 5)

	var calls atomic.Int32
	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"ok":true}`), nil
		}))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, int32(3), calls.Load())
	for i, id := range ids {
		want := _const.JobStatusQueued
		if i < 3 {
			want = _const.JobStatusSucceeded
		}
		assert.Equal(t, want, statusOf(t, env, id), "job %d", id)
	}

	processed, err = env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	for _, id := range ids {
		assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, id))
	}

	processed, err = env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestWork_ClaimsAcrossJobTypesInOrder(t *testing.T) {
	env := newTestEnv(t, WithWorkerJobTypes([]string{TaskTokenRefresh, TaskContractSync}))
	sync := enqueueN(t, env, TaskContractSync, 1)
	refresh := enqueueN(t, env, TaskTokenRefresh, 1)

	var order []string
	fn := func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
		order = append(order, job.JobType)
		return nil, nil
	}
	require.NoError(t, env.core.Register(TaskContractSync, fn))
	require.NoError(t, env.core.Register(TaskTokenRefresh, fn))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []string{TaskTokenRefresh, TaskContractSync}, order)
	assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, sync[0]))
	assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, refresh[0]))
}

func TestWork_FailureRecorded(t *testing.T) {
	env := newTestEnv(t, WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 2)

	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			return nil, errors.New("remote api returned 502")
		}))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	job, err := env.queue.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, _const.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "502")
	assert.Empty(t, job.FailureReason)
	assert.NotNil(t, job.FinishedAt)
}

func TestWork_UnhealthyStopsLoop(t *testing.T) {
	env := newTestEnv(t, WithWorkerLimit(5), WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 3)

	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			return nil, errors.Wrap(ErrWorkerUnhealthy, "token store unreachable")
		}))

	processed, err := env.core.Work(context.Background())
	assert.ErrorIs(t, err, ErrWorkerUnhealthy)
	assert.Equal(t, 1, processed)
	assert.Equal(t, _const.JobStatusFailed, statusOf(t, env, ids[0]))
	assert.Equal(t, _const.JobStatusQueued, statusOf(t, env, ids[1]))
	assert.Equal(t, _const.JobStatusQueued, statusOf(t, env, ids[2]))
}

func TestWork_PanicContained(t *testing.T) {
	env := newTestEnv(t, WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 2)

	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			if job.ID == ids[0] {
				panic("nil map write")
			}
			return nil, nil
		}))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	job, err := env.queue.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, _const.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "nil map write")
	assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, ids[1]))
}

func TestWork_MissingExecutor(t *testing.T) {
	env := newTestEnv(t, WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 1)

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	job, err := env.queue.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, _const.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "no executor registered")
}

func TestWork_ProgressAndResult(t *testing.T) {
	env := newTestEnv(t, WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 1)

	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			assert.Equal(t, _const.JobStatusRunning, job.Status)
			assert.Equal(t, "test-worker", job.WorkerID)
			for i := 1; i <= 3; i++ {
				report(domain.Progress{Current: i, Total: 3, Stage: "pull"}, fmt.Sprintf("page %d", i))
			}
			return json.RawMessage(`{"contracts":12}`), nil
		}))

	_, err := env.core.Work(context.Background())
	require.NoError(t, err)

	job, err := env.queue.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, _const.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Payload.Progress)
	assert.Equal(t, 3, job.Payload.Progress.Current)
	assert.Equal(t, "pull", job.Payload.Progress.Stage)
	require.Len(t, job.Payload.Log, 3)
	assert.Equal(t, "page 3", job.Payload.Log[2].Message)
	assert.JSONEq(t, `{"contracts":12}`, string(job.Result))
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	fn := func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
		return nil, nil
	}
	require.NoError(t, env.core.Register(TaskContractSync, fn))
	assert.ErrorIs(t, env.core.Register(TaskContractSync, fn), ErrExecutorExists)
}

// racingRepo 前 losses 次抢占模拟被其他主机抢先
type racingRepo struct {
	repository.JobRepository
	losses int
	calls  int
}

func (r *racingRepo) Preempt(ctx context.Context, jobType, workerID string, now time.Time,
	strategy dao.RetryStrategy) (domain.Job, error) {
	r.calls++
	if r.calls <= r.losses {
		return domain.Job{}, ErrPreemptFailed
	}
	return r.JobRepository.Preempt(ctx, jobType, workerID, now, strategy)
}

func withRacingQueue(env *testEnv, losses int) *racingRepo {
	repo := &racingRepo{JobRepository: env.core.queue.repo, losses: losses}
	env.core.queue = NewJobQueue(repo, env.logger,
		WithQueueClock(env.clock.Now), WithClaimStrategy(_const.TryPreemptStrategy, 0, 0))
	return repo
}

func TestWork_LostClaimRaceKeepsWorking(t *testing.T) {
	env := newTestEnv(t, WithWorkerLimit(3), WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 3)
	repo := withRacingQueue(env, 1)

	require.NoError(t, env.core.Register(TaskContractSync,
		func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
			return nil, nil
		}))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 4, repo.calls)
	for _, id := range ids {
		assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, id))
	}
}

func TestWork_ContendedTypeDoesNotHideOthers(t *testing.T) {
	env := newTestEnv(t, WithWorkerLimit(1), WithWorkerJobTypes([]string{TaskContractSync, TaskTokenRefresh}))
	enqueueN(t, env, TaskContractSync, 1)
	refresh := enqueueN(t, env, TaskTokenRefresh, 1)
	withRacingQueue(env, maxClaimRaces)

	fn := func(ctx context.Context, job domain.Job, report ProgressFunc) (json.RawMessage, error) {
		return nil, nil
	}
	require.NoError(t, env.core.Register(TaskContractSync, fn))
	require.NoError(t, env.core.Register(TaskTokenRefresh, fn))

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, _const.JobStatusSucceeded, statusOf(t, env, refresh[0]))
}

func TestWork_PersistentContentionStops(t *testing.T) {
	env := newTestEnv(t, WithWorkerLimit(3), WithWorkerJobTypes([]string{TaskContractSync}))
	ids := enqueueN(t, env, TaskContractSync, 2)
	withRacingQueue(env, 1000)

	processed, err := env.core.Work(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Len(t, env.logs.FilterMessage("claim contention, stopping worker loop").All(), 1)
	assert.Empty(t, env.logs.FilterMessage("no queued jobs left").All())
	for _, id := range ids {
		assert.Equal(t, _const.JobStatusQueued, statusOf(t, env, id))
	}
}
