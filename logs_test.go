package hauler_scheduler

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WithAndFields(t *testing.T) {
	zc, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(zc)).With(TenantField(int64p(42)), TaskField(TaskContractSync))

	logger.Warn("task evaluation failed", JobField(7), ErrField(errors.New("boom")))
	NewZapLogger(zap.New(zc)).Info("global", TenantField(nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(42), ctx["tenant_id"])
	assert.Equal(t, TaskContractSync, ctx["task"])
	assert.Equal(t, int64(7), ctx["job_id"])
	assert.Equal(t, "boom", ctx["err"])

	assert.Equal(t, "global", entries[1].ContextMap()["tenant_id"])
}
