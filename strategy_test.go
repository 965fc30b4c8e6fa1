package hauler_scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedScheduleStrategy(t *testing.T) {
	s := NewFixedScheduleStrategy(10*time.Millisecond, 2)
	assert.Equal(t, 2, s.Remaining())

	for i := 0; i < 2; i++ {
		d, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, 10*time.Millisecond, d)
	}
	assert.Zero(t, s.Remaining())

	_, err := s.Next()
	assert.ErrorIs(t, err, ErrClaimRetriesExhausted)

	neg := NewFixedScheduleStrategy(-time.Second, 1)
	d, err := neg.Next()
	require.NoError(t, err)
	assert.Zero(t, d)
}
