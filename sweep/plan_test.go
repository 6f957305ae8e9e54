package sweep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSingleFill(t *testing.T) {
	for _, points := range []int{1, 2, 99, 100, 500, 1023, 1024} {
		plan, err := Split(points)
		require.NoError(t, err)
		assert.Equal(t, Plan{Runs: 1, Size: points}, plan, "points=%d", points)
	}
}

func TestSplitChunked(t *testing.T) {
	tests := []struct {
		points int
		want   Plan
	}{
		{2048, Plan{Runs: 2, Size: 1024}},
		{3000, Plan{Runs: 3, Size: 1000}},
		{1025, Plan{Runs: 5, Size: 205}},
		{4096, Plan{Runs: 4, Size: 1024}},
		{2000, Plan{Runs: 2, Size: 1000}},
	}
	for _, tt := range tests {
		plan, err := Split(tt.points)
		require.NoError(t, err, "points=%d", tt.points)
		assert.Equal(t, tt.want, plan, "points=%d", tt.points)
	}
}

func TestSplitInvariants(t *testing.T) {
	// Every feasible plan reproduces the point count exactly with the
	// largest chunk size in the window.
	for points := 1025; points <= 8192; points++ {
		plan, err := Split(points)
		var nf *NoFeasibleChunkingError
		if errors.As(err, &nf) {
			assert.Equal(t, points, nf.Points)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, points, plan.Runs*plan.Size, "points=%d", points)
		require.Greater(t, plan.Size, DefaultSearchFloor, "points=%d", points)
		require.LessOrEqual(t, plan.Size, DefaultDeviceLimit, "points=%d", points)
		for bigger := plan.Size + 1; bigger <= DefaultDeviceLimit; bigger++ {
			require.NotZero(t, points%bigger,
				"points=%d: %d divides evenly but Split chose %d", points, bigger, plan.Size)
		}
	}
}

func TestSplitNoFeasibleChunking(t *testing.T) {
	// 1031 is prime, so nothing in (99, 1024] divides it.
	_, err := Split(1031)
	var nf *NoFeasibleChunkingError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1031, nf.Points)
	assert.Equal(t, DefaultSearchFloor, nf.SearchFloor)
	assert.Equal(t, DefaultDeviceLimit, nf.DeviceLimit)
	assert.Contains(t, nf.Error(), "1031")
}

func TestSplitOptions(t *testing.T) {
	plan, err := Split(200, WithDeviceLimit(100), WithSearchFloor(9))
	require.NoError(t, err)
	assert.Equal(t, Plan{Runs: 2, Size: 100}, plan)

	// Window excludes every divisor of a prime.
	_, err = Split(211, WithDeviceLimit(100), WithSearchFloor(9))
	var nf *NoFeasibleChunkingError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 100, nf.DeviceLimit)
	assert.Equal(t, 9, nf.SearchFloor)
}

func TestSplitBadInput(t *testing.T) {
	_, err := Split(0)
	assert.Error(t, err)
	_, err = Split(-5)
	assert.Error(t, err)
	_, err = Split(100, WithSearchFloor(1024), WithDeviceLimit(1024))
	assert.Error(t, err)
	_, err = Split(100, WithDeviceLimit(0))
	assert.Error(t, err)
}
