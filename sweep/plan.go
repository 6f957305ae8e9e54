// Package sweep holds the buffer arithmetic shared by the measurement
// programs: splitting a sweep into reads the 2182A's 1024-point buffer can
// hold, and estimating how many points a linear sweep will produce.
package sweep

import "fmt"

// Default buffer geometry for the Keithley 2182A nanovoltmeter. Chunk sizes
// at or below the floor spend more time draining the buffer than filling it,
// so the planner refuses them. The floor was tuned on the actual rig; other
// instruments can override both via options.
const (
	DefaultDeviceLimit = 1024
	DefaultSearchFloor = 99
)

// Plan is a chunking of a sweep into equal buffer fills. Runs*Size always
// equals the requested point count.
type Plan struct {
	Runs int // number of fill-and-drain cycles
	Size int // points per cycle
}

// Option adjusts the buffer geometry used by Split.
type Option func(*planner)

type planner struct {
	limit int
	floor int
}

// WithDeviceLimit sets the maximum number of points the instrument buffer
// holds in one pass.
func WithDeviceLimit(limit int) Option {
	return func(p *planner) { p.limit = limit }
}

// WithSearchFloor sets the smallest chunk size Split will accept. Chunks at
// or below the floor are rejected as too slow.
func WithSearchFloor(floor int) Option {
	return func(p *planner) { p.floor = floor }
}

// NoFeasibleChunkingError reports that no chunk size in (SearchFloor,
// DeviceLimit] divides the requested point count evenly. Pick a different
// point count; there is no partial-chunk fallback.
type NoFeasibleChunkingError struct {
	Points      int
	SearchFloor int
	DeviceLimit int
}

func (e *NoFeasibleChunkingError) Error() string {
	return fmt.Sprintf("sweep: %d points has no factor <= %d and > %d",
		e.Points, e.DeviceLimit, e.SearchFloor)
}

// Split divides points into equally sized buffer fills no larger than the
// device limit. Counts that fit in a single fill come back unchanged as
// (1, points). Larger counts get the biggest exact divisor in (floor, limit],
// found by scanning downward from the limit; bigger chunks mean fewer
// fill-and-drain cycles and less fixed per-read latency.
//
// The product Runs*Size reproduces points exactly. If no divisor exists in
// the window, Split returns a *NoFeasibleChunkingError: the caller must pick
// a different point count rather than silently drop or pad samples.
func Split(points int, opts ...Option) (Plan, error) {
	p := planner{limit: DefaultDeviceLimit, floor: DefaultSearchFloor}
	for _, opt := range opts {
		opt(&p)
	}
	if points < 1 {
		return Plan{}, fmt.Errorf("sweep: point count must be positive, got %d", points)
	}
	if p.floor < 1 || p.limit < 1 || p.floor >= p.limit {
		return Plan{}, fmt.Errorf("sweep: invalid buffer window (%d, %d]", p.floor, p.limit)
	}

	if points <= p.limit {
		return Plan{Runs: 1, Size: points}, nil
	}
	for size := p.limit; size > p.floor; size-- {
		if points%size == 0 {
			return Plan{Runs: points / size, Size: size}, nil
		}
	}
	return Plan{}, &NoFeasibleChunkingError{
		Points:      points,
		SearchFloor: p.floor,
		DeviceLimit: p.limit,
	}
}
