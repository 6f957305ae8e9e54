package sweep

import (
	"fmt"
	"math"
)

// SizeMismatchError reports that the point count estimated by EstimateSize
// disagrees with the count the instrument itself computed for the same
// sweep. Surfaced before any hardware I/O begins; mismatched buffers would
// otherwise hang the acquisition loop.
type SizeMismatchError struct {
	Expected int // our estimate
	Actual   int // count reported by the instrument
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("sweep: buffer sizes do not match: %d, %d", e.Expected, e.Actual)
}

// EstimateSize predicts how many points a linear sweep from start to stop
// with the given step will produce, matching the 6220's internal point
// count: floor of |start-stop|/step, plus 2 when the fractional remainder
// reaches half a step, plus 1 otherwise (the start point is always
// included).
//
// This does not always match the Keithley's own calculation at exact
// half-step remainders, so treat it as an estimate and confirm it against
// the instrument's reported sweep size with VerifySize.
func EstimateSize(start, stop, step float64) int {
	n := math.Abs((start - stop) / step)
	if math.Mod(n, 1) >= 0.5 {
		return int(math.Floor(n)) + 2
	}
	return int(math.Floor(n)) + 1
}

// VerifySize cross-checks an estimated point count against the count the
// hardware reports. A mismatch is a configuration error for the current run.
func VerifySize(expected, actual int) error {
	if expected != actual {
		return &SizeMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
