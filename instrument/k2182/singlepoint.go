package k2182

import (
	"context"
	"fmt"
	"time"

	"github.com/gotmc/query"
)

// directAveragingCutoff is where buffer averaging starts beating repeated
// single reads, measured on the actual instrument.
const directAveragingCutoff = 10

// SinglePointSetup prepares the voltmeter to hand back one averaged reading
// per Measure call. Small averages read the sense register directly; larger
// ones fill the buffer and let the instrument compute the mean. Averages
// beyond the buffer capacity are refused.
func (v *Voltmeter) SinglePointSetup(avg int, delay float64) error {
	switch {
	case avg < directAveragingCutoff:
		if err := v.TrigSetup("imm", "inf", -1); err != nil {
			return err
		}
		v.avg = avg
		v.delay = secondsToDuration(delay)
		v.measure = v.measureDirect
	case avg > BufferLimit:
		return fmt.Errorf("k2182: buffer is not that big: %d > %d", avg, BufferLimit)
	default:
		if err := v.TrigSetup("imm", "inf", secondsToDuration(delay)); err != nil {
			return err
		}
		if err := v.BufferSetup(avg); err != nil {
			return err
		}
		if err := v.bus.Command(":calc2:form mean"); err != nil {
			return err
		}
		if err := v.bus.Command(":calc2:stat on"); err != nil {
			return err
		}
		v.measure = v.measureBuffer
	}
	return v.bus.Command("init:imm")
}

// Measure returns one averaged reading using the strategy selected by
// SinglePointSetup.
func (v *Voltmeter) Measure(ctx context.Context) (float64, error) {
	if v.measure == nil {
		return 0, fmt.Errorf("k2182: call SinglePointSetup before Measure")
	}
	return v.measure(ctx)
}

// measureDirect averages repeated reads of the sense register.
func (v *Voltmeter) measureDirect(ctx context.Context) (float64, error) {
	var sum float64
	for i := 0; i < v.avg; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v.sleep(v.delay)
		r, err := query.Float64(v.bus, "sens:data?")
		if err != nil {
			return 0, err
		}
		sum += r
	}
	return sum / float64(v.avg), nil
}

// measureBuffer restarts the buffer, waits for it to fill, and reads the
// instrument-computed mean.
func (v *Voltmeter) measureBuffer(ctx context.Context) (float64, error) {
	if err := v.bus.Command("trac:feed:cont next"); err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		status, err := v.Status()
		if err != nil {
			return 0, err
		}
		if status.BufferFull {
			break
		}
		v.sleep(statusPollInterval)
	}
	return query.Float64(v.bus, "calc2:imm?")
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
