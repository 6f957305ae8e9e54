package k6220

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/query"

	"github.com/mesolab/labrig/sweep"
)

// The 2182A streams its buffer as comma-separated ASCII at 16 bytes per
// reading, and the 6220 serial bridge hands it back 256 bytes at a time.
const (
	bytesPerReading = 16
	serialChunkSize = 256
)

// BufferNotFullError reports a buffer drain attempted before the 2182A
// finished filling. Points is the fractional fill level reported by the
// instrument.
type BufferNotFullError struct {
	Points float64
}

func (e *BufferNotFullError) Error() string {
	return fmt.Sprintf("k6220: buffer not full, points = %g", e.Points)
}

// VoltmeterTrigSetup configures the 2182A trigger layer through the serial
// bridge. source is the SCPI trigger source (ext, bus, imm); count is the
// trigger count ("inf" for continuous). Bus triggering has no arm step, so
// the trigger layer is initiated here; the trigger-link path initiates in
// Arm instead.
func (p *Pair) VoltmeterTrigSetup(source, count string) error {
	cmds := []string{
		fmt.Sprintf(":trig:sour %s", source),
		fmt.Sprintf(":trig:coun %s", count),
		":trig:del:auto on",
	}
	if source == "bus" {
		cmds = append(cmds, ":init:imm")
	}
	for _, cmd := range cmds {
		if err := p.WriteSerial(cmd); err != nil {
			return err
		}
	}
	p.sleep(setupSettleDelay)
	return nil
}

// VoltmeterBufferSetup clears the 2182A buffer and sizes it for a single
// fill. Counts beyond the hardware limit need a chunk plan; use
// VoltmeterBufferPlan instead.
func (p *Pair) VoltmeterBufferSetup(points int) error {
	if points > sweep.DefaultDeviceLimit {
		return fmt.Errorf("k6220: %d points exceeds the %d-point buffer; plan chunks with sweep.Split",
			points, sweep.DefaultDeviceLimit)
	}
	if err := p.WriteSerial(":trac:cle"); err != nil {
		return err
	}
	if err := p.WriteSerial(fmt.Sprintf(":trac:feed sens1; poin %d", points)); err != nil {
		return err
	}
	p.sleep(setupSettleDelay)
	return nil
}

// VoltmeterBufferPlan splits an arbitrary point count into buffer-sized
// chunks, sizes the 2182A buffer for one chunk, and returns the plan the
// acquisition loop must follow.
func (p *Pair) VoltmeterBufferPlan(points int) (sweep.Plan, error) {
	plan, err := sweep.Split(points)
	if err != nil {
		return sweep.Plan{}, err
	}
	if err := p.WriteSerial(":trac:cle"); err != nil {
		return sweep.Plan{}, err
	}
	if err := p.WriteSerial(fmt.Sprintf(":trac:feed sens1; poin %d", plan.Size)); err != nil {
		return sweep.Plan{}, err
	}
	p.sleep(setupSettleDelay)
	return plan, nil
}

// ReadBuffer drains the 2182A buffer through the serial bridge and parses
// the readings. Unless ignoreFill is set it refuses to drain a buffer the
// voltmeter has not reported full.
func (p *Pair) ReadBuffer(ignoreFill bool) ([]float64, error) {
	if !ignoreFill {
		status, err := p.VoltmeterStatus()
		if err != nil {
			return nil, err
		}
		if !status.BufferFull {
			return nil, p.bufferFillError()
		}
	}
	points, err := query.Int(p.Voltmeter(), ":trac:points?")
	if err != nil {
		return nil, fmt.Errorf("buffer size query: %w", err)
	}

	// The bridge returns at most serialChunkSize bytes per read, so the
	// full ASCII dump takes ceil(points*16/256) reads.
	reads := (points*bytesPerReading + serialChunkSize - 1) / serialChunkSize
	if err := p.WriteSerial(":trac:data?"); err != nil {
		return nil, err
	}
	var raw strings.Builder
	for i := 0; i < reads; i++ {
		chunk, err := p.bus.Query(":syst:comm:ser:ent?")
		if err != nil {
			return nil, fmt.Errorf("buffer read %d/%d: %w", i+1, reads, err)
		}
		raw.WriteString(strings.TrimRight(chunk, "\r\n"))
	}

	fields := strings.Split(raw.String(), ",")
	readings := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad buffer reading %q: %w", f, err)
		}
		readings = append(readings, v)
	}
	return readings, nil
}

// bufferFillError asks the instrument how full the buffer actually is and
// wraps that in the error.
func (p *Pair) bufferFillError() error {
	free, err := p.AskSerial(":trac:free?")
	if err != nil {
		return err
	}
	parts := strings.Split(strings.TrimSpace(free), ",")
	if len(parts) < 2 {
		return fmt.Errorf("k6220: buffer not full, unparseable fill %q", free)
	}
	used, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fmt.Errorf("k6220: buffer not full, unparseable fill %q", free)
	}
	return &BufferNotFullError{Points: used / 18}
}
