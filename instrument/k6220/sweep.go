package k6220

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mesolab/labrig/sweep"
)

// Sweep terminal states.
var (
	ErrSweepAborted = errors.New("k6220: sweep aborted")
	ErrSweepTimeout = errors.New("k6220: sweep timeout")
)

const (
	triggerSettleDelay = 200 * time.Millisecond
	bufferFillDelay    = time.Second
	statusPollInterval = 10 * time.Millisecond
)

// Arm initiates the voltmeter trigger layer and arms the source sweep. The
// 6220 needs a few seconds after arming before the first trigger lands.
func (p *Pair) Arm() error {
	if err := p.WriteSerial(":init:imm"); err != nil {
		return err
	}
	p.sleep(setupSettleDelay)
	if err := p.bus.Command(":sour:swe:arm"); err != nil {
		return err
	}
	p.sleep(3 * time.Second)
	return nil
}

// ExecuteSweep runs the armed trigger-link sweep runs times and returns one
// buffer of readings per run. Each run restarts the buffer, presses the
// front-panel TRIG key remotely, and polls the operation event register
// until the sweep finishes, aborts, or times out.
func (p *Pair) ExecuteSweep(ctx context.Context, runs int, timeout time.Duration) ([][]float64, error) {
	if runs < 1 {
		runs = 1
	}
	data := make([][]float64, 0, runs)
	for run := 0; run < runs; run++ {
		if err := p.WriteSerial(":trac:feed:cont next"); err != nil {
			return data, err
		}
		p.sleep(setupSettleDelay)
		if err := p.bus.Command("syst:key 13"); err != nil {
			return data, err
		}
		p.sleep(triggerSettleDelay)

		if err := p.waitForSweep(ctx, timeout); err != nil {
			return data, fmt.Errorf("run %d: %w", run, err)
		}

		p.sleep(bufferFillDelay)
		readings, err := p.ReadBuffer(false)
		if err != nil {
			return data, fmt.Errorf("run %d: %w", run, err)
		}
		data = append(data, readings)
	}
	return data, nil
}

// ExecuteBusSweep runs a bus-triggered sweep following a chunk plan from
// VoltmeterBufferPlan: for each chunk the buffer is restarted, one *TRG per
// point is relayed with the given spacing, and the chunk is drained into
// the result. Each run yields plan.Runs*plan.Size readings.
func (p *Pair) ExecuteBusSweep(
	ctx context.Context,
	plan sweep.Plan,
	runs int,
	pointDelay time.Duration,
) ([][]float64, error) {
	if runs < 1 {
		runs = 1
	}
	data := make([][]float64, 0, runs)
	for run := 0; run < runs; run++ {
		if err := p.bus.Command(":init:imm"); err != nil {
			return data, err
		}
		curve := make([]float64, 0, plan.Runs*plan.Size)
		for chunk := 0; chunk < plan.Runs; chunk++ {
			if err := p.WriteSerial(":trac:feed:cont next"); err != nil {
				return data, err
			}
			for i := 0; i < plan.Size; i++ {
				if err := ctx.Err(); err != nil {
					return data, err
				}
				p.sleep(pointDelay)
				if err := p.WriteSerial("*TRG"); err != nil {
					return data, err
				}
			}
			p.sleep(bufferFillDelay)
			readings, err := p.ReadBuffer(false)
			if err != nil {
				return data, fmt.Errorf("run %d chunk %d: %w", run, chunk, err)
			}
			curve = append(curve, readings...)
		}
		data = append(data, curve)
	}
	return data, nil
}

// waitForSweep polls the operation event register until the sweep reports
// done or aborted, the timeout elapses, or ctx is cancelled.
func (p *Pair) waitForSweep(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		status, err := p.SourceStatus()
		if err != nil {
			return err
		}
		switch {
		case status.SweepDone:
			return nil
		case status.SweepAborted:
			return ErrSweepAborted
		}
		if time.Since(start) > timeout {
			return ErrSweepTimeout
		}
		p.sleep(statusPollInterval)
	}
}
