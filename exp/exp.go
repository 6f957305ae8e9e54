// Package exp runs the measurement experiments: it owns the acquisition
// loops, the on-disk run records, and the safe-shutdown paths. Instrument
// sessions are passed in as narrow interfaces so the loops can be exercised
// without hardware.
package exp

import (
	"context"
	"time"

	"github.com/mesolab/labrig/instrument/k6220"
	"github.com/mesolab/labrig/sweep"
)

// Sweeper is the slice of the 6220/2182A pair the IV experiments drive.
// Sweeps that fit the 1024-point buffer run over the trigger link; longer
// ones run bus-triggered across a chunk plan.
type Sweeper interface {
	GeneralSetup(beep, display bool) error
	SourceSweepSetup(cfg k6220.SweepConfig) error
	SourceArmSetup() error
	SourceTrigSetup() error
	SourceArmSetupBus() error
	SourceTrigSetupBus() error
	VoltmeterChannelSetup(cfg k6220.ChannelConfig) error
	VoltmeterTrigSetup(source, count string) error
	VoltmeterBufferSetup(points int) error
	VoltmeterBufferPlan(points int) (sweep.Plan, error)
	SweepPoints() (int, error)
	Arm() error
	ExecuteSweep(ctx context.Context, runs int, timeout time.Duration) ([][]float64, error)
	ExecuteBusSweep(ctx context.Context, plan sweep.Plan, runs int, pointDelay time.Duration) ([][]float64, error)
	Output(on bool) error
}

// FieldController is the slice of the magnet supply the experiments drive.
type FieldController interface {
	GoToField(ctx context.Context, field float64, settle time.Duration) error
	EndAtZero(ctx context.Context) error
}

// VoltageOutput is a DAQ analog output channel.
type VoltageOutput interface {
	Write(volts float64) error
}

// Sampler is a DAQ analog input that returns one finite acquisition per
// call.
type Sampler interface {
	Acquire() ([]float64, error)
}

// mean of a non-empty slice.
func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// scale multiplies every element in place and returns the slice.
func scale(xs []float64, k float64) []float64 {
	for i := range xs {
		xs[i] *= k
	}
	return xs
}

// columnMean averages rows element-wise, truncated to the shortest row so a
// short hardware read cannot index past a later row.
func columnMean(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	for _, row := range rows[1:] {
		if len(row) < width {
			width = len(row)
		}
	}
	out := make([]float64, width)
	for _, row := range rows {
		for i := range out {
			out[i] += row[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(rows))
	}
	return out
}
