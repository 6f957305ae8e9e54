package exp

import "github.com/mesolab/labrig/sweep"

// Limits describes one swept axis as start, stop, and step, the way the
// instruments think about sweeps.
type Limits struct {
	Start float64 `toml:"start"`
	Stop  float64 `toml:"stop"`
	Step  float64 `toml:"step"`
}

// Points is the number of points the sweep will produce, using the
// instrument's own rounding convention.
func (l Limits) Points() int {
	return sweep.EstimateSize(l.Start, l.Stop, l.Step)
}

// Values lays the axis out as evenly spaced values from Start to Stop
// inclusive, one per point.
func (l Limits) Values() []float64 {
	return Linspace(l.Start, l.Stop, l.Points())
}

// Scaled returns the limits divided by k, for converting a voltage axis to
// the current actually sourced through a bias resistor.
func (l Limits) Scaled(k float64) Limits {
	return Limits{Start: l.Start / k, Stop: l.Stop / k, Step: l.Step / k}
}

// Linspace returns n evenly spaced values from start to stop inclusive. A
// single point collapses to start.
func Linspace(start, stop float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	step := (stop - start) / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
