package exp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// DAQGateTestConfig holds the knobs for a DAQ-only gate leakage and
// resistance check: a fixed bias through a series resistor, the current
// read back through an I/V amplifier while the gate is stepped through a
// staircase.
type DAQGateTestConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`

	Bias      float64       `toml:"bias"`      // volts across the series resistor
	GateMax   float64       `toml:"gate_max"`  // staircase amplitude, volts at the sample
	GateStep  float64       `toml:"gate_step"` // volts
	GateAmp   float64       `toml:"gate_amp"`  // amplifier gain after the DAQ
	CVAmp     float64       `toml:"cv_amp"`    // I/V amplifier gain in A/V
	GateDelay time.Duration `toml:"gate_delay"`
}

// DAQGateTest steps the gate 0 to +max, back to 0, to -max, and back,
// reading the mean sample current at each step. Each .dat row is the gate
// voltage, the current, and the two-terminal resistance. The gate is
// returned to zero on every exit path.
func DAQGateTest(ctx context.Context, log zerolog.Logger, gate VoltageOutput, in Sampler, cfg DAQGateTestConfig) (err error) {
	if cfg.GateAmp == 0 {
		return fmt.Errorf("gate amplifier gain must be set")
	}
	if cfg.CVAmp == 0 {
		return fmt.Errorf("current amplifier gain must be set")
	}

	dl, err := NewDatalog(cfg.DataDir, cfg.Name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dl))
	if err := dl.WriteParams("daq_gate_test", cfg); err != nil {
		return err
	}

	gates := Staircase(cfg.GateMax, cfg.GateStep)
	log.Info().Str("run", dl.RunID.String()).Str("dat", dl.Path()).
		Int("steps", len(gates)).Msg("starting gate test")

	defer multierr.AppendInvoke(&err, multierr.Invoke(func() error {
		return gate.Write(0)
	}))

	for _, g := range gates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := gate.Write(g / cfg.GateAmp); err != nil {
			return err
		}
		sleepFn(cfg.GateDelay)
		samples, err := in.Acquire()
		if err != nil {
			return fmt.Errorf("acquire at %g V gate: %w", g, err)
		}
		current := mean(samples) * cfg.CVAmp
		resistance := cfg.Bias / current
		if err := dl.WriteRow(g, []float64{current, resistance}); err != nil {
			return err
		}
	}
	return nil
}

// Staircase lays out the gate test pattern 0 up to +max, back down to 0,
// down to -max, and back to 0, in step-sized increments.
func Staircase(max, step float64) []float64 {
	if max <= 0 || step <= 0 {
		return nil
	}
	up := Linspace(0, max, countSteps(max, step))
	var out []float64
	out = append(out, up...)
	for i := len(up) - 2; i >= 0; i-- {
		out = append(out, up[i])
	}
	for i := 1; i < len(up); i++ {
		out = append(out, -up[i])
	}
	for i := len(up) - 2; i >= 0; i-- {
		out = append(out, -up[i])
	}
	out[len(out)-1] = 0
	return out
}

func countSteps(max, step float64) int {
	n := int(max/step + 0.5)
	return n + 1
}
