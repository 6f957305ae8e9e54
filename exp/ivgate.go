package exp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/mesolab/labrig/sweep"
)

// IVvsGateConfig holds every knob for a gate-dependent IV run. The gate is
// driven through a DAQ output into an amplifier, so the programmed voltage
// is the sample gate voltage divided by GateAmp.
type IVvsGateConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`

	Current Limits `toml:"current"` // amps
	Gates   Limits `toml:"gates"`   // volts at the sample

	GateAmp   float64       `toml:"gate_amp"`   // amplifier gain after the DAQ
	GateDelay time.Duration `toml:"gate_delay"` // settle after each gate step

	Repeats      int           `toml:"repeats"`
	SourceDelay  float64       `toml:"source_delay"`
	Compliance   float64       `toml:"compliance"`
	FixedRange   bool          `toml:"fixed_range"`
	NPLC         float64       `toml:"nplc"`
	VoltRange    float64       `toml:"volt_range"`
	SweepTimeout time.Duration `toml:"sweep_timeout"`
}

// IVvsGate measures one averaged IV curve per gate voltage. Each .dat row
// is the gate voltage followed by the voltage at every current point. The
// current output is switched off and the gate returned to zero on every
// exit path.
func IVvsGate(ctx context.Context, log zerolog.Logger, sw Sweeper, gate VoltageOutput, cfg IVvsGateConfig) (err error) {
	if cfg.Repeats < 1 {
		cfg.Repeats = 1
	}
	if cfg.GateAmp == 0 {
		return fmt.Errorf("gate amplifier gain must be set")
	}
	points := cfg.Current.Points()

	dl, err := NewDatalog(cfg.DataDir, cfg.Name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dl))
	if err := dl.WriteParams("iv_vs_gate", cfg); err != nil {
		return err
	}
	log.Info().Str("run", dl.RunID.String()).Str("dat", dl.Path()).
		Int("points", points).Msg("starting IV vs gate")

	plan, err := setupSweep(sw, IVvsFieldConfig{
		Current:     cfg.Current,
		SourceDelay: cfg.SourceDelay,
		Compliance:  cfg.Compliance,
		FixedRange:  cfg.FixedRange,
		NPLC:        cfg.NPLC,
		VoltRange:   cfg.VoltRange,
	}, points)
	if err != nil {
		return err
	}
	got, err := sw.SweepPoints()
	if err != nil {
		return err
	}
	if err := sweep.VerifySize(points, got); err != nil {
		return err
	}

	if err := sw.Output(true); err != nil {
		return err
	}
	defer func() {
		multierr.AppendInto(&err, sw.Output(false))
		multierr.AppendInto(&err, gate.Write(0))
	}()

	for _, g := range cfg.Gates.Values() {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info().Float64("gate", g).Msg("setting gate")
		if err := gate.Write(g / cfg.GateAmp); err != nil {
			return err
		}
		sleepFn(cfg.GateDelay)
		curves, err := acquire(ctx, sw, plan, cfg.Repeats, cfg.SourceDelay, cfg.SweepTimeout)
		if err != nil {
			return fmt.Errorf("sweep at %g V gate: %w", g, err)
		}
		if err := dl.WriteRow(g, columnMean(curves)); err != nil {
			return err
		}
		log.Info().Float64("gate", g).Int("curves", len(curves)).Msg("curve logged")
	}
	return nil
}
