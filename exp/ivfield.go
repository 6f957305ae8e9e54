package exp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/mesolab/labrig/instrument/k6220"
	"github.com/mesolab/labrig/sweep"
)

// sleepFn is swapped out in tests.
var sleepFn = time.Sleep

// IVvsFieldConfig holds every knob for a field-dependent IV run.
type IVvsFieldConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`

	Current Limits `toml:"current"` // amps
	Fields  Limits `toml:"fields"`  // tesla

	Repeats      int           `toml:"repeats"`      // curves averaged per field
	SourceDelay  float64       `toml:"source_delay"` // seconds per point
	Compliance   float64       `toml:"compliance"`   // volts
	FixedRange   bool          `toml:"fixed_range"`
	NPLC         float64       `toml:"nplc"`
	VoltRange    float64       `toml:"volt_range"`
	FieldSettle  time.Duration `toml:"field_settle"`
	SweepTimeout time.Duration `toml:"sweep_timeout"`
}

// IVvsField measures one averaged IV curve per magnetic field value. Each
// .dat row is the field followed by the voltage at every current point. The
// current output is switched off and the magnet swept to zero on every exit
// path.
func IVvsField(ctx context.Context, log zerolog.Logger, sw Sweeper, mag FieldController, cfg IVvsFieldConfig) (err error) {
	if cfg.Repeats < 1 {
		cfg.Repeats = 1
	}
	points := cfg.Current.Points()

	dl, err := NewDatalog(cfg.DataDir, cfg.Name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dl))
	if err := dl.WriteParams("iv_vs_field", cfg); err != nil {
		return err
	}
	log.Info().Str("run", dl.RunID.String()).Str("dat", dl.Path()).
		Int("points", points).Msg("starting IV vs field")

	plan, err := setupSweep(sw, cfg, points)
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
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		multierr.AppendInto(&err, sw.Output(false))
		multierr.AppendInto(&err, mag.EndAtZero(shutCtx))
	}()

	for _, field := range cfg.Fields.Values() {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info().Float64("field", field).Msg("setting field")
		if err := mag.GoToField(ctx, field, cfg.FieldSettle); err != nil {
			return err
		}
		curves, err := acquire(ctx, sw, plan, cfg.Repeats, cfg.SourceDelay, cfg.SweepTimeout)
		if err != nil {
			return fmt.Errorf("sweep at %g T: %w", field, err)
		}
		if err := dl.WriteRow(field, columnMean(curves)); err != nil {
			return err
		}
		log.Info().Float64("field", field).Int("curves", len(curves)).Msg("curve logged")
	}
	return nil
}

// setupSweep programs the pair for an IV sweep, choosing the trigger-link
// path when the curve fits the buffer and the chunked bus path when it does
// not. The returned plan has Runs == 1 on the trigger-link path.
func setupSweep(sw Sweeper, cfg IVvsFieldConfig, points int) (sweep.Plan, error) {
	var none sweep.Plan
	if err := sw.GeneralSetup(false, false); err != nil {
		return none, err
	}
	if err := sw.SourceSweepSetup(k6220.SweepConfig{
		Start:      cfg.Current.Start,
		Stop:       cfg.Current.Stop,
		Step:       cfg.Current.Step,
		Delay:      cfg.SourceDelay,
		Compliance: cfg.Compliance,
		FixedRange: cfg.FixedRange,
	}); err != nil {
		return none, err
	}
	ch := k6220.DefaultChannelConfig()
	if cfg.NPLC > 0 {
		ch.NPLC = cfg.NPLC
	}
	if cfg.VoltRange > 0 {
		ch.Range = cfg.VoltRange
	}
	if err := sw.VoltmeterChannelSetup(ch); err != nil {
		return none, err
	}

	if points > sweep.DefaultDeviceLimit {
		if err := sw.SourceArmSetupBus(); err != nil {
			return none, err
		}
		if err := sw.SourceTrigSetupBus(); err != nil {
			return none, err
		}
		plan, err := sw.VoltmeterBufferPlan(points)
		if err != nil {
			return none, err
		}
		if err := sw.VoltmeterTrigSetup("bus", "inf"); err != nil {
			return none, err
		}
		return plan, nil
	}

	if err := sw.SourceArmSetup(); err != nil {
		return none, err
	}
	if err := sw.SourceTrigSetup(); err != nil {
		return none, err
	}
	if err := sw.VoltmeterTrigSetup("ext", "inf"); err != nil {
		return none, err
	}
	if err := sw.VoltmeterBufferSetup(points); err != nil {
		return none, err
	}
	return sweep.Plan{Runs: 1, Size: points}, nil
}

// acquire runs one set of repeated curves on whichever path setupSweep
// chose.
func acquire(ctx context.Context, sw Sweeper, plan sweep.Plan, repeats int, sourceDelay float64, timeout time.Duration) ([][]float64, error) {
	if plan.Runs > 1 {
		pointDelay := time.Duration(sourceDelay * float64(time.Second))
		return sw.ExecuteBusSweep(ctx, plan, repeats, pointDelay)
	}
	if err := sw.Arm(); err != nil {
		return nil, err
	}
	return sw.ExecuteSweep(ctx, repeats, timeout)
}
