package exp

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/mesolab/labrig/instrument/k2182"
	"github.com/mesolab/labrig/instrument/k6220"
)

// BiasSource is the slice of the 6220 the fixed-bias experiment drives.
type BiasSource interface {
	GeneralSetup(beep, display bool) error
	BiasSetup(cfg k6220.BiasConfig) error
	Output(on bool) error
}

// PointMeter is a voltmeter that returns one averaged reading per call.
type PointMeter interface {
	GeneralSetup(beep, display bool) error
	ChannelSetup(cfg k2182.ChannelConfig) error
	SinglePointSetup(avg int, delay float64) error
	Measure(ctx context.Context) (float64, error)
}

// FixedBiasConfig holds the knobs for a voltage-vs-time run at constant
// current.
type FixedBiasConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`

	Bias       float64 `toml:"bias"`       // amps
	Compliance float64 `toml:"compliance"` // volts

	Average   int           `toml:"average"`    // readings per point
	ReadDelay float64       `toml:"read_delay"` // seconds between readings
	Interval  time.Duration `toml:"interval"`   // between logged points
	Points    int           `toml:"points"`     // total logged points
}

// FixedBias sources a constant current and logs the sample voltage over
// time. Each .dat row is elapsed seconds followed by the averaged voltage.
// The output is switched off on every exit path.
func FixedBias(ctx context.Context, log zerolog.Logger, src BiasSource, meter PointMeter, cfg FixedBiasConfig) (err error) {
	if cfg.Points < 1 {
		cfg.Points = 1
	}
	if cfg.Average < 1 {
		cfg.Average = 1
	}

	dl, err := NewDatalog(cfg.DataDir, cfg.Name)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dl))
	if err := dl.WriteParams("fixed_bias", cfg); err != nil {
		return err
	}
	log.Info().Str("run", dl.RunID.String()).Str("dat", dl.Path()).
		Float64("bias", cfg.Bias).Int("points", cfg.Points).Msg("starting fixed bias")

	if err := src.GeneralSetup(false, false); err != nil {
		return err
	}
	if err := src.BiasSetup(k6220.BiasConfig{
		Bias:       cfg.Bias,
		Compliance: cfg.Compliance,
	}); err != nil {
		return err
	}
	if err := meter.GeneralSetup(false, false); err != nil {
		return err
	}
	if err := meter.ChannelSetup(k2182.ChannelConfig{NPLC: 1, AutoRange: true}); err != nil {
		return err
	}
	if err := meter.SinglePointSetup(cfg.Average, cfg.ReadDelay); err != nil {
		return err
	}

	if err := src.Output(true); err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(func() error {
		return src.Output(false)
	}))

	start := time.Now()
	for i := 0; i < cfg.Points; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		volts, err := meter.Measure(ctx)
		if err != nil {
			return err
		}
		if err := dl.WriteRow(time.Since(start).Seconds(), []float64{volts}); err != nil {
			return err
		}
		if i < cfg.Points-1 {
			sleepFn(cfg.Interval)
		}
	}
	return nil
}
