package k6220

import (
	"fmt"
	"math"
)

// currentRanges are the 6220's fixed output ranges in amps.
var currentRanges = []float64{2e-9, 2e-8, 2e-7, 2e-6, 2e-5, 2e-4, 0.002, 0.02, 0.1}

// suitableCurrentRange picks the smallest fixed range that covers amps.
func suitableCurrentRange(amps float64) (float64, error) {
	for _, r := range currentRanges {
		if r > math.Abs(amps) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("current %g A exceeds the largest 6220 range", amps)
}

// ChannelConfig configures voltage measurement on 2182A channel 1.
type ChannelConfig struct {
	NPLC          float64 // integration rate in power line cycles
	Range         float64 // measurement range in volts
	AutoRange     bool    // ignore Range and autorange (slow)
	LowPass       bool    // analog low pass filter
	DigitalFilter bool    // sweeping over a large range with this on will ruin your day
	FilterType    string  // "rep" or "mov"
	FilterCount   int
	FilterWindow  float64
}

// DefaultChannelConfig mirrors the front panel defaults used on the rig.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		NPLC:         1,
		Range:        1.0,
		FilterType:   "rep",
		FilterCount:  5,
		FilterWindow: 0.01,
	}
}

// VoltmeterChannelSetup configures channel 1 of the 2182A through the
// serial bridge.
func (p *Pair) VoltmeterChannelSetup(cfg ChannelConfig) error {
	if cfg.AutoRange {
		if err := p.WriteSerial(":sens1:volt:rang:auto 1"); err != nil {
			return err
		}
	} else {
		cmds := []string{
			":sens1:volt:rang:auto 0",
			fmt.Sprintf(":sens1:volt:rang %g", cfg.Range),
			fmt.Sprintf(":sens1:volt:lpas %d", boolInt(cfg.LowPass)),
		}
		for _, cmd := range cmds {
			if err := p.WriteSerial(cmd); err != nil {
				return err
			}
		}
	}
	if err := p.WriteSerial(fmt.Sprintf(":sens1:volt:nplc %g", cfg.NPLC)); err != nil {
		return err
	}
	if err := p.WriteSerial(fmt.Sprintf(":sens1:volt:dfil %d", boolInt(cfg.DigitalFilter))); err != nil {
		return err
	}
	if cfg.DigitalFilter {
		cmd := fmt.Sprintf(":sens1:volt:dfil:tcon %s; coun %d; wind %.2f",
			cfg.FilterType, cfg.FilterCount, cfg.FilterWindow)
		if err := p.WriteSerial(cmd); err != nil {
			return err
		}
	}
	p.sleep(setupSettleDelay)
	return nil
}

// SweepConfig configures a linear current sweep on the 6220.
type SweepConfig struct {
	Start             float64 // amps
	Stop              float64 // amps
	Step              float64 // amps, sign fixed automatically
	Delay             float64 // source delay, seconds
	Count             float64 // number of sweeps per arm
	Compliance        float64 // volts
	AbortOnCompliance bool
	FixedRange        bool // fixed range from the table instead of "best"
	AnalogFilter      bool
}

// SourceSweepSetup programs the sweep limits, range, compliance, and source
// delay on the 6220.
func (p *Pair) SourceSweepSetup(cfg SweepConfig) error {
	if cfg.Count == 0 {
		cfg.Count = 1
	}
	if err := p.bus.Command(":sour:swe:spac lin"); err != nil {
		return err
	}
	if cfg.FixedRange {
		r, err := suitableCurrentRange(math.Max(math.Abs(cfg.Start), math.Abs(cfg.Stop)))
		if err != nil {
			return err
		}
		if err := p.bus.Command(":sour:curr:rang %e", r); err != nil {
			return err
		}
		if err := p.bus.Command(":sour:swe:rang fix"); err != nil {
			return err
		}
	} else {
		if err := p.bus.Command(":sour:swe:rang best"); err != nil {
			return err
		}
	}
	if err := p.bus.Command(":sour:swe:coun %f", cfg.Count); err != nil {
		return err
	}
	step := cfg.Step
	if cfg.Start > cfg.Stop {
		step = -step
	}
	if err := p.bus.Command(":sour:curr:start %e; stop %e; step %e", cfg.Start, cfg.Stop, step); err != nil {
		return err
	}
	if err := p.bus.Command(":sour:curr:comp %f", cfg.Compliance); err != nil {
		return err
	}
	if err := p.bus.Command(":sour:swe:cab %d", boolInt(cfg.AbortOnCompliance)); err != nil {
		return err
	}
	if err := p.bus.Command(":sour:del %.3f", cfg.Delay); err != nil {
		return err
	}
	if cfg.AnalogFilter {
		if err := p.bus.Command(":sour:curr:filt:stat 1"); err != nil {
			return err
		}
	}
	return nil
}

// BiasConfig configures a fixed current output on the 6220.
type BiasConfig struct {
	Bias         float64 // amps
	AutoRange    bool
	Compliance   float64 // volts
	AnalogFilter bool
}

// BiasSetup programs a fixed output current instead of a sweep.
func (p *Pair) BiasSetup(cfg BiasConfig) error {
	if cfg.AutoRange {
		if err := p.bus.Command(":sour:curr:rang:auto on"); err != nil {
			return err
		}
	} else {
		r, err := suitableCurrentRange(cfg.Bias)
		if err != nil {
			return err
		}
		if err := p.bus.Command(":sour:curr:rang:auto off"); err != nil {
			return err
		}
		if err := p.bus.Command(":sour:curr:rang %e", r); err != nil {
			return err
		}
	}
	if err := p.bus.Command(":sour:curr %.15f", cfg.Bias); err != nil {
		return err
	}
	if err := p.bus.Command(":sour:curr:comp %e", cfg.Compliance); err != nil {
		return err
	}
	return p.bus.Command(":sour:curr:filt:stat %d", boolInt(cfg.AnalogFilter))
}

// SourceArmSetup configures the 6220 arm layer for trigger-link sweeps:
// accept immediately, output line 2 to the voltmeter, no arm-layer output
// trigger.
func (p *Pair) SourceArmSetup() error {
	cmds := []string{
		":arm:dir acc",
		":arm:sour imm",
		":arm:olin 2",
		":arm:outp none",
	}
	return p.commandAll(cmds)
}

// SourceTrigSetup configures the 6220 trigger layer to drive the trigger
// link: line 1 in, line 2 out, output trigger after the source delay.
func (p *Pair) SourceTrigSetup() error {
	cmds := []string{
		":trig:sour tlin",
		":trig:dir sour",
		":trig:ilin 1; olin 2",
		":trig:outp del",
	}
	return p.commandAll(cmds)
}

// SourceArmSetupBus is the bus-triggered variant used for sweeps longer
// than one buffer fill.
func (p *Pair) SourceArmSetupBus() error {
	cmds := []string{
		":arm:dir sour",
		":arm:sour imm",
		":arm:olin 2",
		":arm:outp none",
	}
	if err := p.commandAll(cmds); err != nil {
		return err
	}
	p.sleep(setupSettleDelay)
	return nil
}

// SourceTrigSetupBus suppresses the trigger-link output for bus-triggered
// sweeps.
func (p *Pair) SourceTrigSetupBus() error {
	cmds := []string{
		":trig:dir sour",
		":trig:sour tlin",
		":trig:ilin 1; olin 2",
		":trig:outp none",
	}
	if err := p.commandAll(cmds); err != nil {
		return err
	}
	p.sleep(setupSettleDelay)
	return nil
}

func (p *Pair) commandAll(cmds []string) error {
	for _, cmd := range cmds {
		if err := p.bus.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}
