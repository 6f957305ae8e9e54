// Package k2182 drives a Keithley 2182A nanovoltmeter connected directly
// to the GPIB, without a 6220 in front of it.
package k2182

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/query"
)

// BufferLimit is the 2182A's onboard buffer capacity in readings.
const BufferLimit = 1024

const (
	setupSettleDelay   = 250 * time.Millisecond
	resetSettleDelay   = time.Second
	statusPollInterval = 10 * time.Millisecond
)

// Bus is the GPIB connection to the voltmeter. *labrig.Controller satisfies
// it.
type Bus interface {
	Command(format string, a ...any) error
	query.Querier
}

// Voltmeter is an open session with a 2182A.
type Voltmeter struct {
	bus   Bus
	sleep func(time.Duration)

	// single-point strategy selected by SinglePointSetup
	avg     int
	delay   time.Duration
	measure func(context.Context) (float64, error)
}

// New wraps an open GPIB connection to the 2182A.
func New(bus Bus) *Voltmeter {
	return &Voltmeter{bus: bus, sleep: time.Sleep}
}

// MeasurementStatus is the decoded 2182A measurement condition register.
type MeasurementStatus struct {
	ReadingOverflow  bool // B0
	LowLimit1        bool // B1
	HighLimit1       bool // B2
	LowLimit2        bool // B3
	HighLimit2       bool // B4
	ReadingAvailable bool // B5
	TwoReadings      bool // B7
	BufferHalfFull   bool // B8
	BufferFull       bool // B9
}

// Status reads and decodes the measurement condition register.
func (v *Voltmeter) Status() (MeasurementStatus, error) {
	raw, err := query.Int(v.bus, ":STAT:MEAS:COND?")
	if err != nil {
		return MeasurementStatus{}, err
	}
	return MeasurementStatus{
		ReadingOverflow:  raw&(1<<0) != 0,
		LowLimit1:        raw&(1<<1) != 0,
		HighLimit1:       raw&(1<<2) != 0,
		LowLimit2:        raw&(1<<3) != 0,
		HighLimit2:       raw&(1<<4) != 0,
		ReadingAvailable: raw&(1<<5) != 0,
		TwoReadings:      raw&(1<<7) != 0,
		BufferHalfFull:   raw&(1<<8) != 0,
		BufferFull:       raw&(1<<9) != 0,
	}, nil
}

// GeneralSetup resets and clears the instrument and sets the beeper and
// display state.
func (v *Voltmeter) GeneralSetup(beep, display bool) error {
	if err := v.bus.Command("*RST;*CLS;:abor"); err != nil {
		return err
	}
	v.sleep(resetSettleDelay)
	if err := v.bus.Command(":syst:beep:stat %d", boolInt(beep)); err != nil {
		return err
	}
	return v.bus.Command(":disp:enab %d", boolInt(display))
}

// ChannelConfig configures voltage measurement on channel 1.
type ChannelConfig struct {
	NPLC          float64
	Range         float64
	AutoRange     bool
	LowPass       bool
	DigitalFilter bool
	FilterType    string
	FilterCount   int
	FilterWindow  float64
}

// ChannelSetup configures channel 1.
func (v *Voltmeter) ChannelSetup(cfg ChannelConfig) error {
	if err := v.bus.Command(":sens1:volt:nplc %f", cfg.NPLC); err != nil {
		return err
	}
	if cfg.AutoRange {
		if err := v.bus.Command(":sens1:volt:rang:auto 1"); err != nil {
			return err
		}
	} else {
		if err := v.bus.Command(":sens1:volt:rang:auto 0"); err != nil {
			return err
		}
		if err := v.bus.Command(":sens1:volt:rang %g", cfg.Range); err != nil {
			return err
		}
	}
	if err := v.bus.Command(":sens1:volt:lpas %d", boolInt(cfg.LowPass)); err != nil {
		return err
	}
	if err := v.bus.Command(":sens1:volt:dfil %d", boolInt(cfg.DigitalFilter)); err != nil {
		return err
	}
	if cfg.DigitalFilter {
		err := v.bus.Command(":sens1:volt:dfil:tcon %s; coun %d; wind %.2f",
			cfg.FilterType, cfg.FilterCount, cfg.FilterWindow)
		if err != nil {
			return err
		}
	}
	v.sleep(setupSettleDelay)
	return nil
}

// TrigSetup configures the trigger layer. source is the SCPI trigger source
// (ext, bus, imm); count is the trigger count ("inf" for continuous). A
// negative delay selects auto delay.
func (v *Voltmeter) TrigSetup(source, count string, delay time.Duration) error {
	if err := v.bus.Command(":trig:sour %s", source); err != nil {
		return err
	}
	if err := v.bus.Command(":trig:coun %s", count); err != nil {
		return err
	}
	if delay < 0 {
		return v.bus.Command(":trig:del:auto on")
	}
	if err := v.bus.Command(":trig:del:auto off"); err != nil {
		return err
	}
	return v.bus.Command(":trig:del %.3f", delay.Seconds())
}

// BufferSetup clears the buffer and sizes it for a single fill.
func (v *Voltmeter) BufferSetup(points int) error {
	if points > BufferLimit {
		return fmt.Errorf("k2182: buffer is not that big: %d > %d", points, BufferLimit)
	}
	if err := v.bus.Command(":trac:cle"); err != nil {
		return err
	}
	if err := v.bus.Command(":trac:feed sens1"); err != nil {
		return err
	}
	if err := v.bus.Command("trac:poin %d", points); err != nil {
		return err
	}
	v.sleep(setupSettleDelay)
	return nil
}

// BusTrigSetup configures the buffer and trigger layers to store one
// reading per *TRG received, then initiates the trigger layer.
func (v *Voltmeter) BusTrigSetup(points int) error {
	if err := v.TrigSetup("bus", "inf", -1); err != nil {
		return err
	}
	if err := v.bus.Command(":init:imm"); err != nil {
		return err
	}
	return v.BufferSetup(points)
}

// ReadBuffer drains the buffer and parses the ASCII readings.
func (v *Voltmeter) ReadBuffer() ([]float64, error) {
	raw, err := v.bus.Query(":trac:data?")
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimSpace(raw), ",")
	readings := make([]float64, 0, len(fields))
	for _, f := range fields {
		r, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad buffer reading %q: %w", f, err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
