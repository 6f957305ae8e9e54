// Package ips120 drives an Oxford IPS120-10 superconducting magnet power
// supply. The instrument speaks a bespoke single-letter protocol terminated
// by CR, and echoes the command letter after every write; open the GPIB
// controller with labrig.WithInstrumentTerminator("\r") and
// labrig.WithEOTChar('\r') before handing it to New.
package ips120

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bus is the GPIB connection to the supply.
type Bus interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

const (
	// fieldTolerance is how close the reported field must be to the set
	// point before a sweep counts as finished.
	fieldTolerance = 1e-6

	// switchHeaterWait is how long the persistent-switch heater takes to
	// open after H1.
	switchHeaterWait = 30 * time.Second

	fieldPollInterval = 100 * time.Millisecond
	holdSettleDelay   = 2 * time.Second
)

// Magnet is an open session with the supply, initialized for remote
// operation with the switch heater on.
type Magnet struct {
	bus   Bus
	sleep func(time.Duration)
}

// New wraps an open GPIB connection to the supply. Call Init before any
// field operation.
func New(bus Bus) *Magnet {
	return &Magnet{bus: bus, sleep: time.Sleep}
}

// Init puts the supply in remote extended-resolution mode, displays field
// in tesla, turns on the switch heater (and waits the thirty seconds it
// takes to open), sets the sweep rate in tesla per minute, and unclamps to
// hold. The magnet is ready to use when Init returns.
func (m *Magnet) Init(ctx context.Context, rate float64) error {
	// Q4 sets extended resolution and is the one command with no echo.
	if err := m.bus.Command("Q4"); err != nil {
		return err
	}
	for _, cmd := range []string{
		"C3", // remote, front panel unlocked
		"M9", // display field in tesla
		"H1", // switch heater on
	} {
		if err := m.exchange(cmd); err != nil {
			return err
		}
	}
	m.sleep(switchHeaterWait)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.SetRate(rate); err != nil {
		return err
	}
	m.sleep(500 * time.Millisecond)
	if err := m.exchange("A0"); err != nil { // hold
		return err
	}
	m.sleep(holdSettleDelay)
	return nil
}

// SetRate changes the sweep rate in tesla per minute.
func (m *Magnet) SetRate(rate float64) error {
	return m.exchange(fmt.Sprintf("T%.5f", rate))
}

// Field reads the present field in tesla (R7).
func (m *Magnet) Field() (float64, error) {
	return m.readParam(7)
}

// SetPoint reads the programmed target field in tesla (R8).
func (m *Magnet) SetPoint() (float64, error) {
	return m.readParam(8)
}

// GoToField sweeps the field to the given value in tesla and blocks until
// the supply reports it reached, then waits settle before returning. The
// set-point resolution is 1e-5 T. A field already at the target is left
// alone.
func (m *Magnet) GoToField(ctx context.Context, field float64, settle time.Duration) error {
	current, err := m.Field()
	if err != nil {
		return err
	}
	if abs(current-field) <= fieldTolerance {
		m.sleep(settle)
		return nil
	}
	if err := m.exchange(fmt.Sprintf("J%.5f", field)); err != nil {
		return err
	}
	if err := m.exchange("A1"); err != nil { // go to set point
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		current, err = m.Field()
		if err != nil {
			return err
		}
		if abs(current-field) < fieldTolerance {
			break
		}
		m.sleep(fieldPollInterval)
	}
	m.sleep(settle)
	return nil
}

// EndAtZero sweeps the field back to zero, holds, and turns the switch
// heater off. Call it at the end of an experiment before releasing the
// supply.
func (m *Magnet) EndAtZero(ctx context.Context) error {
	if err := m.GoToField(ctx, 0, 0); err != nil {
		return err
	}
	m.sleep(holdSettleDelay)
	if err := m.exchange("A0"); err != nil {
		return err
	}
	return m.exchange("H0")
}

// exchange sends a command and discards the echoed command letter the
// supply returns.
func (m *Magnet) exchange(cmd string) error {
	reply, err := m.bus.Query(cmd)
	if err != nil {
		return fmt.Errorf("ips120: %s: %w", cmd, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" || reply[0] != cmd[0] {
		return fmt.Errorf("ips120: %s echoed %q", cmd, reply)
	}
	return nil
}

// readParam issues Rn and parses the numeric payload after the echoed R.
func (m *Magnet) readParam(n int) (float64, error) {
	cmd := fmt.Sprintf("R%d", n)
	reply, err := m.bus.Query(cmd)
	if err != nil {
		return 0, fmt.Errorf("ips120: %s: %w", cmd, err)
	}
	reply = strings.TrimSpace(reply)
	if len(reply) < 2 || reply[0] != 'R' {
		return 0, fmt.Errorf("ips120: %s returned %q", cmd, reply)
	}
	v, err := strconv.ParseFloat(reply[1:], 64)
	if err != nil {
		return 0, fmt.Errorf("ips120: %s returned %q: %w", cmd, reply, err)
	}
	return v, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
