// Package k6220 drives a Keithley 6220 current source paired with a 2182A
// nanovoltmeter. The source hangs on the GPIB; the voltmeter hangs off the
// source's RS-232 port plus a trigger-link cable, so every voltmeter command
// is relayed through the source's serial bridge.
package k6220

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotmc/query"
)

// Empirical settle times for the pair. Shaving these makes the RS-232
// bridge drop characters.
const (
	serialSendDelay  = 100 * time.Millisecond
	setupSettleDelay = 250 * time.Millisecond
	resetSettleDelay = time.Second
)

// Bus is the GPIB connection to the 6220. *labrig.Controller satisfies it.
type Bus interface {
	Command(format string, a ...any) error
	query.Querier
}

// Pair is an open session with the 6220/2182A stack.
type Pair struct {
	bus   Bus
	sleep func(time.Duration)
}

// New wraps an open GPIB connection to the 6220.
func New(bus Bus) *Pair {
	return &Pair{bus: bus, sleep: time.Sleep}
}

// CheckNanovoltmeter confirms the 2182A is present on the 6220's serial
// port.
func (p *Pair) CheckNanovoltmeter() error {
	present, err := query.Bool(p.bus, ":sour:dcon:nvpr?")
	if err != nil {
		return fmt.Errorf("nanovoltmeter presence query: %w", err)
	}
	if !present {
		return fmt.Errorf("nanovoltmeter not found on 6220 serial port")
	}
	return nil
}

// WriteSerial relays a command to the 2182A through the 6220's serial
// bridge.
func (p *Pair) WriteSerial(msg string) error {
	if err := p.bus.Command(":SYST:COMM:SER:SEND %q", msg); err != nil {
		return fmt.Errorf("serial send %q: %w", msg, err)
	}
	p.sleep(serialSendDelay)
	return nil
}

// ReadSerial reads whatever the 2182A last put on the serial bridge.
func (p *Pair) ReadSerial() (string, error) {
	return p.bus.Query(":SYST:COMM:SER:ENT?")
}

// AskSerial relays a query to the 2182A and reads its reply back through
// the bridge.
func (p *Pair) AskSerial(msg string) (string, error) {
	if err := p.WriteSerial(msg); err != nil {
		return "", err
	}
	return p.ReadSerial()
}

// Voltmeter exposes the relayed 2182A as a query.Querier so responses can
// be parsed with the usual helpers.
func (p *Pair) Voltmeter() query.Querier {
	return serialSide{p}
}

type serialSide struct{ p *Pair }

func (s serialSide) Query(cmd string) (string, error) { return s.p.AskSerial(cmd) }

// Output switches the 6220 output on or off.
func (p *Pair) Output(on bool) error {
	return p.bus.Command(":outp %d", boolInt(on))
}

// GeneralSetup aborts any previous sweep, resets and clears both
// instruments, and sets the beeper and display state on each.
func (p *Pair) GeneralSetup(beep, display bool) error {
	if err := p.bus.Command(":sour:swe:abor"); err != nil {
		return err
	}
	if err := p.bus.Command("*RST;*CLS"); err != nil {
		return err
	}
	p.sleep(resetSettleDelay)
	if err := p.CheckNanovoltmeter(); err != nil {
		return err
	}
	if err := p.WriteSerial("*RST;*CLS;:abor"); err != nil {
		return err
	}
	p.sleep(resetSettleDelay)
	if err := p.bus.Command(":syst:beep:stat %d", boolInt(beep)); err != nil {
		return err
	}
	if err := p.WriteSerial(fmt.Sprintf(":syst:beep:stat %d", boolInt(beep))); err != nil {
		return err
	}
	if err := p.bus.Command(":disp:enab %d", boolInt(display)); err != nil {
		return err
	}
	return p.WriteSerial(fmt.Sprintf(":disp:enab %d", boolInt(display)))
}

// TestCommand queries the 6220 and compares the reply against an expected
// value, for verifying a link after setup.
func (p *Pair) TestCommand(cmd, want string) error {
	got, err := p.bus.Query(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) != want {
		return fmt.Errorf("%s returned %q, want %q", cmd, strings.TrimSpace(got), want)
	}
	return nil
}

// SweepPoints asks the 6220 how many points it computed for the configured
// sweep. Callers cross-check this against sweep.EstimateSize before arming.
func (p *Pair) SweepPoints() (int, error) {
	return query.Int(p.bus, ":sour:swe:poin?")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
