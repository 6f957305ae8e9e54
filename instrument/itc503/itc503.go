// Package itc503 drives an Oxford ITC503 temperature controller. Like the
// IPS120 it wants CR-terminated single-letter commands with command-letter
// echoes; open the controller with labrig.WithInstrumentTerminator("\r")
// and labrig.WithEOTChar('\r').
package itc503

import (
	"fmt"
	"strconv"
	"strings"
)

// Bus is the GPIB connection to the controller.
type Bus interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

// Controller is an open session with an ITC503.
type Controller struct {
	bus Bus
}

// New wraps an open GPIB connection. Call Init before reading.
func New(bus Bus) *Controller {
	return &Controller{bus: bus}
}

// Init sets normal feedback (no LF after replies) and remote operation
// with the front panel unlocked. Q0 sends no echo; C3 does.
func (c *Controller) Init() error {
	if err := c.bus.Command("Q0"); err != nil {
		return err
	}
	reply, err := c.bus.Query("C3")
	if err != nil {
		return err
	}
	if strings.TrimSpace(reply) != "C" {
		return fmt.Errorf("itc503: C3 echoed %q", strings.TrimSpace(reply))
	}
	return nil
}

// Temperatures reads the three sensor channels (R1, R2, R3) in kelvin.
func (c *Controller) Temperatures() ([3]float64, error) {
	var temps [3]float64
	for i := range temps {
		v, err := c.readParam(i + 1)
		if err != nil {
			return temps, err
		}
		temps[i] = v
	}
	return temps, nil
}

// Sensor reads a single sensor channel (1-3) in kelvin.
func (c *Controller) Sensor(n int) (float64, error) {
	if n < 1 || n > 3 {
		return 0, fmt.Errorf("itc503: sensor %d out of range 1-3", n)
	}
	return c.readParam(n)
}

func (c *Controller) readParam(n int) (float64, error) {
	cmd := fmt.Sprintf("R%d", n)
	reply, err := c.bus.Query(cmd)
	if err != nil {
		return 0, fmt.Errorf("itc503: %s: %w", cmd, err)
	}
	reply = strings.TrimSpace(reply)
	if len(reply) < 2 || reply[0] != 'R' {
		return 0, fmt.Errorf("itc503: %s returned %q", cmd, reply)
	}
	v, err := strconv.ParseFloat(reply[1:], 64)
	if err != nil {
		return 0, fmt.Errorf("itc503: %s returned %q: %w", cmd, reply, err)
	}
	return v, nil
}
