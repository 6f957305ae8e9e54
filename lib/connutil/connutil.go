// Package connutil brings up a GPIB session: locate or open the adapter's
// serial port, construct the controller, and hand back a cleanup func that
// parks the instrument and releases the port.
package connutil

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/soypat/cereal"
	"go.uber.org/multierr"

	"github.com/mesolab/labrig"
	"github.com/mesolab/labrig/lib/find"
)

// Conn describes one instrument connection.
type Conn struct {
	SerialPort string // empty means autodetect via lib/find
	GpibPAD    int
	Delay      time.Duration
}

// Setup opens the serial port and builds the controller. The returned
// cleanup returns local control to the front panel, flushes, and closes the
// port; its errors are joined so a failed front-panel handover does not
// hide a failed close.
func (c *Conn) Setup(opts ...labrig.ControllerOption) (*labrig.Controller, func() error, error) {
	port := c.SerialPort
	if port == "" {
		tty, err := find.Find(find.AdapterFilter)
		if err != nil {
			return nil, nil, fmt.Errorf("locating GPIB adapter: %w", err)
		}
		port = "/dev/" + tty
	}
	if !strings.HasPrefix(port, "/dev/") {
		port = "/dev/" + port
	}
	log.Printf("serial port = %s", port)

	cimpl := cereal.Tarm{}
	sp, err := cimpl.OpenPort(port, cereal.Mode{
		BaudRate:    115200,
		ReadTimeout: time.Second * 30,
	})
	if err != nil {
		return nil, nil, err
	}

	if c.Delay > 0 {
		opts = append(opts, labrig.WithWriteDelay(c.Delay))
	}

	gpib, err := labrig.NewController(sp, c.GpibPAD, false, opts...)
	if err != nil {
		sp.Close()
		return nil, nil, err
	}

	cleanup := func() (err error) {
		multierr.AppendInto(&err, gpib.FrontPanel(true))
		// cereal's port interface has no Flush; the tarm backend does
		if fl, ok := sp.(interface{ Flush() error }); ok {
			multierr.AppendInto(&err, fl.Flush())
		}
		multierr.AppendInto(&err, sp.Close())
		return err
	}
	return gpib, cleanup, nil
}
