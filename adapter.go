package labrig

import (
	"fmt"
	"strconv"
	"strings"
)

// InstrumentAddress queries the GPIB address the adapter is currently
// talking to.
func (c *Controller) InstrumentAddress() (pad, sad int, err error) {
	s, err := c.QueryController("addr")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		pad, err = strconv.Atoi(fields[0])
		return pad, 0, err
	case 2:
		pad, err = strconv.Atoi(fields[0])
		if err != nil {
			return 0, 0, err
		}
		sad, err = strconv.Atoi(fields[1])
		return pad, sad, err
	}
	return 0, 0, fmt.Errorf("unexpected addr response %q", s)
}

// Version queries the adapter firmware version string.
func (c *Controller) Version() (string, error) {
	s, err := c.QueryController("ver")
	return strings.TrimSpace(s), err
}

// ReadAfterWrite reports whether the adapter automatically addresses the
// instrument to talk after each write.
func (c *Controller) ReadAfterWrite() (bool, error) {
	s, err := c.QueryController("auto")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(s) == "1", nil
}

// ReadTimeout queries the adapter read timeout in milliseconds.
func (c *Controller) ReadTimeout() (int, error) {
	s, err := c.QueryController("read_tmo_ms")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

// ServiceRequest reports whether the GPIB SRQ line is asserted.
func (c *Controller) ServiceRequest() (bool, error) {
	s, err := c.QueryController("srq")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(s) == "1", nil
}

// ClearDevice sends the Selected Device Clear (SDC) message to the
// currently addressed instrument.
func (c *Controller) ClearDevice() error {
	return c.CommandController("clr")
}

// FrontPanel returns the instrument to local front-panel control when
// enable is true, or locks it to remote operation when false.
func (c *Controller) FrontPanel(enable bool) error {
	if enable {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}
