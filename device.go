package labrig

import "fmt"

// Device is one instrument on the controller's bus. A Prologix adapter
// relays traffic to a single GPIB address at a time, so each exchange
// retargets the adapter when the previous one addressed a different
// instrument, and swaps in the device's own terminators.
type Device struct {
	c        *Controller
	pad      int
	instTerm string
	eotChar  byte
}

// DeviceOption applies an option to a device.
type DeviceOption func(*Device)

// WithDeviceTerminator appends term to every command sent to this device.
func WithDeviceTerminator(term string) DeviceOption {
	return func(d *Device) { d.instTerm = term }
}

// WithDeviceEOT sets the EOT character used while this device is selected.
func WithDeviceEOT(ch byte) DeviceOption {
	return func(d *Device) { d.eotChar = ch }
}

// Device returns a handle for the instrument at the given primary address,
// sharing this controller's adapter.
func (c *Controller) Device(pad int, opts ...DeviceOption) (*Device, error) {
	if !isPrimaryAddressValid(pad) {
		return nil, fmt.Errorf("invalid primary address %d (must be 0-30)", pad)
	}
	d := &Device{
		c:        c,
		pad:      pad,
		instTerm: c.instTerm,
		eotChar:  c.eotChar,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// use points the adapter at this device and installs its terminators.
func (d *Device) use() error {
	if d.c.primaryAddr != d.pad {
		d.c.primaryAddr = d.pad
		d.c.hasSecondaryAddr = false
		if err := d.c.CommandController(fmt.Sprintf("addr %d", d.pad)); err != nil {
			return err
		}
	}
	d.c.instTerm = d.instTerm
	if d.c.eotChar != d.eotChar {
		d.c.eotChar = d.eotChar
		if err := d.c.CommandController(fmt.Sprintf("eot_char %d", d.eotChar)); err != nil {
			return err
		}
	}
	return nil
}

// Command formats and sends a command to this device.
func (d *Device) Command(format string, a ...any) error {
	if err := d.use(); err != nil {
		return err
	}
	return d.c.Command(format, a...)
}

// Query sends a command to this device and reads back one response.
func (d *Device) Query(cmd string) (string, error) {
	if err := d.use(); err != nil {
		return "", err
	}
	return d.c.Query(cmd)
}
