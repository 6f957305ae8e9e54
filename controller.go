// Copyright (c) 2020–2024 The prologix developers. All rights reserved.
// Project site: https://github.com/gotmc/prologix
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package labrig drives the lab measurement rig: a Prologix-style GPIB
// controller-in-charge plus drivers for the instruments hanging off it
// (Keithley 6220/2182A, Oxford IPS120 and ITC503, NI DAQ).
package labrig

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Controller models a GPIB controller-in-charge attached through a serial
// device (Prologix VCP or USB, or an AR488).
type Controller struct {
	rw               io.ReadWriter
	br               *bufio.Reader
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	instTerm         string
	writeDelay       time.Duration
	debug            bool
	ar488            bool
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address
// using the given serial driver. Enable clear to send the Selected Device
// Clear (SDC) message to the GPIB address during setup.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		br:          bufio.NewReader(rw),
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
	}
	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must be 0-30)", c.primaryAddr)
	}
	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}

	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // don't wear out the EPROM with what follows
		)
	}
	cmds = append(cmds,
		addrCmd,
		"mode 1",          // controller mode
		"auto 0",          // no read-after-write
		"eoi 1",           // assert EOI with last character
		"eos 0",           // GPIB termination
		"read_tmo_ms 500", // read timeout
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // append eot_char when EOI detected
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range
// of 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithWriteDelay pauses between consecutive writes to the adapter. Some
// instruments (and the AR488) drop commands that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithInstrumentTerminator appends term to every instrument command ahead
// of the USB terminator. The Oxford IPS120 and ITC503 want a bare CR
// instead of the usual LF.
func WithInstrumentTerminator(term string) ControllerOption {
	return func(c *Controller) { c.instTerm = term }
}

// WithEOTChar sets the character the adapter appends when it detects EOI,
// which is also the character Query reads up to.
func WithEOTChar(ch byte) ControllerOption {
	return func(c *Controller) { c.eotChar = ch }
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands for compatibility with the
// Arduino-based AR488: no 'verbose 0' and no savecfg toggling.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// Write writes the given data to the instrument at the currently assigned
// GPIB address.
func (c *Controller) Write(p []byte) (n int, err error) {
	c.pause()
	return c.rw.Write(p)
}

// Read reads from the instrument at the currently assigned GPIB address
// into the given byte slice.
func (c *Controller) Read(p []byte) (n int, err error) {
	return c.br.Read(p)
}

// WriteString writes a string to the instrument at the currently assigned
// GPIB address, trimming whitespace and appending the terminator.
func (c *Controller) WriteString(s string) (n int, err error) {
	return c.Write([]byte(c.terminate(s)))
}

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the instrument at the currently assigned GPIB
// address.
func (c *Controller) Command(format string, a ...any) error {
	cmd := format
	if len(a) > 0 {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = c.terminate(cmd)
	if c.debug {
		log.Printf("cmd %q (%x)", cmd, cmd)
	}
	c.pause()
	_, err := fmt.Fprint(c.rw, cmd)
	return err
}

// Query sends the given SCPI/ASCII command to the instrument at the
// currently assigned GPIB address and reads back one response, up to and
// including the EOT character. With read-after-write disabled the adapter
// is told explicitly to read until EOI.
func (c *Controller) Query(cmd string) (string, error) {
	c.pause()
	_, err := fmt.Fprint(c.rw, c.terminate(cmd))
	if err != nil {
		return "", fmt.Errorf("error writing command: %s", err)
	}
	if !c.auto {
		readCmd := "++read eoi"
		c.pause()
		_, err = fmt.Fprintf(c.rw, "%s%c", readCmd, c.usbTerm)
		if err != nil {
			return "", fmt.Errorf("error sending `%s` command: %s", readCmd, err)
		}
	}
	s, err := c.br.ReadString(c.eotChar)
	if c.debug {
		log.Printf("query %q: %q", cmd, s)
	}
	if err == io.EOF {
		return s, nil
	}
	return s, err
}

// CommandController sends the given command to the GPIB adapter itself. Two
// plus signs are prepended so the adapter does not relay it over GPIB.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		log.Printf("cmd %q (%2x)", cmd, cmd)
	}
	c.pause()
	_, err := c.rw.Write([]byte(cmd))
	return err
}

// QueryController sends the given command to the GPIB adapter and returns
// its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := c.br.ReadString(c.eotChar)
	if c.debug {
		log.Printf("read data: %q", s)
	}
	return s, err
}

func (c *Controller) terminate(cmd string) string {
	return strings.TrimSpace(cmd) + c.instTerm + string(c.usbTerm)
}

func (c *Controller) pause() {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0
// and 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between
// 96 and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
