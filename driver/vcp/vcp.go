// Package vcp opens the Virtual COM Port (VCP) serial connection to the
// Prologix GPIB-USB adapter.
package vcp

import (
	"time"

	"go.bug.st/serial"
)

// VCP is a serial connection to the adapter satisfying io.ReadWriter.
type VCP struct {
	port serial.Port
}

// NewVCP opens the named serial port at the adapter's fixed 115200 8N1
// settings.
func NewVCP(portName string) (*VCP, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(30 * time.Second); err != nil {
		port.Close()
		return nil, err
	}
	return &VCP{port: port}, nil
}

// Read reads from the serial port.
func (v *VCP) Read(p []byte) (n int, err error) {
	return v.port.Read(p)
}

// Write writes to the serial port.
func (v *VCP) Write(p []byte) (n int, err error) {
	return v.port.Write(p)
}

// Flush discards any unread data buffered on the port.
func (v *VCP) Flush() error {
	return v.port.ResetInputBuffer()
}

// Close closes the serial port.
func (v *VCP) Close() error {
	return v.port.Close()
}
