// Package daq wraps the NI-DAQmx C library for the analog channels of the
// PCI-6259 board: slow voltage outputs for gates and bias, and a clocked
// differential input for current readout through the I/V amplifier.
//
// Building requires the NI-DAQmx driver headers and library to be
// installed; there is no pkg-config file for it, so the linker flag is set
// manually.
package daq

// #cgo LDFLAGS: -lnidaqmx
//
// #include <stdlib.h>
// #include <NIDAQmx.h>
import "C"

import (
	"fmt"
	"unsafe"
)

type status C.int32

// Err decodes a DAQmx return code into a Go error using the extended error
// string the driver keeps per thread.
func (s status) Err() error {
	if s >= 0 {
		return nil
	}
	const bufSize = 2048
	buf := (*C.char)(C.malloc(bufSize))
	defer C.free(unsafe.Pointer(buf))
	C.DAQmxGetExtendedErrorInfo(buf, bufSize)
	return fmt.Errorf("daq: %s (code %d)", C.GoString(buf), int32(s))
}

// AnalogOutput is a single-channel voltage output task.
type AnalogOutput struct {
	handle C.TaskHandle
	closed bool
}

// NewAnalogOutput creates a voltage output task on the given physical
// channel (e.g. "Dev1/ao0") clamped to [minVolts, maxVolts].
func NewAnalogOutput(channel string, minVolts, maxVolts float64) (*AnalogOutput, error) {
	ao := &AnalogOutput{}
	if err := status(C.DAQmxCreateTask(nil, &ao.handle)).Err(); err != nil {
		return nil, err
	}
	cchan := C.CString(channel)
	defer C.free(unsafe.Pointer(cchan))
	rv := C.DAQmxCreateAOVoltageChan(
		ao.handle, cchan, nil,
		C.float64(minVolts), C.float64(maxVolts),
		C.DAQmx_Val_Volts, nil,
	)
	if err := status(rv).Err(); err != nil {
		C.DAQmxClearTask(ao.handle)
		return nil, err
	}
	return ao, nil
}

// Write drives the output to the given voltage immediately.
func (ao *AnalogOutput) Write(volts float64) error {
	rv := C.DAQmxWriteAnalogScalarF64(ao.handle, C.bool32(1), C.float64(10.0), C.float64(volts), nil)
	return status(rv).Err()
}

// Close zeroes the output and releases the task. Safe to call twice.
func (ao *AnalogOutput) Close() error {
	if ao.closed {
		return nil
	}
	werr := ao.Write(0)
	cerr := status(C.DAQmxClearTask(ao.handle)).Err()
	ao.closed = true
	if werr != nil {
		return werr
	}
	return cerr
}

// InputConfig configures a finite clocked acquisition on one differential
// input channel.
type InputConfig struct {
	Channel    string  // e.g. "Dev1/ai0"; high side in differential mode
	MinVolts   float64
	MaxVolts   float64
	SampleRate float64 // Hz
	Samples    int     // samples per acquisition
}

// AnalogInput is a finite, sample-clocked voltage input task. The task is
// committed at creation so repeated start/read/stop cycles are cheap.
type AnalogInput struct {
	handle  C.TaskHandle
	samples int
	closed  bool
}

// NewAnalogInput creates and commits a differential input task.
func NewAnalogInput(cfg InputConfig) (*AnalogInput, error) {
	ai := &AnalogInput{samples: cfg.Samples}
	if err := status(C.DAQmxCreateTask(nil, &ai.handle)).Err(); err != nil {
		return nil, err
	}
	cchan := C.CString(cfg.Channel)
	defer C.free(unsafe.Pointer(cchan))
	rv := C.DAQmxCreateAIVoltageChan(
		ai.handle, cchan, nil,
		C.DAQmx_Val_Diff,
		C.float64(cfg.MinVolts), C.float64(cfg.MaxVolts),
		C.DAQmx_Val_Volts, nil,
	)
	if err := status(rv).Err(); err != nil {
		C.DAQmxClearTask(ai.handle)
		return nil, err
	}
	rv = C.DAQmxCfgSampClkTiming(
		ai.handle, nil,
		C.float64(cfg.SampleRate),
		C.DAQmx_Val_Rising,
		C.DAQmx_Val_FiniteSamps,
		C.uInt64(cfg.Samples),
	)
	if err := status(rv).Err(); err != nil {
		C.DAQmxClearTask(ai.handle)
		return nil, err
	}
	rv = C.DAQmxTaskControl(ai.handle, C.DAQmx_Val_Task_Commit)
	if err := status(rv).Err(); err != nil {
		C.DAQmxClearTask(ai.handle)
		return nil, err
	}
	return ai, nil
}

// Acquire runs one finite acquisition: start, read every sample, wait for
// completion, stop. The returned slice has exactly the configured sample
// count.
func (ai *AnalogInput) Acquire() ([]float64, error) {
	if err := status(C.DAQmxStartTask(ai.handle)).Err(); err != nil {
		return nil, err
	}
	data := make([]float64, ai.samples)
	var read C.int32
	rv := C.DAQmxReadAnalogF64(
		ai.handle,
		C.int32(ai.samples),
		C.float64(10.0),
		C.DAQmx_Val_GroupByChannel,
		(*C.float64)(unsafe.Pointer(&data[0])),
		C.uInt32(ai.samples),
		&read,
		nil,
	)
	if err := status(rv).Err(); err != nil {
		C.DAQmxStopTask(ai.handle)
		return nil, err
	}
	if err := status(C.DAQmxWaitUntilTaskDone(ai.handle, C.float64(10.0))).Err(); err != nil {
		C.DAQmxStopTask(ai.handle)
		return nil, err
	}
	if err := status(C.DAQmxStopTask(ai.handle)).Err(); err != nil {
		return nil, err
	}
	if int(read) != ai.samples {
		return data[:read], fmt.Errorf("daq: short read: %d of %d samples", int(read), ai.samples)
	}
	return data, nil
}

// Close releases the task. Safe to call twice.
func (ai *AnalogInput) Close() error {
	if ai.closed {
		return nil
	}
	ai.closed = true
	return status(C.DAQmxClearTask(ai.handle)).Err()
}
