package k6220

import "github.com/gotmc/query"

// OperationStatus is the decoded 6220 operation event register.
type OperationStatus struct {
	Calibrating       bool // B0
	SweepDone         bool // B1
	SweepAborted      bool // B2
	Sweeping          bool // B3
	WaveStarted       bool // B4
	WaitingForTrigger bool // B5
	WaitingForArm     bool // B6
	WaveStopped       bool // B7
	FilterSettled     bool // B8
	Idle              bool // B10
	RS232Error        bool // B11
}

func decodeOperationStatus(v int) OperationStatus {
	return OperationStatus{
		Calibrating:       v&(1<<0) != 0,
		SweepDone:         v&(1<<1) != 0,
		SweepAborted:      v&(1<<2) != 0,
		Sweeping:          v&(1<<3) != 0,
		WaveStarted:       v&(1<<4) != 0,
		WaitingForTrigger: v&(1<<5) != 0,
		WaitingForArm:     v&(1<<6) != 0,
		WaveStopped:       v&(1<<7) != 0,
		FilterSettled:     v&(1<<8) != 0,
		Idle:              v&(1<<10) != 0,
		RS232Error:        v&(1<<11) != 0,
	}
}

// SourceStatus reads and decodes the 6220 operation event register.
func (p *Pair) SourceStatus() (OperationStatus, error) {
	v, err := query.Int(p.bus, ":STAT:OPER:EVEN?")
	if err != nil {
		return OperationStatus{}, err
	}
	return decodeOperationStatus(v), nil
}

// MeasurementStatus is the decoded 2182A measurement event register.
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

func decodeMeasurementStatus(v int) MeasurementStatus {
	return MeasurementStatus{
		ReadingOverflow:  v&(1<<0) != 0,
		LowLimit1:        v&(1<<1) != 0,
		HighLimit1:       v&(1<<2) != 0,
		LowLimit2:        v&(1<<3) != 0,
		HighLimit2:       v&(1<<4) != 0,
		ReadingAvailable: v&(1<<5) != 0,
		TwoReadings:      v&(1<<7) != 0,
		BufferHalfFull:   v&(1<<8) != 0,
		BufferFull:       v&(1<<9) != 0,
	}
}

// VoltmeterStatus reads and decodes the 2182A measurement condition
// register through the serial bridge.
func (p *Pair) VoltmeterStatus() (MeasurementStatus, error) {
	v, err := query.Int(p.Voltmeter(), ":STAT:MEAS:COND?")
	if err != nil {
		return MeasurementStatus{}, err
	}
	return decodeMeasurementStatus(v), nil
}
