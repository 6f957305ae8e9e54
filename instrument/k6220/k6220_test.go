package k6220

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesolab/labrig/sweep"
)

// fakeBus scripts the 6220: commands are logged, serial-bridge reads pop
// from a FIFO, and direct queries pop from per-command FIFOs.
type fakeBus struct {
	t      *testing.T
	cmds   []string
	serial []string
	direct map[string][]string
}

func newFakeBus(t *testing.T) *fakeBus {
	return &fakeBus{t: t, direct: map[string][]string{}}
}

func (f *fakeBus) Command(format string, a ...any) error {
	f.cmds = append(f.cmds, fmt.Sprintf(format, a...))
	return nil
}

func (f *fakeBus) Query(cmd string) (string, error) {
	if strings.EqualFold(cmd, ":syst:comm:ser:ent?") {
		if len(f.serial) == 0 {
			f.t.Fatalf("unexpected serial read")
		}
		s := f.serial[0]
		f.serial = f.serial[1:]
		return s + "\n", nil
	}
	q := f.direct[cmd]
	if len(q) == 0 {
		f.t.Fatalf("unexpected query %q", cmd)
	}
	f.direct[cmd] = q[1:]
	return q[0] + "\n", nil
}

func (f *fakeBus) pushDirect(cmd string, responses ...string) {
	f.direct[cmd] = append(f.direct[cmd], responses...)
}

func (f *fakeBus) sentSerial(msg string) bool {
	want := fmt.Sprintf(":SYST:COMM:SER:SEND %q", msg)
	for _, c := range f.cmds {
		if c == want {
			return true
		}
	}
	return false
}

func newTestPair(t *testing.T) (*Pair, *fakeBus) {
	bus := newFakeBus(t)
	p := New(bus)
	p.sleep = func(time.Duration) {}
	return p, bus
}

func TestDecodeOperationStatus(t *testing.T) {
	s := decodeOperationStatus(1<<1 | 1<<5 | 1<<10)
	assert.True(t, s.SweepDone)
	assert.True(t, s.WaitingForTrigger)
	assert.True(t, s.Idle)
	assert.False(t, s.SweepAborted)
	assert.False(t, s.Sweeping)
}

func TestDecodeMeasurementStatus(t *testing.T) {
	s := decodeMeasurementStatus(1 << 9)
	assert.True(t, s.BufferFull)
	assert.False(t, s.ReadingAvailable)
}

func TestCheckNanovoltmeter(t *testing.T) {
	p, bus := newTestPair(t)
	bus.pushDirect(":sour:dcon:nvpr?", "1")
	require.NoError(t, p.CheckNanovoltmeter())

	bus.pushDirect(":sour:dcon:nvpr?", "0")
	assert.Error(t, p.CheckNanovoltmeter())
}

func TestWriteSerialWrapsMessage(t *testing.T) {
	p, bus := newTestPair(t)
	require.NoError(t, p.WriteSerial("*TRG"))
	assert.True(t, bus.sentSerial("*TRG"), "commands: %v", bus.cmds)
}

func TestReadBufferChunkedDrain(t *testing.T) {
	p, bus := newTestPair(t)

	var first, second []string
	for i := 1; i <= 16; i++ {
		first = append(first, fmt.Sprintf("%+.6e", float64(i)))
	}
	for i := 17; i <= 32; i++ {
		second = append(second, fmt.Sprintf("%+.6e", float64(i)))
	}
	bus.serial = []string{
		"512", // measurement register: buffer full
		"32",  // :trac:points?
		strings.Join(first, ",") + ",",
		strings.Join(second, ","),
	}

	readings, err := p.ReadBuffer(false)
	require.NoError(t, err)
	require.Len(t, readings, 32)
	assert.Equal(t, 1.0, readings[0])
	assert.Equal(t, 32.0, readings[31])
	assert.Empty(t, bus.serial, "all chunks drained")
	assert.True(t, bus.sentSerial(":trac:data?"))
}

func TestReadBufferRefusesPartialFill(t *testing.T) {
	p, bus := newTestPair(t)
	bus.serial = []string{
		"0",      // register: not full
		"100,90", // :trac:free? -> 90 bytes used
	}
	_, err := p.ReadBuffer(false)
	var notFull *BufferNotFullError
	require.ErrorAs(t, err, &notFull)
	assert.InDelta(t, 5.0, notFull.Points, 1e-9)
}

func TestVoltmeterBufferSetupRejectsOversize(t *testing.T) {
	p, _ := newTestPair(t)
	err := p.VoltmeterBufferSetup(1025)
	require.Error(t, err)
}

func TestVoltmeterBufferPlan(t *testing.T) {
	p, bus := newTestPair(t)
	plan, err := p.VoltmeterBufferPlan(3000)
	require.NoError(t, err)
	assert.Equal(t, sweep.Plan{Runs: 3, Size: 1000}, plan)
	assert.True(t, bus.sentSerial(":trac:cle"))
	assert.True(t, bus.sentSerial(":trac:feed sens1; poin 1000"))
}

func TestVoltmeterTrigSetupBusInitiates(t *testing.T) {
	p, bus := newTestPair(t)
	require.NoError(t, p.VoltmeterTrigSetup("bus", "inf"))
	assert.True(t, bus.sentSerial(":trig:coun inf"))
	assert.True(t, bus.sentSerial(":init:imm"))
}

func TestVoltmeterTrigSetupExtLeavesInitToArm(t *testing.T) {
	p, bus := newTestPair(t)
	require.NoError(t, p.VoltmeterTrigSetup("ext", "inf"))
	assert.False(t, bus.sentSerial(":init:imm"))
}

func TestBusTriggerInitPrecedesFirstTrigger(t *testing.T) {
	p, bus := newTestPair(t)
	require.NoError(t, p.VoltmeterTrigSetup("bus", "inf"))
	bus.serial = []string{
		"512", "2", "+1.0e+00,+2.0e+00",
	}
	_, err := p.ExecuteBusSweep(context.Background(), sweep.Plan{Runs: 1, Size: 2}, 1, 0)
	require.NoError(t, err)

	initAt, trgAt := -1, -1
	for i, c := range bus.cmds {
		switch c {
		case `:SYST:COMM:SER:SEND ":init:imm"`:
			if initAt < 0 {
				initAt = i
			}
		case `:SYST:COMM:SER:SEND "*TRG"`:
			if trgAt < 0 {
				trgAt = i
			}
		}
	}
	require.GreaterOrEqual(t, initAt, 0, "voltmeter trigger layer never initiated")
	require.GreaterOrEqual(t, trgAt, 0, "no bus trigger relayed")
	assert.Less(t, initAt, trgAt, "init must land before the first trigger")
}

func TestExecuteSweep(t *testing.T) {
	p, bus := newTestPair(t)
	// Two status polls: still sweeping, then done.
	bus.pushDirect(":STAT:OPER:EVEN?", "8", "2")
	bus.serial = []string{
		"512", // buffer full
		"3",   // points
		"+1.0e+00,+2.0e+00,+3.0e+00",
	}

	data, err := p.ExecuteSweep(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, []float64{1, 2, 3}, data[0])
	assert.Contains(t, bus.cmds, "syst:key 13")
}

func TestExecuteSweepAborted(t *testing.T) {
	p, bus := newTestPair(t)
	bus.pushDirect(":STAT:OPER:EVEN?", "4")
	_, err := p.ExecuteSweep(context.Background(), 1, time.Minute)
	require.ErrorIs(t, err, ErrSweepAborted)
}

func TestExecuteSweepTimeout(t *testing.T) {
	p, bus := newTestPair(t)
	bus.pushDirect(":STAT:OPER:EVEN?", "8", "8")
	_, err := p.ExecuteSweep(context.Background(), 1, 0)
	require.ErrorIs(t, err, ErrSweepTimeout)
}

func TestExecuteSweepCancelled(t *testing.T) {
	p, _ := newTestPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ExecuteSweep(ctx, 1, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecuteBusSweep(t *testing.T) {
	p, bus := newTestPair(t)
	plan := sweep.Plan{Runs: 2, Size: 3}
	bus.serial = []string{
		"512", "3", "+1.0e+00,+2.0e+00,+3.0e+00",
		"512", "3", "+4.0e+00,+5.0e+00,+6.0e+00",
	}

	data, err := p.ExecuteBusSweep(context.Background(), plan, 1, 0)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, data[0])

	var triggers int
	for _, c := range bus.cmds {
		if c == `:SYST:COMM:SER:SEND "*TRG"` {
			triggers++
		}
	}
	assert.Equal(t, 6, triggers, "one bus trigger per point")
}

func TestGeneralSetup(t *testing.T) {
	p, bus := newTestPair(t)
	bus.pushDirect(":sour:dcon:nvpr?", "1")
	require.NoError(t, p.GeneralSetup(false, true))
	assert.Contains(t, bus.cmds, ":sour:swe:abor")
	assert.Contains(t, bus.cmds, "*RST;*CLS")
	assert.Contains(t, bus.cmds, ":syst:beep:stat 0")
	assert.Contains(t, bus.cmds, ":disp:enab 1")
	assert.True(t, bus.sentSerial("*RST;*CLS;:abor"))
}

func TestSourceSweepSetupStepSign(t *testing.T) {
	p, bus := newTestPair(t)
	cfg := SweepConfig{Start: 1e-6, Stop: -1e-6, Step: 1e-8, Delay: 0.01, Compliance: 100}
	require.NoError(t, p.SourceSweepSetup(cfg))
	assert.Contains(t, bus.cmds, ":sour:curr:start 1.000000e-06; stop -1.000000e-06; step -1.000000e-08")
}

func TestSourceSweepSetupFixedRange(t *testing.T) {
	p, bus := newTestPair(t)
	cfg := SweepConfig{Start: 0, Stop: 1e-6, Step: 1e-8, FixedRange: true}
	require.NoError(t, p.SourceSweepSetup(cfg))
	assert.Contains(t, bus.cmds, ":sour:curr:rang 2.000000e-06")
	assert.Contains(t, bus.cmds, ":sour:swe:rang fix")
}

func TestSuitableCurrentRange(t *testing.T) {
	r, err := suitableCurrentRange(1.5e-6)
	require.NoError(t, err)
	assert.Equal(t, 2e-6, r)

	_, err = suitableCurrentRange(0.5)
	assert.Error(t, err)
}
