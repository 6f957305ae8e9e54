package k2182

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	t       *testing.T
	cmds    []string
	replies map[string][]string
}

func newFakeBus(t *testing.T) *fakeBus {
	return &fakeBus{t: t, replies: map[string][]string{}}
}

func (f *fakeBus) Command(format string, a ...any) error {
	f.cmds = append(f.cmds, fmt.Sprintf(format, a...))
	return nil
}

func (f *fakeBus) Query(cmd string) (string, error) {
	q := f.replies[cmd]
	if len(q) == 0 {
		f.t.Fatalf("unexpected query %q", cmd)
	}
	f.replies[cmd] = q[1:]
	return q[0] + "\n", nil
}

func (f *fakeBus) push(cmd string, responses ...string) {
	f.replies[cmd] = append(f.replies[cmd], responses...)
}

func newTestVoltmeter(t *testing.T) (*Voltmeter, *fakeBus) {
	bus := newFakeBus(t)
	v := New(bus)
	v.sleep = func(time.Duration) {}
	return v, bus
}

func TestStatus(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	bus.push(":STAT:MEAS:COND?", "544") // bits 5 and 9
	s, err := v.Status()
	require.NoError(t, err)
	assert.True(t, s.ReadingAvailable)
	assert.True(t, s.BufferFull)
	assert.False(t, s.BufferHalfFull)
}

func TestChannelSetupFixedRange(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	cfg := ChannelConfig{NPLC: 1, Range: 0.1}
	require.NoError(t, v.ChannelSetup(cfg))
	assert.Contains(t, bus.cmds, ":sens1:volt:rang:auto 0")
	assert.Contains(t, bus.cmds, ":sens1:volt:rang 0.1")
	assert.Contains(t, bus.cmds, ":sens1:volt:dfil 0")
	assert.NotContains(t, bus.cmds, ":sens1:volt:rang:auto 1")
}

func TestChannelSetupAutoRange(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	require.NoError(t, v.ChannelSetup(ChannelConfig{NPLC: 1, AutoRange: true}))
	assert.Contains(t, bus.cmds, ":sens1:volt:rang:auto 1")
}

func TestBufferSetupGuard(t *testing.T) {
	v, _ := newTestVoltmeter(t)
	require.Error(t, v.BufferSetup(BufferLimit+1))
	require.NoError(t, v.BufferSetup(BufferLimit))
}

func TestReadBuffer(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	bus.push(":trac:data?", "+1.5e-06,-2.5e-06,+0.0e+00")
	readings, err := v.ReadBuffer()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5e-6, -2.5e-6, 0}, readings)
}

func TestSinglePointDirect(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	require.NoError(t, v.SinglePointSetup(3, 0))
	bus.push("sens:data?", "1.0", "2.0", "3.0")

	got, err := v.Measure(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-12)
}

func TestSinglePointBufferAveraged(t *testing.T) {
	v, bus := newTestVoltmeter(t)
	require.NoError(t, v.SinglePointSetup(100, 0.01))
	assert.Contains(t, bus.cmds, ":calc2:form mean")
	assert.Contains(t, bus.cmds, "trac:poin 100")

	bus.push(":STAT:MEAS:COND?", "0", "512")
	bus.push("calc2:imm?", "4.2e-05")
	got, err := v.Measure(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.2e-5, got, 1e-12)
}

func TestSinglePointRejectsSillyAverage(t *testing.T) {
	v, _ := newTestVoltmeter(t)
	require.Error(t, v.SinglePointSetup(1025, 0))
}

func TestMeasureBeforeSetup(t *testing.T) {
	v, _ := newTestVoltmeter(t)
	_, err := v.Measure(context.Background())
	require.Error(t, err)
}
