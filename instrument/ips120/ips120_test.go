package ips120

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSupply echoes command letters and plays back a scripted sequence of
// field readings for R7.
type fakeSupply struct {
	cmds   []string
	fields []string
}

func (f *fakeSupply) Command(format string, a ...any) error {
	f.cmds = append(f.cmds, fmt.Sprintf(format, a...))
	return nil
}

func (f *fakeSupply) Query(cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	if cmd == "R7" {
		if len(f.fields) == 0 {
			return "", fmt.Errorf("no scripted field for R7")
		}
		s := f.fields[0]
		f.fields = f.fields[1:]
		return s + "\r", nil
	}
	return cmd[:1] + "\r", nil
}

func newTestMagnet(t *testing.T, supply *fakeSupply) *Magnet {
	t.Helper()
	m := &Magnet{bus: supply, sleep: func(time.Duration) {}}
	return m
}

func TestInitSequence(t *testing.T) {
	supply := &fakeSupply{}
	m := newTestMagnet(t, supply)
	require.NoError(t, m.Init(context.Background(), 0.2))

	want := []string{"Q4", "C3", "M9", "H1", "T0.20000", "A0"}
	require.Equal(t, want, supply.cmds)
}

func TestGoToFieldAlreadyThere(t *testing.T) {
	supply := &fakeSupply{fields: []string{"R+0.500000"}}
	m := newTestMagnet(t, supply)
	require.NoError(t, m.GoToField(context.Background(), 0.5, 0))
	for _, c := range supply.cmds {
		assert.False(t, strings.HasPrefix(c, "J"), "set point sent for a field already reached")
	}
}

func TestGoToFieldSweeps(t *testing.T) {
	supply := &fakeSupply{fields: []string{"R+0.000000", "R+0.250000", "R+0.499999", "R+0.500000"}}
	m := newTestMagnet(t, supply)
	require.NoError(t, m.GoToField(context.Background(), 0.5, 0))
	assert.Contains(t, supply.cmds, "J0.50000")
	assert.Contains(t, supply.cmds, "A1")
	assert.Empty(t, supply.fields, "polled until the field arrived")
}

func TestGoToFieldCancelled(t *testing.T) {
	supply := &fakeSupply{fields: []string{"R+0.000000", "R+0.100000", "R+0.100000"}}
	m := newTestMagnet(t, supply)
	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(time.Duration) { cancel() }
	err := m.GoToField(ctx, 0.5, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEndAtZero(t *testing.T) {
	supply := &fakeSupply{fields: []string{"R+0.000001"}}
	m := newTestMagnet(t, supply)
	require.NoError(t, m.EndAtZero(context.Background()))
	assert.Contains(t, supply.cmds, "A0")
	assert.Contains(t, supply.cmds, "H0")
}

func TestFieldParsesReply(t *testing.T) {
	supply := &fakeSupply{fields: []string{"R-1.234560"}}
	m := newTestMagnet(t, supply)
	f, err := m.Field()
	require.NoError(t, err)
	assert.InDelta(t, -1.23456, f, 1e-9)
}

func TestExchangeRejectsWrongEcho(t *testing.T) {
	m := newTestMagnet(t, &fakeSupply{})
	badBus := busFunc(func(cmd string) (string, error) { return "X\r", nil })
	m.bus = badBus
	require.Error(t, m.exchange("C3"))
}

type busFunc func(cmd string) (string, error)

func (f busFunc) Command(format string, a ...any) error { return nil }
func (f busFunc) Query(cmd string) (string, error)      { return f(cmd) }
