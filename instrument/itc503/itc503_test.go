package itc503

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	cmds  []string
	temps map[string]string
}

func (f *fakeController) Command(format string, a ...any) error {
	f.cmds = append(f.cmds, fmt.Sprintf(format, a...))
	return nil
}

func (f *fakeController) Query(cmd string) (string, error) {
	f.cmds = append(f.cmds, cmd)
	if reply, ok := f.temps[cmd]; ok {
		return reply + "\r", nil
	}
	return cmd[:1] + "\r", nil
}

func TestInit(t *testing.T) {
	fake := &fakeController{}
	c := New(fake)
	require.NoError(t, c.Init())
	assert.Equal(t, []string{"Q0", "C3"}, fake.cmds)
}

func TestTemperatures(t *testing.T) {
	fake := &fakeController{temps: map[string]string{
		"R1": "R4.215",
		"R2": "R1.500",
		"R3": "R300.1",
	}}
	c := New(fake)
	temps, err := c.Temperatures()
	require.NoError(t, err)
	assert.Equal(t, [3]float64{4.215, 1.5, 300.1}, temps)
}

func TestSensorRange(t *testing.T) {
	c := New(&fakeController{})
	_, err := c.Sensor(0)
	require.Error(t, err)
	_, err = c.Sensor(4)
	require.Error(t, err)
}

func TestBadReply(t *testing.T) {
	fake := &fakeController{temps: map[string]string{"R1": "?"}}
	c := New(fake)
	_, err := c.Sensor(1)
	require.Error(t, err)
}
