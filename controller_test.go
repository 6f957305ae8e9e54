package labrig

import (
	"bytes"
	"strings"
	"testing"
)

// fakePort records writes and serves canned responses.
type fakePort struct {
	wrote bytes.Buffer
	reply bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) { return f.wrote.Write(p) }
func (f *fakePort) Read(p []byte) (int, error)  { return f.reply.Read(p) }

func (f *fakePort) lines() []string {
	s := strings.TrimSuffix(f.wrote.String(), "\n")
	return strings.Split(s, "\n")
}

func TestNewControllerSetup(t *testing.T) {
	port := &fakePort{}
	_, err := NewController(port, 22, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"++verbose 0",
		"++savecfg 0",
		"++addr 22",
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 0",
		"++read_tmo_ms 500",
		"++eot_char 10",
		"++eot_enable 1",
		"++savecfg 1",
		"++clr",
	}
	got := port.lines()
	if len(got) != len(want) {
		t.Fatalf("wrote %d commands, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewControllerAR488SkipsEEPROM(t *testing.T) {
	port := &fakePort{}
	_, err := NewController(port, 4, false, WithAR488())
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range port.lines() {
		if strings.HasPrefix(line, "++savecfg") || strings.HasPrefix(line, "++verbose") {
			t.Errorf("AR488 setup sent %q", line)
		}
	}
}

func TestNewControllerAddressValidation(t *testing.T) {
	if _, err := NewController(&fakePort{}, 31, false); err == nil {
		t.Error("primary address 31 accepted")
	}
	if _, err := NewController(&fakePort{}, -1, false); err == nil {
		t.Error("primary address -1 accepted")
	}
	if _, err := NewController(&fakePort{}, 22, false, WithSecondaryAddress(95)); err == nil {
		t.Error("secondary address 95 accepted")
	}
}

func TestQuery(t *testing.T) {
	port := &fakePort{}
	c, err := NewController(port, 22, false)
	if err != nil {
		t.Fatal(err)
	}
	port.wrote.Reset()
	port.reply.WriteString("KEITHLEY INSTRUMENTS INC.,MODEL 6220\n")

	got, err := c.Query("*idn?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "KEITHLEY INSTRUMENTS INC.,MODEL 6220\n" {
		t.Errorf("response = %q", got)
	}
	lines := port.lines()
	if len(lines) != 2 || lines[0] != "*idn?" || lines[1] != "++read eoi" {
		t.Errorf("wrote %q, want command then ++read eoi", lines)
	}
}

func TestCommandFormatsAndTerminates(t *testing.T) {
	port := &fakePort{}
	c, err := NewController(port, 22, false)
	if err != nil {
		t.Fatal(err)
	}
	port.wrote.Reset()

	if err := c.Command(":sour:curr %0.3e", 1.5e-6); err != nil {
		t.Fatal(err)
	}
	if got := port.wrote.String(); got != ":sour:curr 1.500e-06\n" {
		t.Errorf("wrote %q", got)
	}
}

func TestInstrumentTerminator(t *testing.T) {
	port := &fakePort{}
	c, err := NewController(port, 20, false, WithInstrumentTerminator("\r"))
	if err != nil {
		t.Fatal(err)
	}
	port.wrote.Reset()

	if err := c.Command("R7"); err != nil {
		t.Fatal(err)
	}
	if got := port.wrote.String(); got != "R7\r\n" {
		t.Errorf("wrote %q, want CR before USB terminator", got)
	}
}

func TestAdapterQueries(t *testing.T) {
	port := &fakePort{}
	c, err := NewController(port, 22, false)
	if err != nil {
		t.Fatal(err)
	}

	port.reply.WriteString("22 101\n")
	pad, sad, err := c.InstrumentAddress()
	if err != nil {
		t.Fatal(err)
	}
	if pad != 22 || sad != 101 {
		t.Errorf("addr = %d %d", pad, sad)
	}

	port.reply.WriteString("500\n")
	tmo, err := c.ReadTimeout()
	if err != nil {
		t.Fatal(err)
	}
	if tmo != 500 {
		t.Errorf("read timeout = %d", tmo)
	}

	port.reply.WriteString("1\n")
	auto, err := c.ReadAfterWrite()
	if err != nil {
		t.Fatal(err)
	}
	if !auto {
		t.Error("read-after-write = false, want true")
	}
}
