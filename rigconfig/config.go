// Package rigconfig loads the rig description: which serial port the GPIB
// adapter lives on, the bus addresses of the instruments, the analog
// amplifier gains, and the run defaults. Values come from defaults, then a
// TOML config file, then LABRIG_* environment variables, in that order.
package rigconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the full rig description.
type Config struct {
	SerialPort string `toml:"serial_port"` // Prologix/AR488 adapter, empty = autodetect

	SourceAddr int `toml:"source_addr"` // 6220 GPIB address
	VoltAddr   int `toml:"volt_addr"`   // standalone 2182 GPIB address
	MagnetAddr int `toml:"magnet_addr"` // IPS120 GPIB address
	TempAddr   int `toml:"temp_addr"`   // ITC503 GPIB address

	GateAmp    float64 `toml:"gate_amp"`    // gate amplifier gain after the DAQ
	CVAmp      float64 `toml:"cv_amp"`      // I/V amplifier gain, A/V
	CVResistor float64 `toml:"cv_resistor"` // series bias resistor, ohms

	GateChannel  string  `toml:"gate_channel"`  // DAQ AO for the gate
	BiasChannel  string  `toml:"bias_channel"`  // DAQ AO for the bias
	InputChannel string  `toml:"input_channel"` // DAQ AI for the current readout
	SampleRate   float64 `toml:"sample_rate"`   // Hz
	Samples      int     `toml:"samples"`       // per acquisition

	MagnetRate  float64       `toml:"magnet_rate"`  // tesla per minute
	FieldSettle time.Duration `toml:"field_settle"` // hold after reaching field
	GateDelay   time.Duration `toml:"gate_delay"`   // hold after each gate step

	DataDir string `toml:"data_dir"`
}

// Default returns the rig defaults.
func Default() Config {
	return Config{
		SourceAddr:   12,
		VoltAddr:     7,
		MagnetAddr:   25,
		TempAddr:     24,
		GateAmp:      9.1788,
		CVAmp:        -1e-6,
		CVResistor:   1e6,
		GateChannel:  "Dev1/ao0",
		BiasChannel:  "Dev1/ao1",
		InputChannel: "Dev1/ai0",
		SampleRate:   10000,
		Samples:      1000,
		MagnetRate:   0.3,
		FieldSettle:  10 * time.Second,
		GateDelay:    2 * time.Second,
		DataDir:      "data",
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "labrig", "config.toml")
}

// fileConfig mirrors Config with strings for the durations to keep the
// TOML readable.
type fileConfig struct {
	SerialPort *string `toml:"serial_port"`

	SourceAddr *int `toml:"source_addr"`
	VoltAddr   *int `toml:"volt_addr"`
	MagnetAddr *int `toml:"magnet_addr"`
	TempAddr   *int `toml:"temp_addr"`

	GateAmp    *float64 `toml:"gate_amp"`
	CVAmp      *float64 `toml:"cv_amp"`
	CVResistor *float64 `toml:"cv_resistor"`

	GateChannel  *string  `toml:"gate_channel"`
	BiasChannel  *string  `toml:"bias_channel"`
	InputChannel *string  `toml:"input_channel"`
	SampleRate   *float64 `toml:"sample_rate"`
	Samples      *int     `toml:"samples"`

	MagnetRate  *float64 `toml:"magnet_rate"`
	FieldSettle *string  `toml:"field_settle"`
	GateDelay   *string  `toml:"gate_delay"`

	DataDir *string `toml:"data_dir"`
}

// Load builds the config from defaults, the TOML file at path (or the
// default path; a missing file is not an error), and LABRIG_* environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, err
	default:
		var fc fileConfig
		if err := toml.Unmarshal(b, &fc); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := applyFile(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("apply %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configs the runners cannot work with.
func (c *Config) Validate() error {
	if c.GateAmp == 0 {
		return fmt.Errorf("gate_amp must be nonzero")
	}
	if c.CVAmp == 0 {
		return fmt.Errorf("cv_amp must be nonzero")
	}
	if c.MagnetRate <= 0 {
		return fmt.Errorf("magnet_rate must be positive")
	}
	if c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1")
	}
	return nil
}

func applyFile(cfg *Config, fc fileConfig) error {
	setString(fc.SerialPort, &cfg.SerialPort)
	setInt(fc.SourceAddr, &cfg.SourceAddr)
	setInt(fc.VoltAddr, &cfg.VoltAddr)
	setInt(fc.MagnetAddr, &cfg.MagnetAddr)
	setInt(fc.TempAddr, &cfg.TempAddr)
	setFloat(fc.GateAmp, &cfg.GateAmp)
	setFloat(fc.CVAmp, &cfg.CVAmp)
	setFloat(fc.CVResistor, &cfg.CVResistor)
	setString(fc.GateChannel, &cfg.GateChannel)
	setString(fc.BiasChannel, &cfg.BiasChannel)
	setString(fc.InputChannel, &cfg.InputChannel)
	setFloat(fc.SampleRate, &cfg.SampleRate)
	setInt(fc.Samples, &cfg.Samples)
	setFloat(fc.MagnetRate, &cfg.MagnetRate)
	if err := setDuration(fc.FieldSettle, "field_settle", &cfg.FieldSettle); err != nil {
		return err
	}
	if err := setDuration(fc.GateDelay, "gate_delay", &cfg.GateDelay); err != nil {
		return err
	}
	setString(fc.DataDir, &cfg.DataDir)
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LABRIG_SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("LABRIG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if err := envInt("LABRIG_SOURCE_ADDR", &cfg.SourceAddr); err != nil {
		return err
	}
	if err := envInt("LABRIG_MAGNET_ADDR", &cfg.MagnetAddr); err != nil {
		return err
	}
	if err := envInt("LABRIG_TEMP_ADDR", &cfg.TempAddr); err != nil {
		return err
	}
	if err := envFloat("LABRIG_GATE_AMP", &cfg.GateAmp); err != nil {
		return err
	}
	if err := envFloat("LABRIG_CV_AMP", &cfg.CVAmp); err != nil {
		return err
	}
	if err := envFloat("LABRIG_MAGNET_RATE", &cfg.MagnetRate); err != nil {
		return err
	}
	return nil
}

func setString(v *string, dst *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(v *int, dst *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(v *float64, dst *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(v *string, name string, dst *time.Duration) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = i
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = f
	return nil
}
