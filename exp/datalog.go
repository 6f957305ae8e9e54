package exp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Datalog is one run's pair of on-disk records: <name>.dat with the
// tab-separated measurement rows, and <name>.log with the run parameters.
// Every row is flushed and fsynced so the live monitor (and a crash) always
// sees complete lines.
type Datalog struct {
	RunID uuid.UUID
	dir   string
	name  string
	dat   *os.File
}

// NewDatalog creates the .dat file for a run. An empty name gets a
// timestamped one like the old scripts produced.
func NewDatalog(dir, name string) (*Datalog, error) {
	if name == "" {
		name = fmt.Sprintf("run_%d", time.Now().Unix())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dat, err := os.OpenFile(filepath.Join(dir, name+".dat"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Datalog{
		RunID: uuid.New(),
		dir:   dir,
		name:  name,
		dat:   dat,
	}, nil
}

// Path is the .dat file path, for the live monitor.
func (d *Datalog) Path() string {
	return filepath.Join(d.dir, d.name+".dat")
}

// logHeader is the fixed part of every .log file.
type logHeader struct {
	Experiment string    `toml:"experiment"`
	RunID      string    `toml:"run_id"`
	StartedAt  time.Time `toml:"started_at"`
}

// WriteParams dumps the experiment name and parameter struct to
// <name>.log before the run starts, so every data file is reproducible.
func (d *Datalog) WriteParams(experiment string, params any) error {
	f, err := os.Create(filepath.Join(d.dir, d.name+".log"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(logHeader{
		Experiment: experiment,
		RunID:      d.RunID.String(),
		StartedAt:  time.Now(),
	}); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(params)
}

// WriteRow appends one tab-separated row: the prefix value (field, gate,
// or zero for header rows) followed by the data values, all as %+.6e.
func (d *Datalog) WriteRow(prefix float64, values []float64) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%+.6e", prefix)
	for _, v := range values {
		fmt.Fprintf(&sb, "\t%+.6e", v)
	}
	sb.WriteByte('\n')
	if _, err := d.dat.WriteString(sb.String()); err != nil {
		return err
	}
	return d.dat.Sync()
}

// Close closes the .dat file.
func (d *Datalog) Close() error {
	return d.dat.Close()
}
