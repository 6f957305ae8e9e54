// Package monitor is the live view of a running experiment: it watches the
// run's .dat file and redraws the latest curve and run statistics on every
// appended row. Pressing q cancels the experiment context, which lets the
// runner walk its safe-shutdown path.
package monitor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	traceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// Options configures the monitor.
type Options struct {
	Path      string             // the run's .dat file
	Title     string             // experiment name for the header
	TotalRows int                // expected row count, 0 if unknown
	Cancel    context.CancelFunc // called when the user aborts with q
}

// Model is the Bubble Tea model for the monitor.
type Model struct {
	opts    Options
	watcher *fsnotify.Watcher
	prog    progress.Model
	start   time.Time

	rows    int
	prefix  float64
	last    []float64
	readErr error
	aborted bool
	width   int
}

// fileChangedMsg is sent when fsnotify reports a write to the .dat file.
type fileChangedMsg struct{}

// rowsMsg carries the re-parsed file contents.
type rowsMsg struct {
	rows   int
	prefix float64
	last   []float64
	err    error
}

// NewModel creates the monitor model and starts watching the data file's
// directory. Watching the directory instead of the file survives the file
// not existing yet.
func NewModel(opts Options) (Model, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return Model{}, err
	}
	dir := opts.Path
	if i := strings.LastIndexByte(dir, '/'); i >= 0 {
		dir = dir[:i]
	} else {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return Model{}, err
	}
	return Model{
		opts:    opts,
		watcher: w,
		prog:    progress.New(progress.WithDefaultGradient()),
		start:   time.Now(),
		width:   80,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.readFile(), m.waitForChange())
}

// waitForChange blocks on the watcher until the .dat file is written to.
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if ev.Name == m.opts.Path && ev.Has(fsnotify.Write|fsnotify.Create) {
					return fileChangedMsg{}
				}
			case err, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
				return rowsMsg{err: err}
			}
		}
	}
}

// readFile re-parses the .dat file off the UI goroutine.
func (m Model) readFile() tea.Cmd {
	path := m.opts.Path
	return func() tea.Msg {
		rows, prefix, last, err := readRows(path)
		return rowsMsg{rows: rows, prefix: prefix, last: last, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.prog.Width = msg.Width - 10
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.aborted = true
			if m.opts.Cancel != nil {
				m.opts.Cancel()
			}
			m.watcher.Close()
			return m, tea.Quit
		}
		return m, nil

	case fileChangedMsg:
		return m, tea.Batch(m.readFile(), m.waitForChange())

	case rowsMsg:
		if msg.err != nil {
			m.readErr = msg.err
			return m, nil
		}
		m.readErr = nil
		m.rows = msg.rows
		m.prefix = msg.prefix
		m.last = msg.last
		if m.opts.TotalRows > 0 && m.rows >= m.opts.TotalRows {
			m.watcher.Close()
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	b.WriteString("\n\n")

	elapsed := humanize.RelTime(m.start, time.Now(), "", "")
	stats := fmt.Sprintf("rows: %s    last prefix: %+.4g    running: %s",
		humanize.Comma(int64(m.rows)), m.prefix, strings.TrimSpace(elapsed))
	b.WriteString(statStyle.Render(stats))
	b.WriteString("\n\n")

	if len(m.last) > 0 {
		width := m.width - 4
		if width > len(m.last) {
			width = len(m.last)
		}
		b.WriteString(traceStyle.Render("  " + sparkline(m.last, width)))
		b.WriteString("\n\n")
	}

	if m.opts.TotalRows > 0 {
		pct := float64(m.rows) / float64(m.opts.TotalRows)
		b.WriteString("  " + m.prog.ViewAs(pct))
		b.WriteString("\n\n")
	}

	if m.readErr != nil {
		b.WriteString(errorStyle.Render("read error: " + m.readErr.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(footerStyle.Render("q aborts the run and parks the instruments safely"))
	b.WriteString("\n")
	return b.String()
}

// readRows counts complete rows in the .dat file and parses the last one
// into its prefix and data values. A missing file is zero rows, not an
// error.
func readRows(path string) (rows int, prefix float64, last []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil, nil
		}
		return 0, 0, nil, err
	}
	defer f.Close()

	var lastLine string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rows++
		lastLine = line
	}
	if err := sc.Err(); err != nil {
		return 0, 0, nil, err
	}
	if rows == 0 {
		return 0, 0, nil, nil
	}

	fields := strings.Split(lastLine, "\t")
	vals := make([]float64, 0, len(fields))
	for _, fv := range fields {
		v, err := strconv.ParseFloat(fv, 64)
		if err != nil {
			return rows, 0, nil, fmt.Errorf("bad row %d: %w", rows, err)
		}
		vals = append(vals, v)
	}
	if len(vals) < 2 {
		return rows, vals[0], nil, nil
	}
	return rows, vals[0], vals[1:], nil
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values as a fixed-width row of block characters,
// resampling when there are more values than columns.
func sparkline(vals []float64, width int) string {
	if len(vals) == 0 || width < 1 {
		return ""
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	out := make([]rune, width)
	for i := range out {
		v := vals[i*len(vals)/width]
		level := 0
		if span > 0 {
			level = int((v - lo) / span * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[level]
	}
	return string(out)
}

// Run blocks until the run completes or the user quits.
func Run(opts Options) error {
	model, err := NewModel(opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
