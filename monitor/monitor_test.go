package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.dat")
	data := "+0.000000e+00\t+1.000000e-06\t+2.000000e-06\n" +
		"+5.000000e-01\t+3.000000e-06\t+4.000000e-06\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rows, prefix, last, err := readRows(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 0.5, prefix)
	assert.Equal(t, []float64{3e-6, 4e-6}, last)
}

func TestReadRowsMissingFile(t *testing.T) {
	rows, _, last, err := readRows(filepath.Join(t.TempDir(), "nope.dat"))
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Nil(t, last)
}

func TestReadRowsBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.dat")
	require.NoError(t, os.WriteFile(path, []byte("1.0\tnot-a-number\n"), 0o644))
	_, _, _, err := readRows(path)
	require.Error(t, err)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁█", sparkline([]float64{0, 1}, 2))
	assert.Equal(t, "▁▁▁", sparkline([]float64{2, 2, 2}, 3))
	assert.Equal(t, "", sparkline(nil, 10))
	// resampling keeps the width fixed
	assert.Len(t, []rune(sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 4)), 4)
}

func TestQuitCancelsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	m, err := NewModel(Options{
		Path:   filepath.Join(dir, "run.dat"),
		Title:  "test",
		Cancel: cancel,
	})
	require.NoError(t, err)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Error(t, ctx.Err())
}

func TestQuitsWhenComplete(t *testing.T) {
	dir := t.TempDir()
	m, err := NewModel(Options{
		Path:      filepath.Join(dir, "run.dat"),
		TotalRows: 2,
	})
	require.NoError(t, err)

	next, cmd := m.Update(rowsMsg{rows: 2, prefix: 1, last: []float64{1}})
	require.NotNil(t, cmd)
	assert.Equal(t, 2, next.(Model).rows)
}

func TestViewRendersStats(t *testing.T) {
	dir := t.TempDir()
	m, err := NewModel(Options{
		Path:  filepath.Join(dir, "run.dat"),
		Title: "iv_vs_field",
	})
	require.NoError(t, err)
	defer m.watcher.Close()

	next, _ := m.Update(rowsMsg{rows: 3, prefix: 0.5, last: []float64{1, 2, 3}})
	view := next.(Model).View()
	assert.Contains(t, view, "iv_vs_field")
	assert.Contains(t, view, "rows: 3")
}
