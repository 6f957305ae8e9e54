package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesolab/labrig/exp"
	"github.com/mesolab/labrig/rigconfig"
)

func TestDatPathBackfillsName(t *testing.T) {
	a := &app{cfg: rigconfig.Config{DataDir: t.TempDir()}}
	dat := datPath(a)
	require.NotEmpty(t, a.name, "default run name must stick on the app")
	assert.True(t, strings.HasPrefix(a.name, "run_"))
	assert.Equal(t, dat, datPath(a), "repeated calls must not re-stamp the name")
}

func TestDatPathMatchesDatalog(t *testing.T) {
	dir := t.TempDir()
	a := &app{cfg: rigconfig.Config{DataDir: dir}}
	dat := datPath(a)

	dl, err := exp.NewDatalog(dir, a.name)
	require.NoError(t, err)
	defer dl.Close()
	assert.Equal(t, dat, dl.Path(), "monitor must watch the file the run writes")
}
