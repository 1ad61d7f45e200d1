package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	calocell "github.com/lorenzetti/calocell_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigurationDefaults(t *testing.T) {
	config, err := LoadConfiguration(writeConfig(t, `{"file_in": "events.jsonl"}`))
	require.NoError(t, err)

	defaults := calocell.DefaultConfiguration()
	defaults.FileIn = "events.jsonl"
	assert.Equal(t, defaults, config)
}

func TestLoadConfigurationOverrides(t *testing.T) {
	config, err := LoadConfiguration(writeConfig(t, `{
		"num_workers": 8,
		"db_driver": "sqlite3",
		"db_file": "geometry.db",
		"run_number": 7,
		"do_crosstalk": false,
		"timing_policy": "first-above-noise"
	}`))
	require.NoError(t, err)
	assert.Equal(t, 8, config.NumWorkers)
	assert.Equal(t, "sqlite3", config.DBDriver)
	assert.Equal(t, 7, config.RunNumber)
	assert.False(t, config.DoCrossTalk)
	assert.Equal(t, calocell.FirstAboveNoise, config.TimingPolicy)
}

func TestLoadConfigurationErrors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfiguration(writeConfig(t, `{"num_workers": `))
	assert.Error(t, err)

	_, err = LoadConfiguration(writeConfig(t, `{"num_workers": 0}`))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestPrintConfiguration(t *testing.T) {
	var stdout, stderr bytes.Buffer
	config := calocell.DefaultConfiguration()
	config.DBDriver = "sqlite3"
	config.DBFile = "geometry.db"
	printConfiguration(config, NewLogger(&stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "[config] DB file: geometry.db")
	assert.Contains(t, out, "Cross-talk samplings: [EMB2 EMEC2]")
	assert.NotContains(t, out, "Host:")
	assert.Empty(t, stderr.String())
}
