package calocell

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	config := DefaultConfiguration()
	require.NoError(t, config.Validate())
	assert.Equal(t, EarliestArrival, config.TimingPolicy)
	assert.True(t, config.DoCrossTalk)
	assert.Equal(t, 0.6, config.EtaWindow)
	assert.Equal(t, []Sampling{EMB2, EMEC2}, config.CrossTalk.Samplings)
}

func TestConfigurationValidate(t *testing.T) {
	cases := map[string]func(c *Configuration){
		"no workers":           func(c *Configuration) { c.NumWorkers = 0 },
		"negative skip":        func(c *Configuration) { c.Skip = -1 },
		"unknown driver":       func(c *Configuration) { c.DBDriver = "oracle" },
		"sqlite without file":  func(c *Configuration) { c.DBDriver = "sqlite3" },
		"zero eta window":      func(c *Configuration) { c.EtaWindow = 0 },
		"compression too high": func(c *Configuration) { c.CompressionLevel = 10 },
		"bad cross-talk":       func(c *Configuration) { c.CrossTalk.SamplePeriod = -25 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfiguration()
			mutate(&config)
			assert.Error(t, config.Validate())
		})
	}

	config := DefaultConfiguration()
	config.DoCrossTalk = false
	config.CrossTalk.SamplePeriod = -25
	assert.NoError(t, config.Validate(), "cross-talk settings are ignored when disabled")
}

func TestConfigurationJSON(t *testing.T) {
	data := []byte(`{
		"file_in": "events.jsonl",
		"db_driver": "sqlite3",
		"db_file": "geometry.db",
		"timing_policy": "first-above-noise",
		"crosstalk": {"amp_inductive": 3.1}
	}`)
	config := DefaultConfiguration()
	require.NoError(t, json.Unmarshal(data, &config))
	require.NoError(t, config.Validate())
	assert.Equal(t, "events.jsonl", config.FileIn)
	assert.Equal(t, FirstAboveNoise, config.TimingPolicy)
	assert.Equal(t, 3.1, config.CrossTalk.AmpInductive)
	assert.Equal(t, 4.2, config.CrossTalk.AmpCapacitive)
}

func TestSetConfiguration(t *testing.T) {
	previous := GetConfiguration()
	defer SetConfiguration(previous)

	config := DefaultConfiguration()
	config.Verbosity = 3
	SetConfiguration(config)
	assert.Equal(t, 3, GetConfiguration().Verbosity)
}
