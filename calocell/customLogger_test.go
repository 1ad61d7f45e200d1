package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerOutputs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	l := NewLogger(&stdout, &stderr)

	l.Info("Reading event 3", "eventReader")
	assert.Regexp(t, `^\[\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}\] \[eventReader\] Reading event 3\n$`, stdout.String())

	l.Error("cannot open file")
	var record map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "cannot open file", record["msg"])
}
