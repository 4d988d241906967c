package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makino-adapter/internal/model"
	"makino-adapter/internal/service"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"--emulate"}, args...))
	require.NoError(t, root.Execute())
	return out.Bytes()
}

func TestPositions(t *testing.T) {
	var positions []string
	require.NoError(t, json.Unmarshal(run(t, "positions"), &positions))
	require.Len(t, positions, 10)
	assert.Equal(t, "Magazine 1 pot 1 cutter 1", positions[0])
}

func TestTools_FilterByToolNumber(t *testing.T) {
	var records []model.ToolRecord
	require.NoError(t, json.Unmarshal(run(t, "tools", "--tool-number", "204"), &records))
	require.Len(t, records, 1)
	assert.Equal(t, uint32(2), records[0].Magazine)
	assert.Equal(t, int32(4), records[0].Pot)
}

func TestProbe_PinnedVersion(t *testing.T) {
	var status service.Status
	require.NoError(t, json.Unmarshal(run(t, "--version", "6", "probe"), &status))
	assert.True(t, status.Session.ProXConnected)
	assert.Equal(t, "Pro6", status.Session.ProXVersion)
}

func TestAlarms(t *testing.T) {
	var alarms model.AlarmList
	require.NoError(t, json.Unmarshal(run(t, "alarms"), &alarms))
	require.Len(t, alarms.Machine, 1)
	assert.Equal(t, "warning", alarms.Machine[0].Properties["type"])
	require.Len(t, alarms.Cnc, 1)
	assert.Equal(t, "1001", alarms.Cnc[0].Number)
}

func TestRejectsUnknownVersion(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--emulate", "--version", "4", "probe"})
	assert.Error(t, root.Execute())
}
