package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PATTERN_BACKEND", "memory")
	t.Setenv("CASCADE_LOG_LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseScores(t *testing.T) {
	got, err := parseScores([]string{"0.3", "0.45", "1"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.45, 1}, got)

	_, err = parseScores([]string{"0.3", "high"})
	assert.Error(t, err)
	_, err = parseScores([]string{"1.2"})
	assert.ErrorContains(t, err, "out of range")
}

func TestTrajectoryCommand(t *testing.T) {
	out, err := execute(t, "", "trajectory", "0.6", "0.5", "0.4", "0.3", "0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "archetype=CRISIS")
	assert.Contains(t, out, "quality_delta=-0.20")
}

func TestReplayCommand_Offline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	fixture := `{
  "description": "offline smoke",
  "interactions": [
    {"turn_id": "a", "text": "I feel calm and grounded today"},
    {"turn_id": "b", "text": "thanks, that helped", "feedback": 0.8}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	out, err := execute(t, "", "replay", path)
	require.NoError(t, err)
	assert.Contains(t, out, "offline smoke")
	assert.Contains(t, out, "turns=2 degraded=0")
}

func TestReplayCommand_MismatchFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	fixture := `{
  "interactions": [{"turn_id": "a", "text": "hello"}],
  "expected_results": [{"turn_id": "a", "terminal": "NOT_A_DECISION"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	out, err := execute(t, "", "replay", path)
	assert.ErrorContains(t, err, "1 expectation(s) failed")
	assert.Contains(t, out, "MISMATCH a: terminal")
}

func TestChatCommand_Offline(t *testing.T) {
	chatOffline = true
	t.Cleanup(func() { chatOffline = false })

	in := "/feedback 0.5\nhello there\n/feedback 2\n/feedback 0.5\n/trajectory\nquit\n"
	out, err := execute(t, in, "chat", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "cascade ready")
	assert.Contains(t, out, "no turn to attach to")
	assert.Contains(t, out, "[turn 0] decision=")
	assert.Contains(t, out, "usage: /feedback")
	assert.Contains(t, out, "[trajectory] STABLE")
}
