package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "veloq", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"status", "activities", "sections", "sync", "detect", "clear", "daemon"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "veloq.yaml", configFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

// writeTestConfig points all state at a temp directory and returns the
// config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "veloq.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("data_dir: "+filepath.Join(dir, "data")+"\n"), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusOnFreshState(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "--format", "json", "status")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), data["activities"])
	assert.Equal(t, float64(0), data["customSections"])
}

func TestActivityLifecycleThroughCLI(t *testing.T) {
	cfg := writeTestConfig(t)

	// Two parallel tracks close enough to match the same section.
	type point struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	track := func(lat float64) []point {
		pts := make([]point, 40)
		for i := range pts {
			pts[i] = point{Latitude: lat, Longitude: float64(i) * 0.0004}
		}
		return pts
	}
	activities := []map[string]any{
		{"id": "act-1", "sportType": "Ride", "track": track(0), "timeStream": []float64{0, 1, 2}},
		{"id": "act-2", "sportType": "Ride", "track": track(0.0001)},
	}
	buf, err := json.Marshal(activities)
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(file, buf, 0o644))

	out, err := run(t, "--config", cfg, "activities", "add", file)
	require.NoError(t, err)
	assert.Contains(t, out, "added 2 activities")

	out, err = run(t, "--config", cfg, "activities", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "act-1")
	assert.Contains(t, out, "act-2")

	// Author a section from act-1 and expect both activities to match.
	out, err = run(t, "--config", cfg, "sections", "create",
		"--from-activity", "act-1", "--start", "5", "--end", "30", "--name", "Sprint")
	require.NoError(t, err)
	assert.Contains(t, out, `"Sprint"`)
	assert.Contains(t, out, "2 matches")

	out, err = run(t, "--config", cfg, "sections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Sprint")
	assert.Contains(t, out, "2 matches")

	// A fresh sync pass finds everything cached.
	out, err = run(t, "--config", cfg, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "added 0 matches")
}

func TestSectionsCreateRejectsBadRange(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := run(t, "--config", cfg, "sections", "create",
		"--from-activity", "act-missing", "--start", "0", "--end", "10")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSectionsShowMissing(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := run(t, "--config", cfg, "sections", "show", "custom_missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
