package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Keep the settings search away from the real home directory
	t.Setenv("HOME", t.TempDir())

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestZonesCommand(t *testing.T) {
	prefs := filepath.Join(t.TempDir(), "preferences.json")

	out, err := execute(t, "zones", "--preferences", prefs, "100", "145", "200")
	require.NoError(t, err)

	assert.Contains(t, out, "zones: auto (resting 60, max 190)")
	assert.Regexp(t, `0\s+-\s+105`, out)
	assert.Regexp(t, `4\s+145\s+163`, out)
	assert.Regexp(t, `5\s+164\s+-`, out)
	assert.Contains(t, out, "100 bpm: zone 0")
	assert.Contains(t, out, "145 bpm: zone 4")
	assert.Contains(t, out, "200 bpm: zone 5")
}

func TestZonesCommand_FlagOverrides(t *testing.T) {
	prefs := filepath.Join(t.TempDir(), "preferences.json")

	out, err := execute(t, "zones", "--preferences", prefs, "--resting-hr", "50", "--max-hr", "200")
	require.NoError(t, err)
	assert.Contains(t, out, "zones: auto (resting 50, max 200)")
}

func TestZonesCommand_RejectsBadBPM(t *testing.T) {
	_, err := execute(t, "zones", "--preferences", filepath.Join(t.TempDir(), "p.json"), "fast")
	assert.ErrorContains(t, err, `bpm "fast"`)
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbeat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  topic: gym/zones\n"), 0o600))

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# "+path)

	var dumped struct {
		MQTT struct {
			Topic string `yaml:"topic"`
		} `yaml:"mqtt"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &dumped))
	assert.Equal(t, "gym/zones", dumped.MQTT.Topic)
}

func TestConfigCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "config", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read settings")
}

func TestRunCommand_UnknownMode(t *testing.T) {
	_, err := execute(t, "run", "--mode", "tempo")
	assert.ErrorContains(t, err, `"tempo"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "runbeat "+Version+"\n", out)
}
