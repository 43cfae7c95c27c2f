package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := strings.Join([]string{
		"project: acme",
		"traces_dir: /data/traces",
		"overscan: 2",
		"row_refetch: stale",
		"row_stale_time: 30s",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.ProjectID)
	assert.Equal(t, "/data/traces", cfg.TracesDir)
	assert.Equal(t, 2, cfg.Overscan)
	assert.Equal(t, "stale", cfg.RowRefetch)
	assert.Equal(t, 30*time.Second, cfg.RowStaleTime)
	assert.Equal(t, DefaultGlamourStyle, cfg.GlamourStyle)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overscan: [nope"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestFinalizeDerivesPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults()
	cfg.DBPath = filepath.Join(dir, "nested", "index.sqlite")
	cfg.TracesDir = filepath.Join(dir, "traces") + "/"
	cfg.ProjectID = ""
	cfg.Overscan = -3

	require.NoError(t, cfg.Finalize())
	assert.Equal(t, filepath.Join(dir, "traces"), cfg.TracesDir)
	assert.Equal(t, filepath.Join(dir, "nested", "session-trace.log"), cfg.LogFile)
	assert.Equal(t, DefaultProjectID, cfg.ProjectID)
	assert.Zero(t, cfg.Overscan)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestDetectHomePrefersEnv(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/st-home")
	got, err := DetectHome("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/st-home", got)

	got, err = DetectHome("/explicit/")
	require.NoError(t, err)
	assert.Equal(t, "/explicit", got)
}

func TestInitLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger("debug", path, nil))
	Logger.Debug().Str("session_id", "s1").Msg("hello")
	CloseLogFile()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s1"`)
}
