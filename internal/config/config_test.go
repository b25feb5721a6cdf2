package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "pattern", cfg.Collector.Strategy)
	assert.Equal(t, "cisco_ios", cfg.Collector.DeviceType)
	assert.Equal(t, "device_info.csv", cfg.Collector.OutputPath)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.False(t, cfg.Database.SQLite.Enabled)
	assert.False(t, cfg.Storage.Minio.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Same(t, cfg, Get())

	sc := cfg.SSH.ClientConfig()
	assert.Equal(t, 5*time.Second, sc.DialTimeout)
	assert.Equal(t, 10*time.Second, sc.AuthTimeout)
	assert.Equal(t, 60*time.Second, sc.CommandTimeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	yaml := `
collector:
  strategy: offset
  output_path: /tmp/out.csv
ssh:
  timeout:
    dial_timeout: 1
    auth_timeout: 2
    command_timeout: 15s
credentials:
  secret_key: ${SWITCHINFO_TEST_KEY}
database:
  sqlite:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("SWITCHINFO_TEST_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("SWITCHINFO_COLLECTOR_DEVICE_TYPE", "cisco_xe")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "offset", cfg.Collector.Strategy)
	assert.Equal(t, "/tmp/out.csv", cfg.Collector.OutputPath)
	assert.Equal(t, "cisco_xe", cfg.Collector.DeviceType)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Credentials.SecretKey)
	assert.True(t, cfg.Database.SQLite.Enabled)

	sc := cfg.SSH.ClientConfig()
	assert.Equal(t, time.Second, sc.DialTimeout)
	assert.Equal(t, 2*time.Second, sc.AuthTimeout)
	assert.Equal(t, 15*time.Second, sc.CommandTimeout)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("collector: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
