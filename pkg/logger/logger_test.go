package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Level(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug"}))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	require.NoError(t, Init(Config{Level: "loud"}))
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}

func TestInit_JSONCapture(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Format: "json"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithField("device", "10.0.0.1").Info("Connecting to switch 10.0.0.1")
	Debugf("dropped %d", 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Connecting to switch 10.0.0.1", entry["msg"])
	assert.Equal(t, "10.0.0.1", entry["device"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "switchinfo.log")
	require.NoError(t, Init(Config{Level: "info", Output: "file", FilePath: path, MaxSize: 1}))

	Warnf("Regex match error. Missing info for device %s", "10.0.0.9")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Missing info for device 10.0.0.9")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", Excerpt("\r\n  \n", 3))
	assert.Equal(t, "[a ⟩ b]", Excerpt("a\r\n\r\nb\r\n", 3))

	out := Excerpt("1\n2\n3\n4\n5\n6\n7\n", 2)
	assert.Equal(t, "head: [1 ⟩ 2], tail: [6 ⟩ 7]", out)
}

func TestDebugOutput(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	DebugOutput("10.0.0.1", "show version", "")
	assert.Contains(t, buf.String(), "<empty>")

	require.NoError(t, Init(Config{Level: "info"}))
	buf.Reset()
	SetOutput(&buf)
	DebugOutput("10.0.0.1", "show version", "Cisco IOS")
	assert.Empty(t, buf.String())
}
