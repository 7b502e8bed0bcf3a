package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "askboard.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, 3000, c.HTTP.Port)
	assert.Equal(t, "./public", c.HTTP.StaticDir)
	assert.Equal(t, int64(16384), c.WebSocket.MaxMessageSize)
	assert.Equal(t, 6, c.Session.CodeLength)
	assert.Equal(t, "teacher", c.Broadcast.NewQuestionAudience)
	assert.Equal(t, "teacher", c.Broadcast.RemovalAudience)
	assert.False(t, c.Broadcast.AckSubmitter)
	assert.False(t, c.Broadcast.ReplayBacklog)
	assert.Equal(t, 0, c.RateLimit.MessagesPerWindow)
	assert.Equal(t, time.Minute, c.RateLimit.Window.Std())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing section", func(c *Config) { c.Audit = nil }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout under ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero message size", func(c *Config) { c.WebSocket.MaxMessageSize = 0 }},
		{"code too long", func(c *Config) { c.Session.CodeLength = 33 }},
		{"no code attempts", func(c *Config) { c.Session.MaxCodeAttempts = 0 }},
		{"bad audience", func(c *Config) { c.Broadcast.RemovalAudience = "principal" }},
		{"negative rate", func(c *Config) { c.RateLimit.MessagesPerWindow = -1 }},
		{"rate without window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"audit without path", func(c *Config) { c.Audit.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_AllowsDisabledFeatures(t *testing.T) {
	c := DefaultConfig()
	c.RateLimit.MessagesPerWindow = 0
	c.RateLimit.Window = 0
	c.Audit.Enabled = false
	c.Audit.Path = ""
	c.Broadcast.NewQuestionAudience = "none"
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ASKBOARD_HTTP_PORT", "8081")
	t.Setenv("ASKBOARD_HTTP_HOST", "127.0.0.1")
	t.Setenv("ASKBOARD_WEBSOCKET_PING_INTERVAL", "5s")
	t.Setenv("ASKBOARD_CODE_LENGTH", "8")
	t.Setenv("ASKBOARD_BROADCAST_REMOVAL", "everyone")
	t.Setenv("ASKBOARD_ACK_SUBMITTER", "true")
	t.Setenv("ASKBOARD_AUDIT_ENABLED", "false")
	t.Setenv("ASKBOARD_RATE_LIMIT", "not-a-number")

	c := LoadFromEnv()
	assert.Equal(t, 8081, c.HTTP.Port)
	assert.Equal(t, "127.0.0.1", c.HTTP.Host)
	assert.Equal(t, 5*time.Second, c.WebSocket.PingInterval.Std())
	assert.Equal(t, 8, c.Session.CodeLength)
	assert.Equal(t, "everyone", c.Broadcast.RemovalAudience)
	assert.True(t, c.Broadcast.AckSubmitter)
	assert.False(t, c.Audit.Enabled)
	assert.Equal(t, 0, c.RateLimit.MessagesPerWindow)
}

func TestLoadFromFile_PartialOverlay(t *testing.T) {
	path := writeFile(t, `{
		"http": {"port": 9090},
		"websocket": {"ping_interval": "10s"},
		"broadcast": {"replay_backlog": true}
	}`)

	c, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.HTTP.Port)
	assert.Equal(t, "0.0.0.0", c.HTTP.Host)
	assert.Equal(t, 10*time.Second, c.WebSocket.PingInterval.Std())
	assert.Equal(t, 60*time.Second, c.WebSocket.ReadTimeout.Std())
	assert.True(t, c.Broadcast.ReplayBacklog)
	assert.Equal(t, "teacher", c.Broadcast.NewQuestionAudience)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, `{"http": {"read_timeout": 30}}`))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, `{"http": {"read_timeout": "soon"}}`))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, `{"http": {"port": -1}}`))
	assert.Error(t, err)
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("ASKBOARD_HTTP_PORT", "8081")
	t.Setenv("ASKBOARD_HTTP_HOST", "127.0.0.1")
	t.Setenv(EnvConfigFile, writeFile(t, `{"http": {"port": 9999}}`))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, c.HTTP.Port)
	assert.Equal(t, "127.0.0.1", c.HTTP.Host)
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	t.Setenv("ASKBOARD_BROADCAST_NEW_QUESTION", "nobody")
	_, err := Load("")
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Std())
}
