package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfigFile names the JSON config file to overlay on env settings.
const EnvConfigFile = "ASKBOARD_CONFIG_FILE"

// Config is the full server configuration.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Session   *SessionConfig   `json:"session"`
	Filter    *FilterConfig    `json:"filter"`
	Broadcast *BroadcastConfig `json:"broadcast"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
	Audit     *AuditConfig     `json:"audit"`
}

type HTTPConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	// StaticDir is served at / when it exists. Empty disables it.
	StaticDir string `json:"static_dir"`
}

type WebSocketConfig struct {
	PingInterval   Duration `json:"ping_interval"`
	ReadTimeout    Duration `json:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout"`
	BufferSize     int      `json:"buffer_size"`
	MaxMessageSize int64    `json:"max_message_size"`
	HubQueueSize   int      `json:"hub_queue_size"`
}

type SessionConfig struct {
	CodeLength      int `json:"code_length"`
	MaxCodeAttempts int `json:"max_code_attempts"`
}

type FilterConfig struct {
	BlacklistPath string `json:"blacklist_path"`
}

// BroadcastConfig selects who hears about question changes. Audiences are
// "teacher", "students", "everyone" or "none".
type BroadcastConfig struct {
	NewQuestionAudience string `json:"new_question_audience"`
	RemovalAudience     string `json:"removal_audience"`
	AckSubmitter        bool   `json:"ack_submitter"`
	ReplayBacklog       bool   `json:"replay_backlog"`
}

type RateLimitConfig struct {
	// MessagesPerWindow of zero disables limiting.
	MessagesPerWindow int      `json:"messages_per_window"`
	Window            Duration `json:"window"`
}

type AuditConfig struct {
	Enabled bool     `json:"enabled"`
	Path    string   `json:"path"`
	Timeout Duration `json:"timeout"`
}

// Duration reads and writes time.Duration as a string such as "30s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

var validAudiences = map[string]bool{"teacher": true, "students": true, "everyone": true, "none": true}

// DefaultConfig mirrors the original server: port 3000, teacher-only
// notifications, no submitter ack.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			StaticDir:       "./public",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   Duration(30 * time.Second),
			ReadTimeout:    Duration(60 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			BufferSize:     100,
			MaxMessageSize: 16384,
			HubQueueSize:   1000,
		},
		Session: &SessionConfig{
			CodeLength:      6,
			MaxCodeAttempts: 16,
		},
		Filter: &FilterConfig{
			BlacklistPath: "blacklist.txt",
		},
		Broadcast: &BroadcastConfig{
			NewQuestionAudience: "teacher",
			RemovalAudience:     "teacher",
		},
		RateLimit: &RateLimitConfig{
			MessagesPerWindow: 0,
			Window:            Duration(time.Minute),
		},
		Audit: &AuditConfig{
			Enabled: true,
			Path:    "./askboard.db",
			Timeout: Duration(30 * time.Second),
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Session == nil || c.Filter == nil ||
		c.Broadcast == nil || c.RateLimit == nil || c.Audit == nil {
		return errors.New("all configuration sections are required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 || c.WebSocket.HubQueueSize <= 0 {
		return fmt.Errorf("WebSocket buffer sizes must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Session.CodeLength < 1 || c.Session.CodeLength > 32 {
		return fmt.Errorf("session code length must be between 1 and 32")
	}
	if c.Session.MaxCodeAttempts <= 0 {
		return fmt.Errorf("session max code attempts must be positive")
	}

	if !validAudiences[c.Broadcast.NewQuestionAudience] {
		return fmt.Errorf("invalid new question audience %q", c.Broadcast.NewQuestionAudience)
	}
	if !validAudiences[c.Broadcast.RemovalAudience] {
		return fmt.Errorf("invalid removal audience %q", c.Broadcast.RemovalAudience)
	}

	if c.RateLimit.MessagesPerWindow < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit.MessagesPerWindow > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	if c.Audit.Enabled {
		if c.Audit.Path == "" {
			return fmt.Errorf("audit database path cannot be empty")
		}
		if c.Audit.Timeout <= 0 {
			return fmt.Errorf("audit timeout must be positive")
		}
	}
	return nil
}

// LoadFromEnv applies ASKBOARD_* variables over the defaults. Unparseable
// values are ignored.
func LoadFromEnv() *Config {
	c := DefaultConfig()

	envString("ASKBOARD_HTTP_HOST", &c.HTTP.Host)
	envInt("ASKBOARD_HTTP_PORT", &c.HTTP.Port)
	envDuration("ASKBOARD_HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("ASKBOARD_HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envDuration("ASKBOARD_HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	envString("ASKBOARD_STATIC_DIR", &c.HTTP.StaticDir)

	envDuration("ASKBOARD_WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("ASKBOARD_WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("ASKBOARD_WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envInt("ASKBOARD_WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	envInt64("ASKBOARD_WEBSOCKET_MAX_MESSAGE_SIZE", &c.WebSocket.MaxMessageSize)
	envInt("ASKBOARD_HUB_QUEUE_SIZE", &c.WebSocket.HubQueueSize)

	envInt("ASKBOARD_CODE_LENGTH", &c.Session.CodeLength)
	envInt("ASKBOARD_MAX_CODE_ATTEMPTS", &c.Session.MaxCodeAttempts)

	envString("ASKBOARD_BLACKLIST_PATH", &c.Filter.BlacklistPath)

	envString("ASKBOARD_BROADCAST_NEW_QUESTION", &c.Broadcast.NewQuestionAudience)
	envString("ASKBOARD_BROADCAST_REMOVAL", &c.Broadcast.RemovalAudience)
	envBool("ASKBOARD_ACK_SUBMITTER", &c.Broadcast.AckSubmitter)
	envBool("ASKBOARD_REPLAY_BACKLOG", &c.Broadcast.ReplayBacklog)

	envInt("ASKBOARD_RATE_LIMIT", &c.RateLimit.MessagesPerWindow)
	envDuration("ASKBOARD_RATE_WINDOW", &c.RateLimit.Window)

	envBool("ASKBOARD_AUDIT_ENABLED", &c.Audit.Enabled)
	envString("ASKBOARD_AUDIT_PATH", &c.Audit.Path)
	envDuration("ASKBOARD_AUDIT_TIMEOUT", &c.Audit.Timeout)

	return c
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// LoadFromFile overlays a JSON file on the defaults. Fields absent from the
// file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	c := DefaultConfig()
	if err := overlayFile(c, path); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return c, nil
}

func overlayFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load resolves configuration with precedence file > environment > defaults.
// A .env file in the working directory is loaded first when present.
// path overrides ASKBOARD_CONFIG_FILE; both may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	c := LoadFromEnv()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := overlayFile(c, path); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
