// Package conf loads wildalert settings from YAML, environment and flags.
package conf

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/wildalert/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. WILDALERT_MQTT_BROKER.
const EnvPrefix = "WILDALERT"

// Settings contains all configuration options for wildalert.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Ingest    IngestSettings       `yaml:"ingest" mapstructure:"ingest"`
	Notice    NoticeSettings       `yaml:"notice" mapstructure:"notice"`
	Events    EventsSettings       `yaml:"events" mapstructure:"events"`
	MQTT      MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	WebServer WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Security  SecuritySettings     `yaml:"security" mapstructure:"security"`
	Sentry    SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Seed      SeedSettings         `yaml:"seed" mapstructure:"seed"`

	Version string `yaml:"-" mapstructure:"-"` // set at build time
}

// IngestSettings controls the simulated camera feed.
type IngestSettings struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
	Probability   float64       `yaml:"probability" mapstructure:"probability"` // chance that a tick admits a detection
	Species       []string      `yaml:"species" mapstructure:"species"`
	Cameras       []string      `yaml:"cameras" mapstructure:"cameras"`
	Latitude      float64       `yaml:"latitude" mapstructure:"latitude"`
	Longitude     float64       `yaml:"longitude" mapstructure:"longitude"`
	Radius        float64       `yaml:"radius" mapstructure:"radius"` // coordinate jitter in degrees
	Location      string        `yaml:"location" mapstructure:"location"`
	FramePool     []string      `yaml:"framepool" mapstructure:"framepool"`
	MinConfidence int           `yaml:"minconfidence" mapstructure:"minconfidence"`
	MaxConfidence int           `yaml:"maxconfidence" mapstructure:"maxconfidence"`
	Seed          uint64        `yaml:"seed" mapstructure:"seed"` // 0 seeds from the clock
}

// NoticeSettings controls transient notices.
type NoticeSettings struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RatePerSecond float64       `yaml:"ratepersecond" mapstructure:"ratepersecond"`
	Burst         int           `yaml:"burst" mapstructure:"burst"`
}

// EventsSettings sizes the lifecycle event bus.
type EventsSettings struct {
	BufferSize int `yaml:"buffersize" mapstructure:"buffersize"`
	Workers    int `yaml:"workers" mapstructure:"workers"`
}

// MQTTSettings contains settings for the MQTT exporter.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"clientid" mapstructure:"clientid"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
	QoS      int    `yaml:"qos" mapstructure:"qos"`
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string      `yaml:"allowedorigins" mapstructure:"allowedorigins"` // CORS, empty disables
	ShutdownTimeout time.Duration `yaml:"shutdowntimeout" mapstructure:"shutdowntimeout"`
	SSEHeartbeat    time.Duration `yaml:"sseheartbeat" mapstructure:"sseheartbeat"`
	Metrics         bool          `yaml:"metrics" mapstructure:"metrics"` // expose /metrics
}

// Address returns host:port for the listener.
func (w *WebServerSettings) Address() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// SecuritySettings contains session and token settings.
type SecuritySettings struct {
	SessionSecret string        `yaml:"sessionsecret" mapstructure:"sessionsecret"`
	SessionMaxAge time.Duration `yaml:"sessionmaxage" mapstructure:"sessionmaxage"`
	SecureCookie  bool          `yaml:"securecookie" mapstructure:"securecookie"`
	JWTSecret     string        `yaml:"jwtsecret" mapstructure:"jwtsecret"` // empty disables bearer tokens
	ClientIdleTTL time.Duration `yaml:"clientidlettl" mapstructure:"clientidlettl"`
}

// SentrySettings contains settings for opt-in error telemetry.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"samplerate" mapstructure:"samplerate"`
	Debug       bool    `yaml:"debug" mapstructure:"debug"`
}

// SeedSettings controls demo data.
type SeedSettings struct {
	Demo bool `yaml:"demo" mapstructure:"demo"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration into Settings using the global viper instance.
// Flags bound to viper by the caller take precedence over file and env values.
func Load(configFile string) (*Settings, error) {
	return LoadFrom(viper.GetViper(), configFile)
}

// LoadFrom reads configuration through v. An empty configFile searches the
// default paths; a missing file there is not an error.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if settings.Security.SessionSecret == "" {
		settings.Security.SessionSecret = GenerateRandomSecret()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper applies defaults, env bindings and the config file to v.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range DefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml, in order.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wildalert"))
	}
	return append(paths, "/etc/wildalert")
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (s *Settings) Redacted() Settings {
	out := *s
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "[REDACTED]"
	}
	out.MQTT.Password = mask(out.MQTT.Password)
	out.Security.SessionSecret = mask(out.Security.SessionSecret)
	out.Security.JWTSecret = mask(out.Security.JWTSecret)
	out.Sentry.DSN = mask(out.Sentry.DSN)
	return out
}

// YAML marshals the redacted settings.
func (s *Settings) YAML() ([]byte, error) {
	redacted := s.Redacted()
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// GenerateRandomSecret generates a URL-safe base64 encoded random string
// suitable for use as a session secret. The output is 43 characters long,
// providing 256 bits of entropy.
func GenerateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
