// Package config provides the configuration schema, loader, and provider registry
// for the noisewatch monitoring service.
package config

import (
	"time"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/profile"
)

// LogLevel controls log verbosity for the noisewatch server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr    = ":8080"
	DefaultAudioProvider = "portaudio"
	DefaultSampleRate    = 16000
	DefaultFrameSize     = 1600
	DefaultClassifier    = "onnx"
)

// Config is the root configuration structure for noisewatch.
type Config struct {
	// Server holds network and logging settings.
	Server ServerConfig `yaml:"server"`

	// Audio selects and configures the capture backend.
	Audio AudioConfig `yaml:"audio"`

	// Classifier configures the sound classification model.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Alert tunes the alert decision policy.
	Alert AlertConfig `yaml:"alert"`

	// Cue configures the alert sound.
	Cue CueConfig `yaml:"cue"`

	// Profiles is the catalog of activity profiles a user can select.
	Profiles []profile.Profile `yaml:"profiles"`

	// Storage configures the persistence backends.
	Storage StorageConfig `yaml:"storage"`

	// Notify configures the alert fan-out targets.
	Notify NotifyConfig `yaml:"notify"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log severity. Valid values: debug, info, warn, error.
	LogLevel LogLevel `yaml:"log_level"`

	// TraceSampleRatio is the fraction of new traces that are sampled, in
	// [0, 1]. Zero samples everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// AudioConfig selects and configures the capture backend.
type AudioConfig struct {
	// Provider is the registered capturer name ("portaudio", "replay").
	Provider string `yaml:"provider"`

	// Device is a substring of the input device name. Empty selects the
	// system default.
	Device string `yaml:"device"`

	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples read per processing block.
	FrameSize int `yaml:"frame_size"`

	// ProcessedOnly skips the attempt to open an unprocessed (raw) input and
	// goes straight to the regular processed source.
	ProcessedOnly bool `yaml:"processed_only"`

	// ReplayFile is the raw 16-bit PCM file read by the replay provider.
	ReplayFile string `yaml:"replay_file"`

	// ReplayLoop restarts the replay file when it ends.
	ReplayLoop bool `yaml:"replay_loop"`

	// Autostart begins a monitoring session as soon as the service is up.
	Autostart bool `yaml:"autostart"`
}

// ClassifierConfig configures the sound classification model.
type ClassifierConfig struct {
	EngineEntry `yaml:",inline"`

	// LabelPath is the CSV class map whose rows line up with the model's
	// score vector.
	LabelPath string `yaml:"label_path"`

	// MinConfidence is the lowest top score that still yields a label.
	// Zero selects the classifier default.
	MinConfidence float32 `yaml:"min_confidence"`

	// Fallbacks are tried in order when the primary engine fails.
	Fallbacks []EngineEntry `yaml:"fallbacks"`
}

// EngineEntry names one classifier engine and its model files.
type EngineEntry struct {
	// Provider is the registered engine name (e.g., "onnx").
	Provider string `yaml:"provider"`

	// ModelPath is the model file loaded by the engine.
	ModelPath string `yaml:"model_path"`

	// LibraryPath is the inference runtime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string `yaml:"library_path"`
}

// AlertConfig tunes the alert decision policy. Zero values keep the engine
// defaults.
type AlertConfig struct {
	AmbientThreshold  float64 `yaml:"ambient_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`

	RequiredReadings     int `yaml:"required_readings"`
	FastRequiredReadings int `yaml:"fast_required_readings"`

	RequiredDuration     time.Duration `yaml:"required_duration"`
	FastRequiredDuration time.Duration `yaml:"fast_required_duration"`

	Cooldown time.Duration `yaml:"cooldown"`

	// EventInterval is how often a periodic level event is recorded.
	EventInterval time.Duration `yaml:"event_interval"`
}

// EngineConfig converts the section to the alert engine's policy values.
func (a AlertConfig) EngineConfig() alert.Config {
	return alert.Config{
		AmbientThreshold:     a.AmbientThreshold,
		CriticalThreshold:    a.CriticalThreshold,
		RequiredReadings:     a.RequiredReadings,
		FastRequiredReadings: a.FastRequiredReadings,
		RequiredDuration:     a.RequiredDuration,
		FastRequiredDuration: a.FastRequiredDuration,
		Cooldown:             a.Cooldown,
	}
}

// CueConfig configures the alert sound.
type CueConfig struct {
	// Path is the WAV file played when an alert fires. Empty disables the
	// sound; the feedback guard then uses its fallback duration.
	Path string `yaml:"path"`

	// Mute loads the clip for its duration but never plays it.
	Mute bool `yaml:"mute"`
}

// StorageConfig configures the persistence backends. Every backend is
// optional; with none configured history is kept in memory.
type StorageConfig struct {
	// PostgresDSN is the connection string for the event and notification
	// history.
	PostgresDSN string `yaml:"postgres_dsn"`

	// PostgresMaxConns caps the connection pool. Zero keeps the store default.
	PostgresMaxConns int32 `yaml:"postgres_max_conns"`

	// BadgerDir is the directory of the local settings database.
	BadgerDir string `yaml:"badger_dir"`

	// ClickHouse mirrors every event into an analytics table.
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig configures the analytics event mirror.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotifyConfig configures the alert fan-out targets.
type NotifyConfig struct {
	Discord   DiscordConfig   `yaml:"discord"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// DiscordConfig configures the Discord bot. An empty token disables it.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	GuildID   string `yaml:"guild_id"`
	ChannelID string `yaml:"channel_id"`

	// ManagerRoles restricts start/stop and settings changes to members
	// holding one of these roles. Guild administrators always pass. Empty
	// allows everyone.
	ManagerRoles []string `yaml:"manager_roles"`

	// DashboardInterval is the refresh period of the status message. Zero
	// disables the dashboard.
	DashboardInterval time.Duration `yaml:"dashboard_interval"`
}

// MQTTConfig configures the MQTT publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	AlertTopic string `yaml:"alert_topic"`

	// LevelTopic receives retained loudness updates. Empty disables them.
	LevelTopic    string        `yaml:"level_topic"`
	LevelInterval time.Duration `yaml:"level_interval"`

	QoS byte `yaml:"qos"`
}

// WebSocketConfig configures the live feed endpoint.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`

	// OriginPatterns lists the cross-origin hosts allowed to connect.
	OriginPatterns []string `yaml:"origin_patterns"`

	// MinInterval throttles loudness frames per client.
	MinInterval time.Duration `yaml:"min_interval"`
}

// applyDefaults fills in fields the file left empty.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.Provider == "" {
		c.Audio.Provider = DefaultAudioProvider
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = DefaultFrameSize
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = DefaultClassifier
	}
	for i := range c.Classifier.Fallbacks {
		if c.Classifier.Fallbacks[i].Provider == "" {
			c.Classifier.Fallbacks[i].Provider = DefaultClassifier
		}
	}
}
