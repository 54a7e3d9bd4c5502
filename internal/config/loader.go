package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":      {"portaudio", "replay"},
	"classifier": {"onnx"},
}

// Loudness bounds of the calibrated scale. Thresholds outside never fire or
// always fire.
const (
	minThreshold = 30
	maxThreshold = 100
)

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment. Variables that are already set win. Missing files are
// skipped; with no arguments ".env" in the working directory is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	// Audio
	validateProviderName("audio", cfg.Audio.Provider)
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if cfg.Audio.Provider == "replay" && cfg.Audio.ReplayFile == "" {
		errs = append(errs, errors.New("audio.replay_file is required when provider is replay"))
	}

	// Classifier
	validateProviderName("classifier", cfg.Classifier.Provider)
	if cfg.Classifier.ModelPath == "" {
		errs = append(errs, errors.New("classifier.model_path is required"))
	}
	if cfg.Classifier.LabelPath == "" {
		errs = append(errs, errors.New("classifier.label_path is required"))
	}
	if c := cfg.Classifier.MinConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("classifier.min_confidence %.2f is out of range [0, 1]", c))
	}
	for i, fb := range cfg.Classifier.Fallbacks {
		validateProviderName("classifier", fb.Provider)
		if fb.ModelPath == "" {
			errs = append(errs, fmt.Errorf("classifier.fallbacks[%d].model_path is required", i))
		}
	}

	// Alert
	errs = append(errs, validateThreshold("alert.ambient_threshold", cfg.Alert.AmbientThreshold)...)
	errs = append(errs, validateThreshold("alert.critical_threshold", cfg.Alert.CriticalThreshold)...)
	if cfg.Alert.RequiredReadings < 0 {
		errs = append(errs, fmt.Errorf("alert.required_readings %d must not be negative", cfg.Alert.RequiredReadings))
	}
	if cfg.Alert.FastRequiredReadings < 0 {
		errs = append(errs, fmt.Errorf("alert.fast_required_readings %d must not be negative", cfg.Alert.FastRequiredReadings))
	}
	for name, d := range map[string]int64{
		"alert.required_duration":      int64(cfg.Alert.RequiredDuration),
		"alert.fast_required_duration": int64(cfg.Alert.FastRequiredDuration),
		"alert.cooldown":               int64(cfg.Alert.Cooldown),
		"alert.event_interval":         int64(cfg.Alert.EventInterval),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	// Profiles
	profileIDsSeen := make(map[string]int, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		prefix := fmt.Sprintf("profiles[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := profileIDsSeen[p.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of profiles[%d]", prefix, p.ID, prev))
			}
			profileIDsSeen[p.ID] = i
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if p.Threshold != 0 {
			errs = append(errs, validateThreshold(prefix+".threshold", float64(p.Threshold))...)
		}
	}

	// Notify
	dc := cfg.Notify.Discord
	if dc.Token != "" {
		if dc.GuildID == "" {
			errs = append(errs, errors.New("notify.discord.guild_id is required when a token is set"))
		}
		if dc.ChannelID == "" {
			errs = append(errs, errors.New("notify.discord.channel_id is required when a token is set"))
		}
	}
	if dc.DashboardInterval < 0 {
		errs = append(errs, errors.New("notify.discord.dashboard_interval must not be negative"))
	}
	mc := cfg.Notify.MQTT
	if mc.QoS > 2 {
		errs = append(errs, fmt.Errorf("notify.mqtt.qos %d is invalid; valid values: 0, 1, 2", mc.QoS))
	}
	if mc.Broker == "" && (mc.LevelTopic != "" || mc.AlertTopic != "") {
		slog.Warn("notify.mqtt topics are set but notify.mqtt.broker is empty; MQTT is disabled")
	}

	// Storage
	if cfg.Storage.PostgresMaxConns < 0 {
		errs = append(errs, fmt.Errorf("storage.postgres_max_conns %d must not be negative", cfg.Storage.PostgresMaxConns))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; event and notification history will not survive a restart")
	}

	return errors.Join(errs...)
}

// validateThreshold returns an error if a non-zero threshold lies outside the
// calibrated loudness scale.
func validateThreshold(field string, v float64) []error {
	if v == 0 || (v >= minThreshold && v <= maxThreshold) {
		return nil
	}
	return []error{fmt.Errorf("%s %.1f is out of range [%d, %d]", field, v, minThreshold, maxThreshold)}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
