// Package alert decides when a sustained loud noise should raise an alert.
//
// The [Engine] is fed one (loudness, label) pair per processing tick. It
// keeps a small accumulation state, applies a per-label threshold and
// debounce policy, and enforces a cooldown between alerts. Firing an alert
// produces a [Decision] that carries the notification text and the records
// to persist; side effects (sound, storage, fan-out) belong to the caller.
package alert

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// Default policy values.
const (
	DefaultThreshold         = 70.0
	DefaultAmbientThreshold  = 95.0
	DefaultCriticalThreshold = 50.0

	DefaultRequiredReadings     = 5
	DefaultFastRequiredReadings = 2

	DefaultRequiredDuration     = 5 * time.Second
	DefaultFastRequiredDuration = 1 * time.Second

	DefaultCooldown = 60 * time.Second

	// DefaultActivityName is used in the alert message when no profile is
	// selected.
	DefaultActivityName = "Default Mode"

	// Title is the title of every alert notification.
	Title = "High Noise Alert!"
)

// Config holds the tunable policy values. Zero fields fall back to the
// package defaults.
type Config struct {
	AmbientThreshold  float64
	CriticalThreshold float64

	RequiredReadings     int
	FastRequiredReadings int

	RequiredDuration     time.Duration
	FastRequiredDuration time.Duration

	Cooldown time.Duration
}

// withDefaults returns a copy of c with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.AmbientThreshold <= 0 {
		c.AmbientThreshold = DefaultAmbientThreshold
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = DefaultCriticalThreshold
	}
	if c.RequiredReadings <= 0 {
		c.RequiredReadings = DefaultRequiredReadings
	}
	if c.FastRequiredReadings <= 0 {
		c.FastRequiredReadings = DefaultFastRequiredReadings
	}
	if c.RequiredDuration <= 0 {
		c.RequiredDuration = DefaultRequiredDuration
	}
	if c.FastRequiredDuration <= 0 {
		c.FastRequiredDuration = DefaultFastRequiredDuration
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Snapshot is the user configuration the engine reads on every tick.
type Snapshot struct {
	NotificationsEnabled bool

	// ProfileName is the selected activity profile's display name, empty
	// when none is selected.
	ProfileName string

	// Threshold is the selected profile's threshold in dB. Zero means no
	// profile is selected and [DefaultThreshold] applies.
	Threshold int
}

// Settings supplies the current [Snapshot].
type Settings interface {
	Snapshot() (Snapshot, error)
}

// SettingsFunc adapts a function to [Settings].
type SettingsFunc func() (Snapshot, error)

// Snapshot implements [Settings].
func (f SettingsFunc) Snapshot() (Snapshot, error) { return f() }

// StaticSettings returns a [Settings] that always reports s.
func StaticSettings(s Snapshot) Settings {
	return SettingsFunc(func() (Snapshot, error) { return s, nil })
}

// Phase is the accumulation phase of the engine.
type Phase int

const (
	// PhaseIdle means no loud readings are being counted.
	PhaseIdle Phase = iota

	// PhaseAccumulating means at least one loud reading has been counted.
	PhaseAccumulating
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAccumulating:
		return "ACCUMULATING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is a point-in-time copy of the engine's accumulation state.
type State struct {
	Phase         Phase
	Count         int
	FirstLoudAt   time.Time
	LastAlertAt   time.Time
	LastThreshold float64
}

// Decision describes an alert that fired.
type Decision struct {
	Label     types.NoiseLabel
	Loudness  float64
	Threshold float64
	Class     Class
	At        time.Time

	Title   string
	Message string

	// Notification is the history entry to persist.
	Notification types.NotificationItem

	// Event is the alert event to persist.
	Event types.NoiseEvent
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithConfig overrides the default policy values.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for settings read failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the alert decision state machine.
//
// All methods are safe for concurrent use. [Engine.Reset] is typically called
// from a different goroutine than [Engine.Evaluate] when an alert sound
// finishes playing.
type Engine struct {
	settings Settings
	cfg      Config
	now      func() time.Time
	log      *slog.Logger
	degraded atomic.Bool // settings unreadable on the last tick

	mu            sync.Mutex
	count         int
	firstLoudAt   time.Time
	lastAlertAt   time.Time
	lastThreshold float64
}

// New creates an Engine reading user configuration from settings.
func New(settings Settings, opts ...Option) *Engine {
	e := &Engine{
		settings: settings,
		cfg:      Config{}.withDefaults(),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective policy values.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the policy values. The accumulation state and the
// cooldown are kept.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.withDefaults()
}

// snapshot reads the settings. A failed read is treated as notifications
// enabled with no profile selected, so a broken settings store never
// silences alerts. Only the first failure of a run is logged.
func (e *Engine) snapshot() Snapshot {
	if e.settings == nil {
		return Snapshot{NotificationsEnabled: true}
	}
	s, err := e.settings.Snapshot()
	if err != nil {
		if !e.degraded.Swap(true) {
			e.log.Warn("alert: settings unavailable, using defaults", "err", err)
		}
		return Snapshot{NotificationsEnabled: true}
	}
	if e.degraded.Swap(false) {
		e.log.Info("alert: settings available again")
	}
	return s
}

// Evaluate processes one reading and reports whether an alert fired.
func (e *Engine) Evaluate(loudness float64, label types.NoiseLabel) (Decision, bool) {
	snap := e.snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !snap.NotificationsEnabled {
		e.resetLocked()
		return Decision{}, false
	}

	profileThreshold := float64(snap.Threshold)
	if snap.Threshold <= 0 {
		profileThreshold = DefaultThreshold
	}
	pol := PolicyFor(e.cfg, label, profileThreshold)
	e.lastThreshold = pol.Threshold

	if loudness <= pol.Threshold {
		e.resetLocked()
		return Decision{}, false
	}

	now := e.now()
	if e.count == 0 {
		e.firstLoudAt = now
	}
	e.count++

	readings, span := e.cfg.RequiredReadings, e.cfg.RequiredDuration
	if pol.IgnoreDuration {
		readings, span = e.cfg.FastRequiredReadings, e.cfg.FastRequiredDuration
	}
	if e.count < readings || now.Sub(e.firstLoudAt) < span {
		return Decision{}, false
	}
	if !e.lastAlertAt.IsZero() && now.Sub(e.lastAlertAt) < e.cfg.Cooldown {
		return Decision{}, false
	}

	e.lastAlertAt = now
	e.count = 0
	e.firstLoudAt = time.Time{}

	return newDecision(label, loudness, pol, snap.ProfileName, now), true
}

// Reset clears the accumulation state. The cooldown is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.count = 0
	e.firstLoudAt = time.Time{}
}

// State returns a copy of the current accumulation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		Count:         e.count,
		FirstLoudAt:   e.firstLoudAt,
		LastAlertAt:   e.lastAlertAt,
		LastThreshold: e.lastThreshold,
	}
	if e.count > 0 {
		st.Phase = PhaseAccumulating
	}
	return st
}

func newDecision(label types.NoiseLabel, loudness float64, pol Policy, profile string, at time.Time) Decision {
	msg := Message(label, loudness, profile)
	return Decision{
		Label:     label,
		Loudness:  loudness,
		Threshold: pol.Threshold,
		Class:     pol.Class,
		At:        at,
		Title:     Title,
		Message:   msg,
		Notification: types.NotificationItem{
			Title:        Title,
			Message:      msg,
			Timestamp:    at,
			Viewed:       false,
			NoiseType:    label,
			DecibelLevel: int(loudness),
		},
		Event: types.NoiseEvent{
			Timestamp:    at,
			DecibelLevel: loudness,
			IsAlert:      true,
			NoiseType:    label,
		},
	}
}

// Message formats the alert body. Screaming and breaking glass get a
// dedicated wording; everything else names the active profile.
func Message(label types.NoiseLabel, loudness float64, profile string) string {
	switch label {
	case types.LabelScreaming, types.LabelGlassBreaking:
		return fmt.Sprintf("Critical Noise Detected (%.1f dB)", loudness)
	}
	if profile == "" {
		profile = DefaultActivityName
	}
	return fmt.Sprintf("%s Threshold Exceeded (%.1f dB)", profile, loudness)
}
