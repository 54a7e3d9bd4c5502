// Package types defines the shared types used across all noisewatch packages.
//
// These types form the lingua franca between the audio pipeline, the alert
// engine, the stores and the notification sinks. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// NoiseLabel is the canonical category of the ambient sound currently heard.
//
// The vocabulary below is closed for the sounds the alert policy knows about.
// Any other classifier label is carried through verbatim as a NoiseLabel, so
// callers must not assume a value is one of the constants.
type NoiseLabel string

// Canonical noise labels. The string values are the display names shown to
// users and written to persisted events.
const (
	LabelUnknown        NoiseLabel = "Unknown"
	LabelHeartbeat      NoiseLabel = "Heartbeat"
	LabelTyping         NoiseLabel = "Typing"
	LabelRain           NoiseLabel = "Rain"
	LabelFan            NoiseLabel = "Fan"
	LabelBreathing      NoiseLabel = "Breathing"
	LabelAirConditioner NoiseLabel = "Air Conditioner"
	LabelWhiteNoise     NoiseLabel = "White Noise"
	LabelBabyCrying     NoiseLabel = "Baby Crying"
	LabelScreaming      NoiseLabel = "Screaming"
	LabelGlassBreaking  NoiseLabel = "Glass Breaking"
	LabelGunshot        NoiseLabel = "Gunshot"
	LabelSiren          NoiseLabel = "Siren"
	LabelLaughter       NoiseLabel = "Laughter"
	LabelTalking        NoiseLabel = "Talking"
	LabelSpeech         NoiseLabel = "Speech"
	LabelSinging        NoiseLabel = "Singing"
	LabelClapping       NoiseLabel = "Clapping"
	LabelMusic          NoiseLabel = "Music"
	LabelFootsteps      NoiseLabel = "Footsteps"
)

// String returns the display name of the label.
func (l NoiseLabel) String() string { return string(l) }

// IsUnknown reports whether l carries no actionable category. The empty label
// is treated as unknown.
func (l NoiseLabel) IsUnknown() bool { return l == "" || l == LabelUnknown }

// NoiseEvent is a persisted loudness observation. Periodic snapshots have
// IsAlert false; events written when an alert fires have IsAlert true.
//
// Events are written once and never modified.
type NoiseEvent struct {
	// ID is assigned by the store when empty.
	ID string `json:"id"`

	// Timestamp is when the reading was taken.
	Timestamp time.Time `json:"timestamp"`

	// DecibelLevel is the smoothed loudness in the calibrated [30, 100] scale.
	DecibelLevel float64 `json:"decibelLevel"`

	// IsAlert marks events produced by a fired alert.
	IsAlert bool `json:"isAlert"`

	// NoiseType is the classification label at the time of the reading.
	NoiseType NoiseLabel `json:"noiseType"`
}

// NotificationItem is a user-facing alert record saved to the notification
// history.
type NotificationItem struct {
	// ID is assigned by the store when empty.
	ID string `json:"id"`

	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Viewed is false on creation and flipped when the user opens the item.
	Viewed bool `json:"viewed"`

	NoiseType NoiseLabel `json:"noiseType"`

	// DecibelLevel is the loudness that triggered the alert, truncated to an
	// integer for display.
	DecibelLevel int `json:"decibelLevel"`
}
