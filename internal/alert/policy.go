package alert

import "github.com/MrWong99/noisewatch/pkg/types"

// Class groups labels that share an alert policy.
type Class int

const (
	// ClassNeutral labels (human activity and anything unrecognised) use the
	// selected profile's threshold.
	ClassNeutral Class = iota

	// ClassAmbient labels are steady background sounds that are loud by
	// nature and only alert at a very high level.
	ClassAmbient

	// ClassCritical labels indicate possible danger. They alert at a low
	// level and skip the long debounce.
	ClassCritical
)

// String returns the human-readable name of the class.
func (c Class) String() string {
	switch c {
	case ClassNeutral:
		return "neutral"
	case ClassAmbient:
		return "ambient"
	case ClassCritical:
		return "critical"
	default:
		return "unknown"
	}
}

var labelClasses = map[types.NoiseLabel]Class{
	types.LabelWhiteNoise:     ClassAmbient,
	types.LabelRain:           ClassAmbient,
	types.LabelFan:            ClassAmbient,
	types.LabelTyping:         ClassAmbient,
	types.LabelBreathing:      ClassAmbient,
	types.LabelAirConditioner: ClassAmbient,
	types.LabelHeartbeat:      ClassAmbient,

	types.LabelScreaming:     ClassCritical,
	types.LabelGlassBreaking: ClassCritical,
	types.LabelGunshot:       ClassCritical,
	types.LabelSiren:         ClassCritical,
	types.LabelBabyCrying:    ClassCritical,
}

// ClassOf returns the policy class of label. Labels outside the table,
// including pass-through labels and Unknown, are neutral.
func ClassOf(label types.NoiseLabel) Class {
	return labelClasses[label]
}

// Policy is the effective alert rule for one reading.
type Policy struct {
	Class Class

	// Threshold is the loudness a reading must exceed.
	Threshold float64

	// IgnoreDuration selects the fast path: fewer readings and a shorter
	// span are enough to fire.
	IgnoreDuration bool
}

// PolicyFor returns the effective policy for label under cfg, given the
// selected profile's threshold.
func PolicyFor(cfg Config, label types.NoiseLabel, profileThreshold float64) Policy {
	switch c := ClassOf(label); c {
	case ClassAmbient:
		return Policy{Class: c, Threshold: cfg.AmbientThreshold}
	case ClassCritical:
		return Policy{Class: c, Threshold: cfg.CriticalThreshold, IgnoreDuration: true}
	default:
		return Policy{Class: c, Threshold: profileThreshold}
	}
}
