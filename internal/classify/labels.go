package classify

import (
	"strings"

	"github.com/MrWong99/noisewatch/pkg/types"
)

// rule maps any of its substrings to a canonical label.
type rule struct {
	substrings []string
	label      types.NoiseLabel
}

// rules is evaluated top to bottom and the first match wins. Order encodes
// priority between overlapping tokens ("heart" must win over generic human
// sounds, "white noise" over "static", and so on); do not sort it.
var rules = []rule{
	{[]string{"inside", "silence", "room", "environment", "background"}, types.LabelUnknown},
	{[]string{"heart"}, types.LabelHeartbeat},
	{[]string{"type", "typing"}, types.LabelTyping},
	{[]string{"rain"}, types.LabelRain},
	{[]string{"fan"}, types.LabelFan},
	{[]string{"breath"}, types.LabelBreathing},
	{[]string{"air condition"}, types.LabelAirConditioner},
	{[]string{"white noise", "static"}, types.LabelWhiteNoise},
	{[]string{"cry"}, types.LabelBabyCrying},
	{[]string{"scream", "shout", "yell"}, types.LabelScreaming},
	{[]string{"glass"}, types.LabelGlassBreaking},
	{[]string{"gun"}, types.LabelGunshot},
	{[]string{"siren", "alarm"}, types.LabelSiren},
	{[]string{"laugh"}, types.LabelLaughter},
	{[]string{"talk", "speech", "conversation"}, types.LabelTalking},
	{[]string{"sing"}, types.LabelSinging},
	{[]string{"clap"}, types.LabelClapping},
	{[]string{"music"}, types.LabelMusic},
	{[]string{"footstep", "walk"}, types.LabelFootsteps},
}

// Normalize maps a raw classifier class name to the canonical label
// vocabulary. Matching is case-insensitive substring search over an ordered
// rule table. A name that matches no rule is returned verbatim; an empty name
// is Unknown.
func Normalize(raw string) types.NoiseLabel {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return types.LabelUnknown
	}
	for _, r := range rules {
		for _, sub := range r.substrings {
			if strings.Contains(lower, sub) {
				return r.label
			}
		}
	}
	return types.NoiseLabel(raw)
}
