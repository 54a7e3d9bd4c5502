package config

import "github.com/MrWong99/noisewatch/internal/profile"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// takes effect on restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AlertChanged is true if any alert policy value changed.
	AlertChanged bool

	ProfilesChanged bool          // true if any profile was added, removed or edited
	ProfileChanges  []ProfileDiff // per-profile diffs
}

// ProfileDiff describes what changed for a single profile between two configs.
type ProfileDiff struct {
	ID               string
	NameChanged      bool
	ThresholdChanged bool
	IconChanged      bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Alert != new.Alert {
		d.AlertChanged = true
	}

	oldProfiles := make(map[string]*profile.Profile, len(old.Profiles))
	for i := range old.Profiles {
		oldProfiles[old.Profiles[i].ID] = &old.Profiles[i]
	}
	newProfiles := make(map[string]*profile.Profile, len(new.Profiles))
	for i := range new.Profiles {
		newProfiles[new.Profiles[i].ID] = &new.Profiles[i]
	}

	// Modified and removed, in old order.
	for i := range old.Profiles {
		id := old.Profiles[i].ID
		np, exists := newProfiles[id]
		if !exists {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{ID: id, Removed: true})
			d.ProfilesChanged = true
			continue
		}
		pd := diffProfile(oldProfiles[id], np)
		if pd.NameChanged || pd.ThresholdChanged || pd.IconChanged {
			d.ProfileChanges = append(d.ProfileChanges, pd)
			d.ProfilesChanged = true
		}
	}

	// Added, in new order.
	for i := range new.Profiles {
		id := new.Profiles[i].ID
		if _, exists := oldProfiles[id]; !exists {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{ID: id, Added: true})
			d.ProfilesChanged = true
		}
	}

	return d
}

// IsZero reports whether no hot-reloadable setting changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.AlertChanged && !d.ProfilesChanged
}

// diffProfile compares two profiles with the same id.
func diffProfile(old, new *profile.Profile) ProfileDiff {
	return ProfileDiff{
		ID:               old.ID,
		NameChanged:      old.Name != new.Name,
		ThresholdChanged: old.Threshold != new.Threshold,
		IconChanged:      old.IconName != new.IconName,
	}
}
