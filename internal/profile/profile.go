// Package profile holds the activity profiles a user can select. Each profile
// carries the loudness threshold the alert engine applies to neutral sounds
// while that activity is selected.
package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Defaults applied to profiles that leave fields empty.
const (
	DefaultThreshold = 60
	DefaultIcon      = "Meeting"
)

// ErrUnknownProfile is returned when no profile matches an id or name.
var ErrUnknownProfile = errors.New("profile: unknown profile")

// Profile is one activity profile.
type Profile struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Threshold int    `json:"threshold" yaml:"threshold"`
	IconName  string `json:"iconName" yaml:"icon"`
}

func (p Profile) withDefaults() Profile {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.IconName == "" {
		p.IconName = DefaultIcon
	}
	return p
}

// Catalog is the set of known profiles. It is safe for concurrent use and can
// be replaced wholesale on config reload.
type Catalog struct {
	matcher *Matcher

	mu       sync.RWMutex
	profiles []Profile
	byID     map[string]int
}

// NewCatalog validates profiles and returns a Catalog holding them.
func NewCatalog(profiles []Profile) (*Catalog, error) {
	c := &Catalog{matcher: NewMatcher()}
	if err := c.Replace(profiles); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the catalog contents. Profiles need a unique, non-empty id
// and a name; on error the catalog is left unchanged.
func (c *Catalog) Replace(profiles []Profile) error {
	out := make([]Profile, 0, len(profiles))
	byID := make(map[string]int, len(profiles))
	var errs []error
	for i, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("profile[%d]: id is required", i))
			continue
		}
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("profile %q: name is required", p.ID))
			continue
		}
		if _, dup := byID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("profile %q: duplicate id", p.ID))
			continue
		}
		byID[p.ID] = len(out)
		out = append(out, p.withDefaults())
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = out
	c.byID = byID
	return nil
}

// Get returns the profile with the given id.
func (c *Catalog) Get(id string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return Profile{}, false
	}
	return c.profiles[i], true
}

// List returns a copy of all profiles in configuration order.
func (c *Catalog) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.profiles)
}

// Find resolves a loosely spelled profile name, as typed in a chat command or
// spoken to a voice assistant. An exact id match wins, then a
// case-insensitive name match, then the best fuzzy match.
func (c *Catalog) Find(name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if p, ok := c.Get(name); ok {
		return p, nil
	}

	c.mu.RLock()
	profiles := c.profiles
	c.mu.RUnlock()

	names := make([]string, len(profiles))
	for i, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
		names[i] = p.Name
	}
	best, _, ok := c.matcher.Match(name, names)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	for _, p := range profiles {
		if p.Name == best {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}
