package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/noisewatch/pkg/audio"
	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
)

// ErrProviderNotRegistered is returned when a config names a provider no
// factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one named set of constructors.
type factories[C, P any] struct {
	kind string
	byID map[string]func(C) (P, error)
}

func (f *factories[C, P]) lookup(name string) (func(C) (P, error), error) {
	build, ok := f.byID[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q (have: %s)", ErrProviderNotRegistered, f.kind, name, strings.Join(f.names(), ", "))
	}
	return build, nil
}

func (f *factories[C, P]) names() []string {
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry resolves the provider names of a [Config] to constructors. Audio
// sources are keyed by [AudioConfig.Provider], classifier engines by
// [EngineEntry.Provider]. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	audio      factories[AudioConfig, audio.Capturer]
	classifier factories[EngineEntry, classifier.Engine]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		audio:      factories[AudioConfig, audio.Capturer]{kind: "audio", byID: map[string]func(AudioConfig) (audio.Capturer, error){}},
		classifier: factories[EngineEntry, classifier.Engine]{kind: "classifier", byID: map[string]func(EngineEntry) (classifier.Engine, error){}},
	}
}

// RegisterAudio adds or replaces the capture factory called name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Capturer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.byID[name] = factory
}

// RegisterClassifier adds or replaces the engine factory called name.
func (r *Registry) RegisterClassifier(name string, factory func(EngineEntry) (classifier.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier.byID[name] = factory
}

// CreateAudio builds the capturer cfg names.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Capturer, error) {
	r.mu.RLock()
	build, err := r.audio.lookup(cfg.Provider)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return build(cfg)
}

// CreateClassifier builds the engine entry names.
func (r *Registry) CreateClassifier(entry EngineEntry) (classifier.Engine, error) {
	r.mu.RLock()
	build, err := r.classifier.lookup(entry.Provider)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return build(entry)
}

// AudioProviders returns the registered capture names, sorted.
func (r *Registry) AudioProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.names()
}

// ClassifierProviders returns the registered engine names, sorted.
func (r *Registry) ClassifierProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier.names()
}
