// Package settings holds the process-wide UnitSettings.
//
// Readers take a snapshot with Current at the start of a task and never look
// again; an update racing with an in-flight task does not affect that task.
// No lock is held across a generation.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Store is the single holder of the current UnitSettings.
type Store struct {
	cur atomic.Pointer[scaling.UnitSettings]

	mu        sync.Mutex
	listeners []func(scaling.UnitSettings)
}

// NewStore creates a store holding initial.
func NewStore(initial scaling.UnitSettings) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.cur.Store(&initial)
	return s, nil
}

// Current returns a snapshot of the settings.
func (s *Store) Current() scaling.UnitSettings {
	return *s.cur.Load()
}

// Update replaces the settings after validating them. Listeners are called
// with the new value.
func (s *Store) Update(u scaling.UnitSettings) error {
	if err := u.Validate(); err != nil {
		return err
	}
	prev := s.cur.Swap(&u)
	logging.Settings("unit settings %.3f/%.3f -> %.3f/%.3f",
		prev.UnitSize, prev.UnitHeight, u.UnitSize, u.UnitHeight)

	s.mu.Lock()
	listeners := append([]func(scaling.UnitSettings){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
	return nil
}

// OnChange registers fn to be called after every accepted update.
func (s *Store) OnChange(fn func(scaling.UnitSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LoadFile reads UnitSettings from a YAML file with unit_size and
// unit_height keys. Missing keys keep the values of base.
func LoadFile(path string, base scaling.UnitSettings) (scaling.UnitSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read settings file: %w", err)
	}
	u := base
	if err := yaml.Unmarshal(data, &u); err != nil {
		return base, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if err := u.Validate(); err != nil {
		return base, fmt.Errorf("settings file %s: %w", path, err)
	}
	return u, nil
}

// ErrNoSettingsFile is returned by NewWatcher for an empty path.
var ErrNoSettingsFile = errors.New("no settings file configured")
