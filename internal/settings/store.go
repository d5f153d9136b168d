// Package settings owns the user configuration: text-processing prompt and
// instructions plus the voice parameters used for synthesis.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
)

// StoreKey is the single key holding the serialized settings object.
const StoreKey = "settings"

// Built-in defaults.
const (
	DefaultVoiceID = "af_heart"
	DefaultSpeed   = 1.0
	DefaultPitch   = 1.0
	DefaultFormat  = media.FormatMP3
)

// Valid range for speed and pitch, exclusive of the lower bound.
const (
	minRate = 0.0
	maxRate = 4.0
)

var (
	// ErrVoiceIDEmpty indicates an empty voice selection.
	ErrVoiceIDEmpty = errors.New("voice id cannot be empty")
	// ErrSpeedRange indicates a speed outside (0, 4].
	ErrSpeedRange = errors.New("speed must be in (0, 4]")
	// ErrPitchRange indicates a pitch outside (0, 4].
	ErrPitchRange = errors.New("pitch must be in (0, 4]")
	// ErrUnsupportedFormat indicates an unknown response format.
	ErrUnsupportedFormat = errors.New("unsupported response format")
)

// Defaults returns the built-in settings.
func Defaults() core.Settings {
	return core.Settings{
		TextProcessing: core.TextProcessing{
			Prompt:       "",
			Instructions: "",
		},
		Voice: core.VoiceParams{
			VoiceID:        DefaultVoiceID,
			Speed:          DefaultSpeed,
			Pitch:          DefaultPitch,
			ResponseFormat: DefaultFormat,
		},
	}
}

// Validate checks the voice parameters of s.
func Validate(s core.Settings) error {
	voice := s.Voice

	if strings.TrimSpace(voice.VoiceID) == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceIDEmpty)
	}

	if !inRange(voice.Speed) {
		return fmt.Errorf("%w: %w: got %g", core.ErrValidation, ErrSpeedRange, voice.Speed)
	}

	if !inRange(voice.Pitch) {
		return fmt.Errorf("%w: %w: got %g", core.ErrValidation, ErrPitchRange, voice.Pitch)
	}

	if !media.IsResponseFormat(voice.ResponseFormat) {
		return fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrUnsupportedFormat, voice.ResponseFormat)
	}

	return nil
}

// Store holds the current settings in memory and persists them to a key-value
// store. The in-memory copy is authoritative for the running process.
type Store struct {
	mu      sync.RWMutex
	current core.Settings
	kv      core.KeyValueStore
	log     *logger.Logger
}

// New creates a store initialized with the built-in defaults.
func New(kv core.KeyValueStore, log *logger.Logger) *Store {
	return &Store{
		current: Defaults(),
		kv:      kv,
		log:     log,
	}
}

// Load reads the persisted settings and merges them over the defaults field by
// field. Missing or corrupt data yields the defaults; an invalid voice field
// falls back to its own default.
func (s *Store) Load(ctx context.Context) core.Settings {
	loaded := s.read(ctx)

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	return loaded
}

func (s *Store) read(ctx context.Context) core.Settings {
	data, err := s.kv.Get(ctx, StoreKey)
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			s.log.Warn("Failed to read settings, using defaults: %v", err)
		}

		return Defaults()
	}

	merged := Defaults()

	err = json.Unmarshal(data, &merged)
	if err != nil {
		s.log.Warn("Stored settings are corrupt, using defaults: %v", err)

		return Defaults()
	}

	return s.repair(merged)
}

// repair resets each invalid voice field to its default and keeps the rest.
func (s *Store) repair(merged core.Settings) core.Settings {
	defaults := Defaults().Voice
	voice := &merged.Voice

	if strings.TrimSpace(voice.VoiceID) == "" {
		s.log.Warn("Stored voice id is empty, using %s", defaults.VoiceID)
		voice.VoiceID = defaults.VoiceID
	}

	if !inRange(voice.Speed) {
		s.log.Warn("Stored speed %g is out of range, using %g", voice.Speed, defaults.Speed)
		voice.Speed = defaults.Speed
	}

	if !inRange(voice.Pitch) {
		s.log.Warn("Stored pitch %g is out of range, using %g", voice.Pitch, defaults.Pitch)
		voice.Pitch = defaults.Pitch
	}

	if !media.IsResponseFormat(voice.ResponseFormat) {
		s.log.Warn("Stored response format %q is unsupported, using %s", voice.ResponseFormat, defaults.ResponseFormat)
		voice.ResponseFormat = defaults.ResponseFormat
	}

	return merged
}

func inRange(rate float64) bool {
	return rate > minRate && rate <= maxRate
}

// Current returns a copy of the in-memory settings.
func (s *Store) Current() core.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Save replaces the settings wholesale. Invalid settings are rejected without
// mutation. A storage failure is logged and does not undo the in-memory update.
func (s *Store) Save(ctx context.Context, next core.Settings) error {
	err := Validate(next)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.persist(ctx, next)

	return nil
}

// ResetVoice replaces the selected voice with fallback when it equals removedID.
// It reports whether the selection changed.
func (s *Store) ResetVoice(ctx context.Context, removedID, fallback string) bool {
	s.mu.Lock()

	if s.current.Voice.VoiceID != removedID {
		s.mu.Unlock()

		return false
	}

	s.current.Voice.VoiceID = fallback
	snapshot := s.current
	s.mu.Unlock()

	s.log.Info("Selected voice %s was removed, reset to %s", removedID, fallback)
	s.persist(ctx, snapshot)

	return true
}

func (s *Store) persist(ctx context.Context, snapshot core.Settings) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.log.Warn("Failed to encode settings: %v", err)

		return
	}

	err = s.kv.Put(ctx, StoreKey, data)
	if err != nil {
		s.log.Warn("Failed to persist settings: %v", err)
	}
}
