// Package voices implements the voice profile registry: base voices reported by
// the synthesis service, predefined composite blends and user-created composites.
package voices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
)

// StoreKey is the single key holding the serialized user-created composites.
const StoreKey = "combined_voices"

// CompositeSeparator joins base voice ids into a composite id.
const CompositeSeparator = "+"

// DefaultVoiceID is the base voice selected when the current selection is deleted.
const DefaultVoiceID = "af_heart"

const (
	minComponents = 2
	trialText     = "Testing combined voice"
)

// SampleText is spoken by Sample to preview a voice.
const SampleText = "Hello! This is a sample of my voice. I can help you with audio generation."

var (
	// ErrNameEmpty indicates an empty composite name.
	ErrNameEmpty = errors.New("voice name cannot be empty")
	// ErrTooFewVoices indicates fewer than two distinct base voices.
	ErrTooFewVoices = errors.New("at least 2 distinct base voices are required")
	// ErrInvalidComponent indicates an empty or malformed base voice id.
	ErrInvalidComponent = errors.New("invalid base voice id")
	// ErrDuplicateVoice indicates the composite id is already registered.
	ErrDuplicateVoice = errors.New("voice already exists")
	// ErrVoiceIDEmpty indicates a sample request without a voice id.
	ErrVoiceIDEmpty = errors.New("voice id cannot be empty")
	// ErrTrialSynthesis indicates the validation synthesis call failed.
	ErrTrialSynthesis = errors.New("trial synthesis failed")
)

// Selection resets the selected voice when it is removed.
type Selection interface {
	ResetVoice(ctx context.Context, removedID, fallback string) bool
}

// Dependencies are the collaborators of a Registry.
type Dependencies struct {
	Lister      core.VoiceLister
	Synthesizer core.Synthesizer
	Store       core.KeyValueStore
	Selection   Selection
	Logger      *logger.Logger
}

// Registry catalogs voice profiles. Create and delete are serialized; reads see
// a consistent copy of the user-created set.
type Registry struct {
	deps Dependencies

	writeMu sync.Mutex
	mu      sync.RWMutex
	user    []core.VoiceProfile
}

// New creates an empty registry. Call Load to read persisted composites.
func New(deps Dependencies) *Registry {
	return &Registry{deps: deps}
}

// Load reads the persisted user-created composites. Missing data yields an empty
// set; corrupt data is logged and ignored.
func (r *Registry) Load(ctx context.Context) {
	loaded := r.readUser(ctx)

	r.mu.Lock()
	r.user = loaded
	r.mu.Unlock()

	r.deps.Logger.Info("Loaded %d user-created voices", len(loaded))
}

func (r *Registry) readUser(ctx context.Context) []core.VoiceProfile {
	data, err := r.deps.Store.Get(ctx, StoreKey)
	if err != nil {
		if !errors.Is(err, core.ErrKeyNotFound) {
			r.deps.Logger.Warn("Failed to read user voices: %v", err)
		}

		return nil
	}

	var stored []core.VoiceProfile

	err = json.Unmarshal(data, &stored)
	if err != nil {
		r.deps.Logger.Warn("Stored user voices are corrupt, ignoring: %v", err)

		return nil
	}

	valid := make([]core.VoiceProfile, 0, len(stored))

	for _, profile := range stored {
		if profile.IsBase || profile.IsPredefined || isPredefinedID(profile.ID) || len(profile.Components) < minComponents {
			r.deps.Logger.Warn("Ignoring stored voice %q: not a user-created composite", profile.ID)

			continue
		}

		valid = append(valid, profile)
	}

	return valid
}

// BaseVoices returns the base voices reported by the synthesis service, or the
// fallback list when the listing call fails.
func (r *Registry) BaseVoices(ctx context.Context) []core.VoiceProfile {
	tags, err := r.deps.Lister.ListVoices(ctx)
	if err != nil {
		r.deps.Logger.Warn("Failed to list base voices, using fallback list: %v", err)

		tags = FallbackBaseVoices()
	}

	profiles := make([]core.VoiceProfile, 0, len(tags))
	for _, tag := range tags {
		profiles = append(profiles, DecodeTag(tag))
	}

	return profiles
}

// Composites returns the predefined composites followed by the user-created ones.
func (r *Registry) Composites() []core.VoiceProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append(Predefined(), cloneProfiles(r.user)...)
}

// ListVoices returns base voices, then predefined composites, then user-created
// composites.
func (r *Registry) ListVoices(ctx context.Context) []core.VoiceProfile {
	return append(r.BaseVoices(ctx), r.Composites()...)
}

// Sample synthesizes SampleText as mp3 with voiceID so the voice can be
// previewed. Any id the synthesis service accepts can be sampled.
func (r *Registry) Sample(ctx context.Context, voiceID string) ([]byte, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceIDEmpty)
	}

	audio, err := r.deps.Synthesizer.Synthesize(ctx, core.SpeechRequest{
		Input:          SampleText,
		Voice:          voiceID,
		ResponseFormat: media.FormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample voice %s: %w", voiceID, err)
	}

	return audio, nil
}

// CreateComposite validates the selection, issues a trial synthesis with the
// derived id and, on success, appends and persists the new composite. Any failure
// leaves the registry unchanged.
func (r *Registry) CreateComposite(ctx context.Context, name string, baseIDs []string) (core.VoiceProfile, error) {
	name = strings.TrimSpace(name)

	err := validateSelection(name, baseIDs)
	if err != nil {
		return core.VoiceProfile{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	id := CompositeID(baseIDs)
	if r.exists(id) {
		return core.VoiceProfile{}, fmt.Errorf("%w: %w: %s", core.ErrValidation, ErrDuplicateVoice, id)
	}

	_, err = r.deps.Synthesizer.Synthesize(ctx, core.SpeechRequest{
		Input:          trialText,
		Voice:          id,
		ResponseFormat: media.FormatMP3,
	})
	if err != nil {
		return core.VoiceProfile{}, fmt.Errorf("%w for %s: %w", ErrTrialSynthesis, id, err)
	}

	profile := core.VoiceProfile{
		ID:         id,
		Name:       name,
		Gender:     GenderMixed,
		Accent:     AccentCombined,
		IsBase:     false,
		Components: append([]string(nil), baseIDs...),
	}

	r.mu.Lock()
	previous := r.user
	r.user = append(slices.Clip(previous), profile)
	next := cloneProfiles(r.user)
	r.mu.Unlock()

	err = r.persist(ctx, next)
	if err != nil {
		r.mu.Lock()
		r.user = previous
		r.mu.Unlock()

		return core.VoiceProfile{}, err
	}

	r.deps.Logger.Info("Created composite voice %s (%s)", id, name)

	return profile, nil
}

// DeleteComposite removes a user-created composite. Predefined voices are
// protected. When the removed voice is selected, the selection falls back to
// DefaultVoiceID.
func (r *Registry) DeleteComposite(ctx context.Context, id string) error {
	if isPredefinedID(id) {
		return fmt.Errorf("%w: %s is a predefined voice", core.ErrProtected, id)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	previous := r.user

	index := slices.IndexFunc(previous, func(profile core.VoiceProfile) bool { return profile.ID == id })
	if index < 0 {
		r.mu.Unlock()

		return fmt.Errorf("%w: voice %s", core.ErrNotFound, id)
	}

	r.user = slices.Delete(slices.Clone(previous), index, index+1)
	next := cloneProfiles(r.user)
	r.mu.Unlock()

	err := r.persist(ctx, next)
	if err != nil {
		r.mu.Lock()
		r.user = previous
		r.mu.Unlock()

		return err
	}

	r.deps.Logger.Info("Deleted composite voice %s", id)
	r.deps.Selection.ResetVoice(ctx, id, DefaultVoiceID)

	return nil
}

func (r *Registry) exists(id string) bool {
	if isPredefinedID(id) {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.ContainsFunc(r.user, func(profile core.VoiceProfile) bool { return profile.ID == id })
}

func (r *Registry) persist(ctx context.Context, profiles []core.VoiceProfile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to encode user voices: %w", err)
	}

	err = r.deps.Store.Put(ctx, StoreKey, data)
	if err != nil {
		return fmt.Errorf("failed to persist user voices: %w", err)
	}

	return nil
}

func validateSelection(name string, baseIDs []string) error {
	if name == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrNameEmpty)
	}

	seen := make(map[string]struct{}, len(baseIDs))

	for _, id := range baseIDs {
		if strings.TrimSpace(id) == "" || strings.Contains(id, CompositeSeparator) {
			return fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrInvalidComponent, id)
		}

		seen[id] = struct{}{}
	}

	if len(seen) < minComponents || len(seen) != len(baseIDs) {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrTooFewVoices)
	}

	return nil
}

func isPredefinedID(id string) bool {
	return slices.ContainsFunc(predefinedComposites, func(profile core.VoiceProfile) bool { return profile.ID == id })
}
