// Package pipeline owns the artifact collection and the per-artifact state
// machine: Upload, Transcribing, Processing, Generating, Complete. A failed stage
// reverts the artifact to the stage it started from with the error recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
	"github.com/book-expert/regen-service/internal/textprep"
	"github.com/google/uuid"
)

var (
	// ErrNameNotAudio indicates an intake name without a supported audio extension.
	ErrNameNotAudio = errors.New("file is not a supported audio file")
	// ErrPayloadEmpty indicates an intake without payload bytes.
	ErrPayloadEmpty = errors.New("payload cannot be empty")
	// ErrSourceRefEmpty indicates an adopt call without a payload key.
	ErrSourceRefEmpty = errors.New("source reference cannot be empty")
)

// Dependencies are the collaborators of an Engine. Observer may be nil.
type Dependencies struct {
	Payloads    core.ObjectStore
	Transcriber core.Transcriber
	Enhancer    core.Enhancer
	Synthesizer core.Synthesizer
	Observer    core.ArtifactObserver
	Logger      *logger.Logger
}

// Engine is the only writer of artifacts. Callers read copies through Snapshot
// and Get and change artifacts only through the stage operations.
type Engine struct {
	deps       Dependencies
	normalizer *textprep.Normalizer

	mu        sync.Mutex
	artifacts map[string]*core.Artifact
	order     []string
	inFlight  map[string]core.Status
}

// New creates an engine with an empty collection.
func New(deps Dependencies) *Engine {
	return &Engine{
		deps:       deps,
		normalizer: textprep.NewNormalizer(),
		artifacts:  make(map[string]*core.Artifact),
		inFlight:   make(map[string]core.Status),
	}
}

// Intake stores the payload and appends a new artifact in Upload.
func (e *Engine) Intake(ctx context.Context, name string, payload []byte) (core.Artifact, error) {
	name = media.SanitizeFilename(name)

	if !media.IsAudioFile(name) {
		return core.Artifact{}, fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrNameNotAudio, name)
	}

	if len(payload) == 0 {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrPayloadEmpty)
	}

	sourceRef := uuid.NewString() + "." + media.Extension(name)

	err := e.deps.Payloads.Upload(ctx, sourceRef, payload)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("failed to store payload for %s: %w", name, err)
	}

	return e.add(name, sourceRef, int64(len(payload))), nil
}

// Adopt appends a new artifact for a payload that is already in the object store.
func (e *Engine) Adopt(ctx context.Context, name, sourceRef string) (core.Artifact, error) {
	name = media.SanitizeFilename(name)

	if !media.IsAudioFile(name) {
		return core.Artifact{}, fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrNameNotAudio, name)
	}

	if sourceRef == "" {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrSourceRefEmpty)
	}

	payload, err := e.deps.Payloads.Download(ctx, sourceRef)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("failed to read payload %s: %w", sourceRef, err)
	}

	if len(payload) == 0 {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrPayloadEmpty)
	}

	return e.add(name, sourceRef, int64(len(payload))), nil
}

func (e *Engine) add(name, sourceRef string, size int64) core.Artifact {
	artifact := &core.Artifact{
		ID:            uuid.NewString(),
		SourceRef:     sourceRef,
		Name:          name,
		SizeBytes:     size,
		Status:        core.StatusUpload,
		Transcription: core.None[string](),
		ProcessedText: core.None[string](),
		OutputRef:     core.None[string](),
		Progress:      core.ProgressStarted,
		Error:         core.None[string](),
		CreatedAt:     time.Now().UTC(),
	}

	e.mu.Lock()
	e.artifacts[artifact.ID] = artifact
	e.order = append(e.order, artifact.ID)
	snapshot := *artifact
	e.mu.Unlock()

	e.deps.Logger.Info("Added artifact %s (%s, %s)", snapshot.ID, snapshot.Name, media.FormatFileSize(size))
	e.notify(snapshot)

	return snapshot
}

// Remove drops an artifact and its payloads. Artifacts with a stage in flight
// cannot be removed.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()

	artifact, ok := e.artifacts[id]
	if !ok {
		e.mu.Unlock()

		return fmt.Errorf("%w: artifact %s", core.ErrNotFound, id)
	}

	if stage, busy := e.inFlight[id]; busy {
		e.mu.Unlock()

		return fmt.Errorf("%w: artifact %s is %s", core.ErrInFlight, id, stage)
	}

	removed := *artifact
	delete(e.artifacts, id)
	e.order = slices.DeleteFunc(e.order, func(candidate string) bool { return candidate == id })
	e.mu.Unlock()

	refs := []string{removed.SourceRef}
	if ref, set := removed.OutputRef.Get(); set {
		refs = append(refs, ref)
	}

	for _, ref := range refs {
		err := e.deps.Payloads.Delete(ctx, ref)
		if err != nil {
			e.deps.Logger.Warn("Failed to delete payload %s of artifact %s: %v", ref, id, err)
		}
	}

	e.deps.Logger.Info("Removed artifact %s", id)

	return nil
}

// Snapshot returns copies of all artifacts in insertion order.
func (e *Engine) Snapshot() []core.Artifact {
	return e.SnapshotWhere(func(core.Artifact) bool { return true })
}

// SnapshotWhere returns copies of the artifacts matching keep, in insertion order.
func (e *Engine) SnapshotWhere(keep func(core.Artifact) bool) []core.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Artifact, 0, len(e.order))

	for _, id := range e.order {
		artifact := *e.artifacts[id]
		if keep(artifact) {
			out = append(out, artifact)
		}
	}

	return out
}

// Get returns a copy of one artifact.
func (e *Engine) Get(id string) (core.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	artifact, ok := e.artifacts[id]
	if !ok {
		return core.Artifact{}, fmt.Errorf("%w: artifact %s", core.ErrNotFound, id)
	}

	return *artifact, nil
}

// InFlight reports whether a stage operation is running for the artifact.
func (e *Engine) InFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, busy := e.inFlight[id]

	return busy
}

// begin validates and starts a stage attempt under the lock: the artifact moves
// to stage with progress reset and error cleared, and is marked in flight.
func (e *Engine) begin(id string, stage core.Status, allowed func(core.Artifact) error) (core.Artifact, error) {
	e.mu.Lock()

	artifact, ok := e.artifacts[id]
	if !ok {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: artifact %s", core.ErrNotFound, id)
	}

	if running, busy := e.inFlight[id]; busy {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: artifact %s is %s", core.ErrInFlight, id, running)
	}

	err := allowed(*artifact)
	if err != nil {
		e.mu.Unlock()

		return core.Artifact{}, err
	}

	artifact.Status = stage
	artifact.Progress = core.ProgressStarted
	artifact.Error = core.None[string]()
	e.inFlight[id] = stage
	snapshot := *artifact
	e.mu.Unlock()

	e.notify(snapshot)

	return snapshot, nil
}

// update applies mutate to the artifact and publishes the result. When finish is
// set the in-flight mark is released in the same critical section.
func (e *Engine) update(id string, finish bool, mutate func(*core.Artifact)) core.Artifact {
	e.mu.Lock()

	artifact, ok := e.artifacts[id]
	if !ok {
		e.mu.Unlock()

		return core.Artifact{}
	}

	mutate(artifact)

	if finish {
		delete(e.inFlight, id)
	}

	snapshot := *artifact
	e.mu.Unlock()

	err := snapshot.CheckInvariants()
	if err != nil {
		e.deps.Logger.Error("Artifact invariant violated: %v", err)
	}

	e.notify(snapshot)

	return snapshot
}

// fail reverts the artifact to origin with progress reset and the error recorded.
// An artifact back in Upload never keeps a transcript.
func (e *Engine) fail(id string, origin core.Status, cause error) core.Artifact {
	e.deps.Logger.Error("Stage attempt from %s failed for artifact %s: %v", origin, id, cause)

	return e.update(id, true, func(artifact *core.Artifact) {
		artifact.Status = origin
		artifact.Progress = core.ProgressStarted
		artifact.Error = core.Some(cause.Error())

		if origin == core.StatusUpload {
			artifact.Transcription = core.None[string]()
		}
	})
}

func (e *Engine) notify(artifact core.Artifact) {
	if e.deps.Observer != nil {
		e.deps.Observer.ArtifactChanged(artifact)
	}
}
