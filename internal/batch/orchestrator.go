// Package batch drives the pipeline engine across every eligible artifact for a
// stage. Each stage has a single-worker queue, so at most one batch per stage is
// active; artifacts are processed one at a time in snapshot order and a failure
// never stops the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
)

// Stage names a batch operation.
type Stage string

// Batch operations.
const (
	StageTranscribe Stage = "transcribe_all"
	StageGenerate   Stage = "generate_all"
)

// Engine is the part of the pipeline engine a batch drives.
type Engine interface {
	SnapshotWhere(keep func(core.Artifact) bool) []core.Artifact
	RequestTranscription(ctx context.Context, id string) (core.Artifact, error)
	RequestSynthesis(ctx context.Context, id string, params core.VoiceParams) (core.Artifact, error)
}

// SettingsSource supplies the voice parameters used by generation batches.
type SettingsSource interface {
	Current() core.Settings
}

// Report summarizes one finished batch.
type Report struct {
	Stage     Stage             `json:"stage"`
	Attempted []string          `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// Batch is a handle to an accepted batch.
type Batch struct {
	stage  Stage
	done   <-chan struct{}
	report Report
}

// Stage returns the batch operation.
func (b *Batch) Stage() Stage {
	return b.stage
}

// Done is closed when the batch has finished.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Report returns the summary. It is complete only after Done is closed.
func (b *Batch) Report() Report {
	return b.report
}

// Wait blocks until the batch finishes or ctx ends. The batch itself keeps
// running when ctx ends.
func (b *Batch) Wait(ctx context.Context) (Report, error) {
	select {
	case <-b.done:
		return b.report, nil
	case <-ctx.Done():
		return Report{}, fmt.Errorf("waiting for %s: %w", b.stage, ctx.Err())
	}
}

// Orchestrator owns one queue per stage.
type Orchestrator struct {
	engine   Engine
	settings SettingsSource
	log      *logger.Logger
	queues   map[Stage]*Queue

	mu   sync.Mutex
	last map[Stage]Report
}

// New creates an orchestrator and starts its stage queues.
func New(engine Engine, settings SettingsSource, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		settings: settings,
		log:      log,
		queues: map[Stage]*Queue{
			StageTranscribe: NewQueue(string(StageTranscribe)),
			StageGenerate:   NewQueue(string(StageGenerate)),
		},
		last: make(map[Stage]Report),
	}
}

// StartTranscribeAll snapshots the artifacts in Upload and transcribes them in
// the background. It fails with core.ErrBatchRunning while a transcription batch
// is active.
func (o *Orchestrator) StartTranscribeAll(ctx context.Context) (*Batch, error) {
	snapshot := o.engine.SnapshotWhere(func(artifact core.Artifact) bool {
		return artifact.Status == core.StatusUpload
	})

	return o.start(ctx, StageTranscribe, snapshot, func(ctx context.Context, id string) error {
		_, err := o.engine.RequestTranscription(ctx, id)

		return err
	})
}

// TranscribeAll runs a transcription batch and waits for its report.
func (o *Orchestrator) TranscribeAll(ctx context.Context) (Report, error) {
	started, err := o.StartTranscribeAll(ctx)
	if err != nil {
		return Report{}, err
	}

	return started.Wait(ctx)
}

// StartGenerateAudioAll snapshots the artifacts in Processing with processed text
// and synthesizes them with the voice parameters current at invocation. It fails
// with core.ErrBatchRunning while a generation batch is active.
func (o *Orchestrator) StartGenerateAudioAll(ctx context.Context) (*Batch, error) {
	snapshot := o.engine.SnapshotWhere(func(artifact core.Artifact) bool {
		return artifact.Status == core.StatusProcessing && artifact.ProcessedText.IsSet()
	})
	voice := o.settings.Current().Voice

	return o.start(ctx, StageGenerate, snapshot, func(ctx context.Context, id string) error {
		_, err := o.engine.RequestSynthesis(ctx, id, voice)

		return err
	})
}

// GenerateAudioAll runs a generation batch and waits for its report.
func (o *Orchestrator) GenerateAudioAll(ctx context.Context) (Report, error) {
	started, err := o.StartGenerateAudioAll(ctx)
	if err != nil {
		return Report{}, err
	}

	return started.Wait(ctx)
}

// Busy reports whether a batch for stage is active.
func (o *Orchestrator) Busy(stage Stage) bool {
	queue, ok := o.queues[stage]

	return ok && queue.Busy()
}

// LastReport returns the report of the most recently finished batch for stage.
func (o *Orchestrator) LastReport(stage Stage) (Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	report, ok := o.last[stage]
	if !ok {
		return Report{}, false
	}

	return report.clone(), true
}

// Close waits for active batches and stops the queues.
func (o *Orchestrator) Close() {
	for _, queue := range o.queues {
		queue.Close()
	}
}

func (o *Orchestrator) start(
	ctx context.Context,
	stage Stage,
	snapshot []core.Artifact,
	step func(ctx context.Context, id string) error,
) (*Batch, error) {
	runCtx := context.WithoutCancel(ctx)
	started := &Batch{
		stage: stage,
		report: Report{
			Stage:     stage,
			Attempted: make([]string, 0, len(snapshot)),
			Failed:    make(map[string]string),
		},
	}

	done, err := o.queues[stage].Submit(func() {
		o.run(runCtx, started, snapshot, step)
	})
	if err != nil {
		o.log.Warn("Rejected %s: %v", stage, err)

		return nil, err
	}

	started.done = done
	o.log.Info("Accepted %s for %d artifacts", stage, len(snapshot))

	return started, nil
}

func (o *Orchestrator) run(
	ctx context.Context,
	started *Batch,
	snapshot []core.Artifact,
	step func(ctx context.Context, id string) error,
) {
	report := &started.report

	for _, artifact := range snapshot {
		report.Attempted = append(report.Attempted, artifact.ID)

		err := step(ctx, artifact.ID)
		if err != nil {
			report.Failed[artifact.ID] = err.Error()

			continue
		}

		report.Succeeded++
	}

	o.mu.Lock()
	o.last[started.stage] = report.clone()
	o.mu.Unlock()

	o.log.System("Finished %s: %d attempted, %d succeeded, %d failed",
		started.stage, len(report.Attempted), report.Succeeded, len(report.Failed))
}

func (r Report) clone() Report {
	r.Attempted = slices.Clone(r.Attempted)
	r.Failed = maps.Clone(r.Failed)

	return r
}
