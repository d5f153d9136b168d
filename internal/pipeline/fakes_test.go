package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/pipeline"
	"github.com/stretchr/testify/require"
)

var (
	errMockTranscribe = errors.New("whisper returned 500")
	errMockEnhance    = errors.New("rate limit reached")
	errMockSynthesize = errors.New("voice not found")
	errMockUpload     = errors.New("mock upload error")
)

// memoryStore is an in-memory ObjectStore.
type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failWrite bool
	deleted   []string
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", core.ErrNotFound, key)
	}

	return data, nil
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrite {
		return errMockUpload
	}

	m.objects[key] = data

	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	m.deleted = append(m.deleted, key)

	return nil
}

// mockTranscriber fails for names in failNames and can block until released.
// A non-empty reply replaces the generated transcript.
type mockTranscriber struct {
	mu        sync.Mutex
	failNames map[string]bool
	reply     string
	calls     []string
	started   chan string
	release   chan struct{}
}

func (m *mockTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, filename)
	fail := m.failNames[filename]
	reply := m.reply
	m.mu.Unlock()

	if m.started != nil {
		m.started <- filename
	}

	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if fail {
		return "", fmt.Errorf("%w: %w", core.ErrServiceUnavailable, errMockTranscribe)
	}

	if reply != "" {
		return reply, nil
	}

	return "transcript of " + string(audio), nil
}

func (m *mockTranscriber) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.calls...)
}

type mockEnhancer struct {
	fail        bool
	reply       string
	instruction string
	text        string
}

func (m *mockEnhancer) Enhance(_ context.Context, instruction, text string) (string, error) {
	m.instruction = instruction
	m.text = text

	if m.fail {
		return "", fmt.Errorf("%w: %w", core.ErrServiceUnavailable, errMockEnhance)
	}

	if m.reply != "" {
		return m.reply, nil
	}

	return "\nEnhanced: " + text + "  ", nil
}

type mockSynthesizer struct {
	mu       sync.Mutex
	fail     bool
	requests []core.SpeechRequest
}

func (m *mockSynthesizer) Synthesize(_ context.Context, req core.SpeechRequest) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.fail {
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, errMockSynthesize)
	}

	return []byte("audio:" + req.Input), nil
}

// recordingObserver keeps every published artifact change.
type recordingObserver struct {
	mu      sync.Mutex
	changes []core.Artifact
}

func (r *recordingObserver) ArtifactChanged(artifact core.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, artifact)
}

func (r *recordingObserver) statuses(id string) []core.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Status

	for _, change := range r.changes {
		if change.ID == id && (len(out) == 0 || out[len(out)-1] != change.Status) {
			out = append(out, change.Status)
		}
	}

	return out
}

func (r *recordingObserver) progress(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int

	for _, change := range r.changes {
		if change.ID == id {
			out = append(out, change.Progress)
		}
	}

	return out
}

type fixture struct {
	engine      *pipeline.Engine
	store       *memoryStore
	transcriber *mockTranscriber
	enhancer    *mockEnhancer
	synth       *mockSynthesizer
	observer    *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	f := &fixture{
		store:       &memoryStore{objects: make(map[string][]byte)},
		transcriber: &mockTranscriber{failNames: make(map[string]bool)},
		enhancer:    &mockEnhancer{},
		synth:       &mockSynthesizer{},
		observer:    &recordingObserver{},
	}

	f.engine = pipeline.New(pipeline.Dependencies{
		Payloads:    f.store,
		Transcriber: f.transcriber,
		Enhancer:    f.enhancer,
		Synthesizer: f.synth,
		Observer:    f.observer,
		Logger:      log,
	})

	return f
}

func (f *fixture) intake(t *testing.T, name string) core.Artifact {
	t.Helper()

	artifact, err := f.engine.Intake(context.Background(), name, []byte(name))
	require.NoError(t, err)

	return artifact
}

// processing brings a new artifact to Processing with accepted text.
func (f *fixture) processing(t *testing.T, name string) core.Artifact {
	t.Helper()

	artifact := f.intake(t, name)

	_, err := f.engine.RequestTranscription(context.Background(), artifact.ID)
	require.NoError(t, err)

	accepted, err := f.engine.AcceptEnhancement(artifact.ID, "Final text for "+name)
	require.NoError(t, err)

	return accepted
}

var defaultVoice = core.VoiceParams{VoiceID: "af_heart", Speed: 1, Pitch: 1, ResponseFormat: "mp3"}
