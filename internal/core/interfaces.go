// Package core defines the domain model and the collaborator interfaces for the
// regeneration service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
// It holds the binary payloads referenced by an artifact's SourceRef and OutputRef.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// KeyValueStore is the persistent store for settings and user-created voices.
// Get returns ErrKeyNotFound when the key has never been written.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Transcriber turns a binary audio payload into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Enhancer rewrites source text following a system instruction.
type Enhancer interface {
	Enhance(ctx context.Context, instruction, text string) (string, error)
}

// SpeechRequest carries the per-call options for one synthesis request.
// Speed is forwarded opaquely; zero means the service default.
type SpeechRequest struct {
	Input          string
	Voice          string
	ResponseFormat string
	Speed          float64
}

// Synthesizer produces an audio payload for the given text and voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// VoiceLister returns the base voice tags known to the synthesis service.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]string, error)
}

// ArtifactObserver is notified with a copy of an artifact after every committed change.
type ArtifactObserver interface {
	ArtifactChanged(artifact Artifact)
}
