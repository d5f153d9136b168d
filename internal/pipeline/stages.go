package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
	"github.com/google/uuid"
)

// DefaultPrompt is the enhancement instruction used when no prompt is configured.
const DefaultPrompt = "You are a text enhancement assistant. Your task is to improve the clarity, " +
	"grammar, and structure of transcribed text while preserving the original meaning and intent. " +
	"Remove filler words, fix grammar issues, and make the text more readable and professional."

const additionalInstructionsSeparator = "\n\nAdditional Instructions: "

var (
	// ErrNoTranscription indicates an operation that needs a transcript.
	ErrNoTranscription = errors.New("artifact has no transcription")
	// ErrNoProcessedText indicates synthesis without accepted text.
	ErrNoProcessedText = errors.New("artifact has no processed text")
	// ErrTextEmpty indicates accepted text that is empty after normalization.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrNoOutput indicates an artifact without synthesized audio.
	ErrNoOutput = errors.New("artifact has no output")
	// ErrVoiceIDEmpty indicates synthesis without a voice.
	ErrVoiceIDEmpty = errors.New("voice id cannot be empty")
)

// RenderInstruction builds the system instruction for the enhancement service.
func RenderInstruction(prompt, instructions string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return prompt
	}

	return prompt + additionalInstructionsSeparator + instructions
}

// RequestTranscription runs speech-to-text for an artifact in Upload. On success
// the transcript is recorded verbatim and the artifact stays in Transcribing. On failure
// it reverts to Upload with the error recorded. The returned artifact reflects
// the outcome in both cases.
func (e *Engine) RequestTranscription(ctx context.Context, id string) (core.Artifact, error) {
	started, err := e.begin(id, core.StatusTranscribing, func(artifact core.Artifact) error {
		if artifact.Status != core.StatusUpload {
			return fmt.Errorf("%w: transcription requires %s, artifact %s is %s",
				core.ErrIllegalTransition, core.StatusUpload, id, artifact.Status)
		}

		return nil
	})
	if err != nil {
		return core.Artifact{}, err
	}

	payload, err := e.deps.Payloads.Download(ctx, started.SourceRef)
	if err != nil {
		return e.transcriptionFailed(id, fmt.Errorf("failed to read payload: %w", err))
	}

	e.update(id, false, func(artifact *core.Artifact) { artifact.Progress = core.ProgressDispatched })

	transcript, err := e.deps.Transcriber.Transcribe(ctx, started.Name, payload)
	if err != nil {
		return e.transcriptionFailed(id, err)
	}

	done := e.update(id, true, func(artifact *core.Artifact) {
		artifact.Transcription = core.Some(transcript)
		artifact.Progress = core.ProgressDone
		artifact.Error = core.None[string]()
	})

	e.deps.Logger.Info("Transcribed artifact %s (%d characters)", id, len(transcript))

	return done, nil
}

func (e *Engine) transcriptionFailed(id string, cause error) (core.Artifact, error) {
	failed := e.fail(id, core.StatusUpload, cause)

	return failed, fmt.Errorf("transcription of artifact %s failed: %w", id, cause)
}

// RequestEnhancement asks the enhancement service to rewrite the transcript and
// returns the proposed text, trimmed but otherwise as returned. The artifact is
// not changed; the proposal is committed with AcceptEnhancement.
func (e *Engine) RequestEnhancement(ctx context.Context, id, prompt, instructions string) (string, error) {
	artifact, err := e.Get(id)
	if err != nil {
		return "", err
	}

	transcript, ok := artifact.Transcription.Get()
	if !ok {
		return "", fmt.Errorf("%w: %w: %s", core.ErrIllegalTransition, ErrNoTranscription, id)
	}

	enhanced, err := e.deps.Enhancer.Enhance(ctx, RenderInstruction(prompt, instructions), transcript)
	if err != nil {
		return "", fmt.Errorf("enhancement of artifact %s failed: %w", id, err)
	}

	return strings.TrimSpace(enhanced), nil
}

// AcceptEnhancement commits text as the artifact's processed text and moves it
// to Processing. It is legal from Transcribing with a transcript present, and
// from Processing to replace earlier text.
func (e *Engine) AcceptEnhancement(id, text string) (core.Artifact, error) {
	text = e.normalizer.Clean(text)
	if text == "" {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrTextEmpty)
	}

	e.mu.Lock()

	artifact, ok := e.artifacts[id]
	if !ok {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: artifact %s", core.ErrNotFound, id)
	}

	if stage, busy := e.inFlight[id]; busy {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: artifact %s is %s", core.ErrInFlight, id, stage)
	}

	if !artifact.Transcription.IsSet() {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: %w: %s", core.ErrIllegalTransition, ErrNoTranscription, id)
	}

	if artifact.Status != core.StatusTranscribing && artifact.Status != core.StatusProcessing {
		e.mu.Unlock()

		return core.Artifact{}, fmt.Errorf("%w: cannot accept text for artifact %s in %s",
			core.ErrIllegalTransition, id, artifact.Status)
	}

	artifact.ProcessedText = core.Some(text)
	artifact.Status = core.StatusProcessing
	artifact.Progress = core.ProgressStarted
	artifact.Error = core.None[string]()
	snapshot := *artifact
	e.mu.Unlock()

	e.notify(snapshot)

	return snapshot, nil
}

// RequestSynthesis generates audio for an artifact in Processing with processed
// text. On success the output is stored and the artifact is Complete. On failure
// it reverts to Processing with the error recorded.
func (e *Engine) RequestSynthesis(ctx context.Context, id string, params core.VoiceParams) (core.Artifact, error) {
	if strings.TrimSpace(params.VoiceID) == "" {
		return core.Artifact{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrVoiceIDEmpty)
	}

	started, err := e.begin(id, core.StatusGenerating, func(artifact core.Artifact) error {
		if artifact.Status != core.StatusProcessing || !artifact.ProcessedText.IsSet() {
			return fmt.Errorf("%w: %w: synthesis requires %s, artifact %s is %s",
				core.ErrIllegalTransition, ErrNoProcessedText, core.StatusProcessing, id, artifact.Status)
		}

		return nil
	})
	if err != nil {
		return core.Artifact{}, err
	}

	format := params.ResponseFormat
	if format == "" {
		format = media.FormatMP3
	}

	e.update(id, false, func(artifact *core.Artifact) { artifact.Progress = core.ProgressDispatched })

	audio, err := e.deps.Synthesizer.Synthesize(ctx, core.SpeechRequest{
		Input:          started.ProcessedText.OrZero(),
		Voice:          params.VoiceID,
		ResponseFormat: format,
		Speed:          params.Speed,
	})
	if err != nil {
		return e.synthesisFailed(id, err)
	}

	outputRef := uuid.NewString() + "." + format

	err = e.deps.Payloads.Upload(ctx, outputRef, audio)
	if err != nil {
		return e.synthesisFailed(id, fmt.Errorf("failed to store audio: %w", err))
	}

	done := e.update(id, true, func(artifact *core.Artifact) {
		artifact.OutputRef = core.Some(outputRef)
		artifact.Progress = core.ProgressDone
		artifact.Status = core.StatusComplete
		artifact.Error = core.None[string]()
	})

	e.deps.Logger.Info("Synthesized artifact %s with voice %s (%s)",
		id, params.VoiceID, media.FormatFileSize(int64(len(audio))))

	return done, nil
}

func (e *Engine) synthesisFailed(id string, cause error) (core.Artifact, error) {
	failed := e.fail(id, core.StatusProcessing, cause)

	return failed, fmt.Errorf("synthesis of artifact %s failed: %w", id, cause)
}

// Output returns the synthesized audio of a Complete artifact.
func (e *Engine) Output(ctx context.Context, id string) ([]byte, error) {
	artifact, err := e.Get(id)
	if err != nil {
		return nil, err
	}

	outputRef, ok := artifact.OutputRef.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", core.ErrNotFound, ErrNoOutput, id)
	}

	audio, err := e.deps.Payloads.Download(ctx, outputRef)
	if err != nil {
		return nil, fmt.Errorf("failed to read output of artifact %s: %w", id, err)
	}

	return audio, nil
}
