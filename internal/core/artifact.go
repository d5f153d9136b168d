package core

import (
	"fmt"
	"time"
)

// Status is the pipeline stage an artifact is in.
type Status int

// Pipeline stages in their only legal order.
const (
	StatusUpload Status = iota
	StatusTranscribing
	StatusProcessing
	StatusGenerating
	StatusComplete
)

var statusNames = [...]string{
	StatusUpload:       "upload",
	StatusTranscribing: "transcribing",
	StatusProcessing:   "processing",
	StatusGenerating:   "generating",
	StatusComplete:     "complete",
}

// Progress checkpoints within a single stage attempt.
const (
	ProgressStarted    = 0
	ProgressDispatched = 50
	ProgressDone       = 100
)

func (s Status) String() string {
	if s < StatusUpload || s > StatusComplete {
		return fmt.Sprintf("status(%d)", int(s))
	}

	return statusNames[s]
}

// ParseStatus parses the lower-case stage name.
func ParseStatus(name string) (Status, error) {
	for i, candidate := range statusNames {
		if candidate == name {
			return Status(i), nil
		}
	}

	return StatusUpload, fmt.Errorf("%w: unknown status %q", ErrValidation, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < StatusUpload || s > StatusComplete {
		return nil, fmt.Errorf("%w: unknown status %d", ErrValidation, int(s))
	}

	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Artifact is one media item and its derived text and audio.
type Artifact struct {
	ID            string           `json:"id"`
	SourceRef     string           `json:"source_ref"`
	Name          string           `json:"name"`
	SizeBytes     int64            `json:"size_bytes"`
	Status        Status           `json:"status"`
	Transcription Optional[string] `json:"transcription"`
	ProcessedText Optional[string] `json:"processed_text"`
	OutputRef     Optional[string] `json:"output_ref"`
	Progress      int              `json:"progress"`
	Error         Optional[string] `json:"error"`
	CreatedAt     time.Time        `json:"created_at"`
}

// CheckInvariants reports the first violated data-model invariant, if any.
func (a Artifact) CheckInvariants() error {
	if !a.Transcription.IsSet() && a.Status != StatusUpload && a.Status != StatusTranscribing {
		return fmt.Errorf("%w: artifact %s is %s without a transcription", ErrIllegalTransition, a.ID, a.Status)
	}

	if a.ProcessedText.IsSet() && !a.Transcription.IsSet() {
		return fmt.Errorf("%w: artifact %s has processed text without a transcription", ErrIllegalTransition, a.ID)
	}

	if a.OutputRef.IsSet() && a.Status != StatusComplete {
		return fmt.Errorf("%w: artifact %s has output while %s", ErrIllegalTransition, a.ID, a.Status)
	}

	if a.Progress < ProgressStarted || a.Progress > ProgressDone {
		return fmt.Errorf("%w: artifact %s progress %d out of range", ErrIllegalTransition, a.ID, a.Progress)
	}

	return nil
}
