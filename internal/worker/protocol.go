package worker

import (
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/google/uuid"
)

// Command actions.
const (
	ActionIntake        = "intake"
	ActionListArtifacts = "list_artifacts"
	ActionGetArtifact   = "get_artifact"
	ActionRemove        = "remove"
	ActionTranscribe    = "transcribe"
	ActionEnhance       = "enhance"
	ActionAccept        = "accept"
	ActionSynthesize    = "synthesize"
	ActionGetOutput     = "get_output"
	ActionTranscribeAll = "transcribe_all"
	ActionGenerateAll   = "generate_all"
	ActionBatchStatus   = "batch_status"
	ActionGetSettings   = "get_settings"
	ActionSaveSettings  = "save_settings"
	ActionListVoices    = "list_voices"
	ActionCreateVoice   = "create_voice"
	ActionDeleteVoice   = "delete_voice"
	ActionSampleVoice   = "sample_voice"
)

// Command is a request sent to the command subject. Fields are read according to
// Action. An intake carries either SourceRef, for a payload already in the object
// store, or the payload itself in Audio. Wait makes a batch action reply with its
// report once the batch has finished.
type Command struct {
	Header       events.EventHeader `json:"header"`
	Action       string             `json:"action"`
	ArtifactID   string             `json:"artifact_id,omitempty"`
	Name         string             `json:"name,omitempty"`
	SourceRef    string             `json:"source_ref,omitempty"`
	Text         string             `json:"text,omitempty"`
	Prompt       string             `json:"prompt,omitempty"`
	Instructions string             `json:"instructions,omitempty"`
	Voice        *core.VoiceParams  `json:"voice,omitempty"`
	Settings     *core.Settings     `json:"settings,omitempty"`
	VoiceID      string             `json:"voice_id,omitempty"`
	VoiceIDs     []string           `json:"voice_ids,omitempty"`
	Audio        []byte             `json:"audio,omitempty"`
	Wait         bool               `json:"wait,omitempty"`
}

// BatchStatus reports which batch operations are active and the report of the
// last finished batch of each kind.
type BatchStatus struct {
	TranscribeAll     bool          `json:"transcribe_all"`
	GenerateAll       bool          `json:"generate_all"`
	LastTranscribeAll *batch.Report `json:"last_transcribe_all,omitempty"`
	LastGenerateAll   *batch.Report `json:"last_generate_all,omitempty"`
}

// Reply answers a Command. ErrorKind classifies failures for remote callers.
type Reply struct {
	Header    events.EventHeader  `json:"header"`
	OK        bool                `json:"ok"`
	Error     string              `json:"error,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Artifact  *core.Artifact      `json:"artifact,omitempty"`
	InFlight  bool                `json:"in_flight,omitempty"`
	Artifacts []core.Artifact     `json:"artifacts,omitempty"`
	Text      string              `json:"text,omitempty"`
	Audio     []byte              `json:"audio,omitempty"`
	Settings  *core.Settings      `json:"settings,omitempty"`
	Voices    []core.VoiceProfile `json:"voices,omitempty"`
	Voice     *core.VoiceProfile  `json:"voice,omitempty"`
	Batch     batch.Stage         `json:"batch,omitempty"`
	Batches   *BatchStatus        `json:"batches,omitempty"`
	Report    *batch.Report       `json:"report,omitempty"`
}

// ArtifactEvent is published on the events subject after every committed change.
type ArtifactEvent struct {
	Header   events.EventHeader `json:"header"`
	Artifact core.Artifact      `json:"artifact"`
}

// NewHeader returns a header for a new workflow.
func NewHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

// replyHeader keeps the workflow of the command and stamps a new event id.
func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.Timestamp = time.Now().UTC()
	header.EventID = uuid.NewString()

	return header
}
