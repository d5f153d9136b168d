// Package worker exposes the regeneration service over NATS: a request/reply
// command subject and an events subject carrying artifact changes.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/nats-io/nats.go"
)

const (
	defaultHandleTimeout = 10 * time.Minute
	drainTimeout         = 30 * time.Second
	drainPollInterval    = 10 * time.Millisecond
)

var (
	// ErrUnknownAction indicates a command with an unsupported action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingField indicates a command without a field its action requires.
	ErrMissingField = errors.New("missing required field")
)

// Pipeline is the artifact surface used by the worker.
type Pipeline interface {
	Intake(ctx context.Context, name string, payload []byte) (core.Artifact, error)
	Adopt(ctx context.Context, name, sourceRef string) (core.Artifact, error)
	Snapshot() []core.Artifact
	Get(id string) (core.Artifact, error)
	InFlight(id string) bool
	Remove(ctx context.Context, id string) error
	RequestTranscription(ctx context.Context, id string) (core.Artifact, error)
	RequestEnhancement(ctx context.Context, id, prompt, instructions string) (string, error)
	AcceptEnhancement(id, text string) (core.Artifact, error)
	RequestSynthesis(ctx context.Context, id string, params core.VoiceParams) (core.Artifact, error)
	Output(ctx context.Context, id string) ([]byte, error)
}

// Batches starts batch operations.
type Batches interface {
	StartTranscribeAll(ctx context.Context) (*batch.Batch, error)
	StartGenerateAudioAll(ctx context.Context) (*batch.Batch, error)
	TranscribeAll(ctx context.Context) (batch.Report, error)
	GenerateAudioAll(ctx context.Context) (batch.Report, error)
	Busy(stage batch.Stage) bool
	LastReport(stage batch.Stage) (batch.Report, bool)
}

// SettingsStore reads and replaces the user settings.
type SettingsStore interface {
	Current() core.Settings
	Save(ctx context.Context, next core.Settings) error
}

// Voices is the voice registry surface.
type Voices interface {
	ListVoices(ctx context.Context) []core.VoiceProfile
	CreateComposite(ctx context.Context, name string, baseIDs []string) (core.VoiceProfile, error)
	DeleteComposite(ctx context.Context, id string) error
	Sample(ctx context.Context, voiceID string) ([]byte, error)
}

// Services groups the components commands are dispatched to.
type Services struct {
	Pipeline Pipeline
	Batches  Batches
	Settings SettingsStore
	Voices   Voices
}

// NatsWorker listens for commands on a NATS subject and replies to each.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	services       Services
	handleTimeout  time.Duration
	log            *logger.Logger

	mu         sync.Mutex
	stopping   bool
	inProgress sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker. A zero handleTimeout
// uses the default.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	services Services,
	handleTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if handleTimeout <= 0 {
		handleTimeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		services:       services,
		handleTimeout:  handleTimeout,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages. Each command is
// handled on its own goroutine, so a long stage call does not delay others.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.dispatchAsync)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for commands on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr == nil {
		waitClosed(sub)
	}

	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	w.inProgress.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) dispatchAsync(msg *nats.Msg) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopping {
		w.log.Warn("Dropping command received during shutdown on %s", msg.Subject)

		return
	}

	w.inProgress.Add(1)

	go func() {
		defer w.inProgress.Done()

		w.handleMessage(msg)
	}()
}

// waitClosed waits until a draining subscription has delivered its pending
// messages.
func waitClosed(sub *nats.Subscription) {
	deadline := time.Now().Add(drainTimeout)

	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
	}
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.handleTimeout)
	defer cancel()

	var command Command

	err := json.Unmarshal(msg.Data, &command)
	if err != nil {
		w.log.Error("Failed to parse command: %v", err)
		w.respond(msg, failure(command, fmt.Errorf("%w: malformed command: %w", core.ErrValidation, err)))

		return
	}

	reply, err := w.dispatch(ctx, command)
	if err != nil {
		w.log.Error("Command %s for workflow %s failed: %v", command.Action, command.Header.WorkflowID, err)
		reply = failure(command, err)
	}

	w.respond(msg, reply)
}

func (w *NatsWorker) respond(msg *nats.Msg, reply Reply) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(data)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

func failure(command Command, err error) Reply {
	return Reply{
		Header:    replyHeader(command.Header),
		OK:        false,
		Error:     err.Error(),
		ErrorKind: core.ErrorKind(err),
	}
}

func success(command Command) Reply {
	return Reply{Header: replyHeader(command.Header), OK: true}
}

// artifactReply answers a stage operation. A failed stage still carries the
// reverted artifact so callers see the recorded error.
func artifactReply(command Command, artifact core.Artifact, err error) Reply {
	reply := success(command)
	if err != nil {
		reply = failure(command, err)
	}

	if artifact.ID != "" {
		reply.Artifact = &artifact
	}

	return reply
}

func requireField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %w: %s", core.ErrValidation, ErrMissingField, field)
	}

	return nil
}
