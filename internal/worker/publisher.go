package worker

import (
	"encoding/json"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// EventPublisher publishes artifact changes on a NATS subject. Publishing is
// best effort: failures are logged and never reach the pipeline.
type EventPublisher struct {
	natsConnection *nats.Conn
	subject        string
	log            *logger.Logger
}

// NewEventPublisher creates a publisher for subject.
func NewEventPublisher(natsConnection *nats.Conn, subject string, log *logger.Logger) *EventPublisher {
	return &EventPublisher{
		natsConnection: natsConnection,
		subject:        subject,
		log:            log,
	}
}

// ArtifactChanged implements core.ArtifactObserver.
func (p *EventPublisher) ArtifactChanged(artifact core.Artifact) {
	event := ArtifactEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: artifact.ID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Artifact: artifact,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("Failed to marshal event for artifact %s: %v", artifact.ID, err)

		return
	}

	err = p.natsConnection.Publish(p.subject, data)
	if err != nil {
		p.log.Warn("Failed to publish event for artifact %s: %v", artifact.ID, err)
	}
}
