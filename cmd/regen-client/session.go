package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/regen-service/internal/config"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
	"github.com/book-expert/regen-service/internal/objectstore"
	"github.com/book-expert/regen-service/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ErrRemote wraps a failure reported by the service.
var ErrRemote = errors.New("service error")

// session holds an open connection to the service.
type session struct {
	cfg            *config.Config
	natsConnection *nats.Conn
	payloads       *objectstore.NatsObjectStore
	timeout        time.Duration
}

func openSession(cfg *config.Config, timeout time.Duration) (*session, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("regen-client"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	payloads, err := objectstore.New(jetstreamContext, cfg.NATS.PayloadBucket)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	return &session{
		cfg:            cfg,
		natsConnection: natsConnection,
		payloads:       payloads,
		timeout:        timeout,
	}, nil
}

func (s *session) Close() {
	s.natsConnection.Close()
}

// request sends command and decodes the reply. A reply that is not OK is
// returned together with an ErrRemote error so callers can still render any
// artifact it carries.
func (s *session) request(ctx context.Context, command worker.Command) (worker.Reply, error) {
	command.Header = worker.NewHeader()

	data, err := json.Marshal(command)
	if err != nil {
		return worker.Reply{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.natsConnection.RequestWithContext(ctx, s.cfg.NATS.CommandSubject, data)
	if err != nil {
		return worker.Reply{}, fmt.Errorf("request %s failed: %w", command.Action, err)
	}

	var reply worker.Reply

	err = json.Unmarshal(msg.Data, &reply)
	if err != nil {
		return worker.Reply{}, fmt.Errorf("failed to decode reply: %w", err)
	}

	if !reply.OK {
		return reply, fmt.Errorf("%w (%s): %s", ErrRemote, reply.ErrorKind, reply.Error)
	}

	return reply, nil
}

// upload sends small payloads inside the intake command and places larger ones
// in the object store first.
func (s *session) upload(ctx context.Context, name string, payload []byte) (core.Artifact, error) {
	if len(payload) <= inlineUploadLimit {
		reply, err := s.request(ctx, worker.Command{Action: worker.ActionIntake, Name: name, Audio: payload})
		if err != nil {
			return core.Artifact{}, err
		}

		return *reply.Artifact, nil
	}

	sourceRef := uuid.NewString() + "." + media.Extension(name)

	err := s.payloads.Upload(ctx, sourceRef, payload)
	if err != nil {
		return core.Artifact{}, err
	}

	reply, err := s.request(ctx, worker.Command{Action: worker.ActionIntake, Name: name, SourceRef: sourceRef})
	if err != nil {
		_ = s.payloads.Delete(ctx, sourceRef)

		return core.Artifact{}, err
	}

	return *reply.Artifact, nil
}
