// Package worker_test tests the NATS command worker of the regeneration service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/kvstore"
	"github.com/book-expert/regen-service/internal/objectstore"
	"github.com/book-expert/regen-service/internal/pipeline"
	"github.com/book-expert/regen-service/internal/settings"
	"github.com/book-expert/regen-service/internal/voices"
	"github.com/book-expert/regen-service/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	commandSubject = "test.regen.commands"
	eventsSubject  = "test.regen.events"
	requestTimeout = 5 * time.Second
)

var errMockList = errors.New("mock list error")

// gatedTranscriber blocks each call until the gate yields, when a gate is set.
type gatedTranscriber struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (g *gatedTranscriber) setGate(gate chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gate = gate
}

func (g *gatedTranscriber) Transcribe(_ context.Context, filename string, _ []byte) (string, error) {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}

	return "spoken words from " + filename, nil
}

type mockEnhancer struct{}

func (mockEnhancer) Enhance(_ context.Context, _, text string) (string, error) {
	return "Polished: " + text, nil
}

type mockSpeech struct{}

func (mockSpeech) Synthesize(_ context.Context, req core.SpeechRequest) ([]byte, error) {
	return []byte(req.Voice + ":" + req.Input), nil
}

func (mockSpeech) ListVoices(context.Context) ([]string, error) {
	return nil, errMockList
}

type harness struct {
	natsConnection *nats.Conn
	jetstream      nats.JetStreamContext
	transcriber    *gatedTranscriber
	events         chan *nats.Msg
}

func setupTest(t *testing.T) *harness {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	payloads, err := objectstore.New(jetstreamContext, "TEST_PAYLOADS")
	require.NoError(t, err)

	state, err := kvstore.NewNatsKV(jetstreamContext, "TEST_STATE")
	require.NoError(t, err)

	h := &harness{
		natsConnection: natsConnection,
		jetstream:      jetstreamContext,
		transcriber:    &gatedTranscriber{},
		events:         make(chan *nats.Msg, 256),
	}

	eventSub, err := natsConnection.ChanSubscribe(eventsSubject, h.events)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eventSub.Unsubscribe() })

	settingsStore := settings.New(state, testLogger)
	settingsStore.Load(context.Background())

	registry := voices.New(voices.Dependencies{
		Lister:      mockSpeech{},
		Synthesizer: mockSpeech{},
		Store:       state,
		Selection:   settingsStore,
		Logger:      testLogger,
	})
	registry.Load(context.Background())

	engine := pipeline.New(pipeline.Dependencies{
		Payloads:    payloads,
		Transcriber: h.transcriber,
		Enhancer:    mockEnhancer{},
		Synthesizer: mockSpeech{},
		Observer:    worker.NewEventPublisher(natsConnection, eventsSubject, testLogger),
		Logger:      testLogger,
	})

	orchestrator := batch.New(engine, settingsStore, testLogger)
	t.Cleanup(orchestrator.Close)

	workerInstance := worker.NewNatsWorker(natsConnection, commandSubject, worker.Services{
		Pipeline: engine,
		Batches:  orchestrator,
		Settings: settingsStore,
		Voices:   registry,
	}, 0, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})

	require.Eventually(t, func() bool {
		reply, requestErr := natsConnection.Request(commandSubject, []byte(`{"action":"get_settings"}`), 100*time.Millisecond)

		return requestErr == nil && len(reply.Data) > 0
	}, requestTimeout, 20*time.Millisecond)

	return h
}

func (h *harness) send(t *testing.T, command worker.Command) worker.Reply {
	t.Helper()

	if command.Header.WorkflowID == "" {
		command.Header = worker.NewHeader()
	}

	data, err := json.Marshal(command)
	require.NoError(t, err)

	msg, err := h.natsConnection.Request(commandSubject, data, requestTimeout)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var reply worker.Reply

	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Equal(t, command.Header.WorkflowID, reply.Header.WorkflowID)

	return reply
}

func (h *harness) upload(t *testing.T, name string) core.Artifact {
	t.Helper()

	store, err := h.jetstream.ObjectStore("TEST_PAYLOADS")
	require.NoError(t, err)

	key := "client-" + name

	_, err = store.PutBytes(key, []byte("audio bytes of "+name))
	require.NoError(t, err)

	reply := h.send(t, worker.Command{Action: worker.ActionIntake, Name: name, SourceRef: key})
	require.True(t, reply.OK, reply.Error)
	require.NotNil(t, reply.Artifact)

	return *reply.Artifact
}

func TestWorker_FullPipeline(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	artifact := h.upload(t, "episode.mp3")
	assert.Equal(t, core.StatusUpload, artifact.Status)

	reply := h.send(t, worker.Command{Action: worker.ActionTranscribe, ArtifactID: artifact.ID})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, core.Some("spoken words from episode.mp3"), reply.Artifact.Transcription)

	reply = h.send(t, worker.Command{Action: worker.ActionEnhance, ArtifactID: artifact.ID})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, "Polished: spoken words from episode.mp3", reply.Text)

	reply = h.send(t, worker.Command{Action: worker.ActionAccept, ArtifactID: artifact.ID, Text: reply.Text + " Edited."})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, core.StatusProcessing, reply.Artifact.Status)

	reply = h.send(t, worker.Command{Action: worker.ActionSynthesize, ArtifactID: artifact.ID})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, core.StatusComplete, reply.Artifact.Status)

	reply = h.send(t, worker.Command{Action: worker.ActionGetOutput, ArtifactID: artifact.ID})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, "af_heart:Polished: spoken words from episode.mp3 Edited.", string(reply.Audio))

	reply = h.send(t, worker.Command{Action: worker.ActionListArtifacts})
	require.True(t, reply.OK, reply.Error)
	require.Len(t, reply.Artifacts, 1)
	assert.Equal(t, artifact.ID, reply.Artifacts[0].ID)

	var last worker.ArtifactEvent

	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-h.events:
				if json.Unmarshal(msg.Data, &last) != nil {
					return false
				}
			default:
				return last.Artifact.Status == core.StatusComplete
			}
		}
	}, requestTimeout, 20*time.Millisecond)

	assert.Equal(t, artifact.ID, last.Header.WorkflowID)
}

func TestWorker_ErrorKinds(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	testCases := []struct {
		name    string
		command worker.Command
		kind    string
	}{
		{name: "unknown artifact", command: worker.Command{Action: worker.ActionTranscribe, ArtifactID: "missing"}, kind: core.KindNotFound},
		{name: "missing id", command: worker.Command{Action: worker.ActionGetArtifact}, kind: core.KindValidation},
		{name: "unknown action", command: worker.Command{Action: "explode"}, kind: core.KindValidation},
		{name: "predefined voice", command: worker.Command{Action: worker.ActionDeleteVoice, VoiceID: "af_heart+af_sky"}, kind: core.KindProtected},
		{name: "one voice", command: worker.Command{Action: worker.ActionCreateVoice, Name: "Solo", VoiceIDs: []string{"af_heart"}}, kind: core.KindValidation},
		{name: "bad settings", command: worker.Command{Action: worker.ActionSaveSettings, Settings: &core.Settings{}}, kind: core.KindValidation},
	}

	for _, tc := range testCases {
		reply := h.send(t, tc.command)
		assert.False(t, reply.OK, tc.name)
		assert.Equal(t, tc.kind, reply.ErrorKind, tc.name)
		assert.NotEmpty(t, reply.Error, tc.name)
	}
}

func TestWorker_IllegalTransitionIsConflict(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	artifact := h.upload(t, "episode.mp3")

	reply := h.send(t, worker.Command{Action: worker.ActionSynthesize, ArtifactID: artifact.ID})
	assert.False(t, reply.OK)
	assert.Equal(t, core.KindConflict, reply.ErrorKind)
}

func TestWorker_BatchRejectedWhileRunning(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	gate := make(chan struct{})
	h.transcriber.setGate(gate)

	h.upload(t, "a.mp3")
	h.upload(t, "b.mp3")

	reply := h.send(t, worker.Command{Action: worker.ActionTranscribeAll})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, batch.StageTranscribe, reply.Batch)

	reply = h.send(t, worker.Command{Action: worker.ActionTranscribeAll})
	assert.False(t, reply.OK)
	assert.Equal(t, core.KindBusy, reply.ErrorKind)

	reply = h.send(t, worker.Command{Action: worker.ActionBatchStatus})
	require.True(t, reply.OK)
	assert.True(t, reply.Batches.TranscribeAll)
	assert.False(t, reply.Batches.GenerateAll)

	close(gate)

	deadline := time.Now().Add(requestTimeout)

	for {
		status := h.send(t, worker.Command{Action: worker.ActionBatchStatus})
		if !status.Batches.TranscribeAll {
			break
		}

		require.True(t, time.Now().Before(deadline), "batch did not finish")
		time.Sleep(20 * time.Millisecond)
	}

	reply = h.send(t, worker.Command{Action: worker.ActionListArtifacts})
	for _, artifact := range reply.Artifacts {
		assert.Equal(t, core.StatusTranscribing, artifact.Status)
		assert.True(t, artifact.Transcription.IsSet())
	}
}

func TestWorker_SettingsAndVoices(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	reply := h.send(t, worker.Command{Action: worker.ActionListVoices})
	require.True(t, reply.OK, reply.Error)
	assert.Len(t, reply.Voices, len(voices.FallbackBaseVoices())+len(voices.Predefined()))

	reply = h.send(t, worker.Command{Action: worker.ActionCreateVoice, Name: "Pair", VoiceIDs: []string{"bm_lewis", "af_sky"}})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, "bm_lewis+af_sky", reply.Voice.ID)

	next := settings.Defaults()
	next.Voice.VoiceID = "bm_lewis+af_sky"

	reply = h.send(t, worker.Command{Action: worker.ActionSaveSettings, Settings: &next})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, "bm_lewis+af_sky", reply.Settings.Voice.VoiceID)

	reply = h.send(t, worker.Command{Action: worker.ActionDeleteVoice, VoiceID: "bm_lewis+af_sky"})
	require.True(t, reply.OK, reply.Error)

	reply = h.send(t, worker.Command{Action: worker.ActionGetSettings})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, voices.DefaultVoiceID, reply.Settings.Voice.VoiceID)
}

func TestWorker_InlineIntakeAndInFlight(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	reply := h.send(t, worker.Command{Action: worker.ActionIntake, Name: "memo.wav", Audio: []byte("inline audio")})
	require.True(t, reply.OK, reply.Error)
	artifact := *reply.Artifact
	assert.Equal(t, int64(len("inline audio")), artifact.SizeBytes)

	reply = h.send(t, worker.Command{Action: worker.ActionIntake, Name: "memo.wav"})
	assert.False(t, reply.OK)
	assert.Equal(t, core.KindValidation, reply.ErrorKind)

	gate := make(chan struct{})
	h.transcriber.setGate(gate)

	data, err := json.Marshal(worker.Command{
		Header:     worker.NewHeader(),
		Action:     worker.ActionTranscribe,
		ArtifactID: artifact.ID,
	})
	require.NoError(t, err)

	transcribed := make(chan error, 1)

	go func() {
		_, requestErr := h.natsConnection.Request(commandSubject, data, requestTimeout)
		transcribed <- requestErr
	}()

	deadline := time.Now().Add(requestTimeout)

	for {
		status := h.send(t, worker.Command{Action: worker.ActionGetArtifact, ArtifactID: artifact.ID})
		if status.InFlight {
			break
		}

		require.True(t, time.Now().Before(deadline), "transcription never started")
		time.Sleep(20 * time.Millisecond)
	}

	close(gate)
	require.NoError(t, <-transcribed)

	reply = h.send(t, worker.Command{Action: worker.ActionGetArtifact, ArtifactID: artifact.ID})
	require.True(t, reply.OK, reply.Error)
	assert.False(t, reply.InFlight)
	assert.Equal(t, core.StatusTranscribing, reply.Artifact.Status)
}

func TestWorker_BatchWaitKeepsLastReport(t *testing.T) {
	t.Parallel()

	h := setupTest(t)
	first := h.upload(t, "a.mp3")
	second := h.upload(t, "b.mp3")

	reply := h.send(t, worker.Command{Action: worker.ActionBatchStatus})
	require.True(t, reply.OK, reply.Error)
	assert.Nil(t, reply.Batches.LastTranscribeAll)

	reply = h.send(t, worker.Command{Action: worker.ActionTranscribeAll, Wait: true})
	require.True(t, reply.OK, reply.Error)
	require.NotNil(t, reply.Report)
	assert.Equal(t, batch.StageTranscribe, reply.Batch)
	assert.Equal(t, []string{first.ID, second.ID}, reply.Report.Attempted)
	assert.Equal(t, 2, reply.Report.Succeeded)

	reply = h.send(t, worker.Command{Action: worker.ActionBatchStatus})
	require.True(t, reply.OK, reply.Error)
	require.NotNil(t, reply.Batches.LastTranscribeAll)
	assert.Equal(t, 2, reply.Batches.LastTranscribeAll.Succeeded)
	assert.Nil(t, reply.Batches.LastGenerateAll)
}

func TestWorker_SampleVoice(t *testing.T) {
	t.Parallel()

	h := setupTest(t)

	reply := h.send(t, worker.Command{Action: worker.ActionSampleVoice, VoiceID: "bm_george"})
	require.True(t, reply.OK, reply.Error)
	assert.Equal(t, "bm_george:"+voices.SampleText, string(reply.Audio))

	reply = h.send(t, worker.Command{Action: worker.ActionSampleVoice})
	assert.False(t, reply.OK)
	assert.Equal(t, core.KindValidation, reply.ErrorKind)
}
