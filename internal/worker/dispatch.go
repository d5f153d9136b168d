package worker

import (
	"context"
	"fmt"

	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/core"
)

// dispatch routes a command. Returned errors become failure replies; stage
// failures are answered with the reverted artifact instead.
func (w *NatsWorker) dispatch(ctx context.Context, command Command) (Reply, error) {
	switch command.Action {
	case ActionIntake:
		return w.intake(ctx, command)
	case ActionListArtifacts:
		reply := success(command)
		reply.Artifacts = w.services.Pipeline.Snapshot()

		return reply, nil
	case ActionGetArtifact:
		return w.getArtifact(command)
	case ActionRemove:
		return w.remove(ctx, command)
	case ActionTranscribe:
		return w.transcribe(ctx, command)
	case ActionEnhance:
		return w.enhance(ctx, command)
	case ActionAccept:
		return w.accept(command)
	case ActionSynthesize:
		return w.synthesize(ctx, command)
	case ActionGetOutput:
		return w.output(ctx, command)
	case ActionTranscribeAll:
		if command.Wait {
			return w.runBatch(ctx, command, w.services.Batches.TranscribeAll)
		}

		return w.startBatch(ctx, command, w.services.Batches.StartTranscribeAll)
	case ActionGenerateAll:
		if command.Wait {
			return w.runBatch(ctx, command, w.services.Batches.GenerateAudioAll)
		}

		return w.startBatch(ctx, command, w.services.Batches.StartGenerateAudioAll)
	case ActionBatchStatus:
		reply := success(command)
		reply.Batches = w.batchStatus()

		return reply, nil
	case ActionGetSettings:
		current := w.services.Settings.Current()
		reply := success(command)
		reply.Settings = &current

		return reply, nil
	case ActionSaveSettings:
		return w.saveSettings(ctx, command)
	case ActionListVoices:
		reply := success(command)
		reply.Voices = w.services.Voices.ListVoices(ctx)

		return reply, nil
	case ActionCreateVoice:
		return w.createVoice(ctx, command)
	case ActionDeleteVoice:
		return w.deleteVoice(ctx, command)
	case ActionSampleVoice:
		return w.sampleVoice(ctx, command)
	default:
		return Reply{}, fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrUnknownAction, command.Action)
	}
}

// intake adopts a payload already in the object store or stores the inline one.
func (w *NatsWorker) intake(ctx context.Context, command Command) (Reply, error) {
	var (
		artifact core.Artifact
		err      error
	)

	switch {
	case command.SourceRef != "":
		artifact, err = w.services.Pipeline.Adopt(ctx, command.Name, command.SourceRef)
	case len(command.Audio) > 0:
		artifact, err = w.services.Pipeline.Intake(ctx, command.Name, command.Audio)
	default:
		err = fmt.Errorf("%w: %w: source_ref or audio", core.ErrValidation, ErrMissingField)
	}

	if err != nil {
		return Reply{}, err
	}

	return artifactReply(command, artifact, nil), nil
}

func (w *NatsWorker) getArtifact(command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	artifact, err := w.services.Pipeline.Get(command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	reply := artifactReply(command, artifact, nil)
	reply.InFlight = w.services.Pipeline.InFlight(command.ArtifactID)

	return reply, nil
}

func (w *NatsWorker) remove(ctx context.Context, command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	err = w.services.Pipeline.Remove(ctx, command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	return success(command), nil
}

func (w *NatsWorker) transcribe(ctx context.Context, command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	artifact, err := w.services.Pipeline.RequestTranscription(ctx, command.ArtifactID)

	return artifactReply(command, artifact, err), nil
}

// enhance uses the stored text-processing settings unless the command overrides
// the prompt or instructions.
func (w *NatsWorker) enhance(ctx context.Context, command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	textProcessing := w.services.Settings.Current().TextProcessing

	prompt := command.Prompt
	if prompt == "" {
		prompt = textProcessing.Prompt
	}

	instructions := command.Instructions
	if instructions == "" {
		instructions = textProcessing.Instructions
	}

	proposal, err := w.services.Pipeline.RequestEnhancement(ctx, command.ArtifactID, prompt, instructions)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Text = proposal

	return reply, nil
}

func (w *NatsWorker) accept(command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	artifact, err := w.services.Pipeline.AcceptEnhancement(command.ArtifactID, command.Text)
	if err != nil {
		return Reply{}, err
	}

	return artifactReply(command, artifact, nil), nil
}

// synthesize uses the stored voice parameters unless the command carries its own.
func (w *NatsWorker) synthesize(ctx context.Context, command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	params := w.services.Settings.Current().Voice
	if command.Voice != nil {
		params = *command.Voice
	}

	artifact, err := w.services.Pipeline.RequestSynthesis(ctx, command.ArtifactID, params)

	return artifactReply(command, artifact, err), nil
}

func (w *NatsWorker) output(ctx context.Context, command Command) (Reply, error) {
	err := requireField("artifact_id", command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	audio, err := w.services.Pipeline.Output(ctx, command.ArtifactID)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Audio = audio

	return reply, nil
}

// startBatch replies as soon as the batch is accepted or rejected; the batch
// keeps running after the reply.
func (w *NatsWorker) startBatch(
	ctx context.Context,
	command Command,
	start func(ctx context.Context) (*batch.Batch, error),
) (Reply, error) {
	started, err := start(ctx)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Batch = started.Stage()

	return reply, nil
}

// runBatch replies with the report once the batch has finished.
func (w *NatsWorker) runBatch(
	ctx context.Context,
	command Command,
	run func(ctx context.Context) (batch.Report, error),
) (Reply, error) {
	report, err := run(ctx)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Batch = report.Stage
	reply.Report = &report

	return reply, nil
}

func (w *NatsWorker) batchStatus() *BatchStatus {
	status := &BatchStatus{
		TranscribeAll: w.services.Batches.Busy(batch.StageTranscribe),
		GenerateAll:   w.services.Batches.Busy(batch.StageGenerate),
	}

	if report, ok := w.services.Batches.LastReport(batch.StageTranscribe); ok {
		status.LastTranscribeAll = &report
	}

	if report, ok := w.services.Batches.LastReport(batch.StageGenerate); ok {
		status.LastGenerateAll = &report
	}

	return status
}

func (w *NatsWorker) saveSettings(ctx context.Context, command Command) (Reply, error) {
	if command.Settings == nil {
		return Reply{}, fmt.Errorf("%w: %w: settings", core.ErrValidation, ErrMissingField)
	}

	err := w.services.Settings.Save(ctx, *command.Settings)
	if err != nil {
		return Reply{}, err
	}

	current := w.services.Settings.Current()
	reply := success(command)
	reply.Settings = &current

	return reply, nil
}

func (w *NatsWorker) createVoice(ctx context.Context, command Command) (Reply, error) {
	profile, err := w.services.Voices.CreateComposite(ctx, command.Name, command.VoiceIDs)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Voice = &profile

	return reply, nil
}

func (w *NatsWorker) deleteVoice(ctx context.Context, command Command) (Reply, error) {
	err := requireField("voice_id", command.VoiceID)
	if err != nil {
		return Reply{}, err
	}

	err = w.services.Voices.DeleteComposite(ctx, command.VoiceID)
	if err != nil {
		return Reply{}, err
	}

	return success(command), nil
}

func (w *NatsWorker) sampleVoice(ctx context.Context, command Command) (Reply, error) {
	err := requireField("voice_id", command.VoiceID)
	if err != nil {
		return Reply{}, err
	}

	audio, err := w.services.Voices.Sample(ctx, command.VoiceID)
	if err != nil {
		return Reply{}, err
	}

	reply := success(command)
	reply.Audio = audio

	return reply, nil
}
