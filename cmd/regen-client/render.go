package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/book-expert/regen-service/internal/batch"
	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
	"github.com/book-expert/regen-service/internal/worker"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

const (
	colorTitle = lipgloss.Color("#8B5CF6")
	colorError = lipgloss.Color("#EF4444")
	colorMuted = lipgloss.Color("#6B7280")
	emptyValue = "-"
	errorWidth = 40
)

// styles renders for a single writer, so colors are dropped when it is not a
// terminal.
type styles struct {
	title lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
}

func newStyles(out io.Writer) styles {
	renderer := lipgloss.NewRenderer(out)

	return styles{
		title: renderer.NewStyle().Foreground(colorTitle).Bold(true),
		err:   renderer.NewStyle().Foreground(colorError),
		muted: renderer.NewStyle().Foreground(colorMuted),
	}
}

func renderArtifacts(out io.Writer, artifacts []core.Artifact) error {
	st := newStyles(out)

	if len(artifacts) == 0 {
		fmt.Fprintln(out, st.muted.Render("No artifacts."))

		return nil
	}

	fmt.Fprintln(out, st.title.Render(fmt.Sprintf("Artifacts (%d)", len(artifacts))))

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tNAME\tSTATUS\tPROGRESS\tSIZE\tERROR")

	for _, artifact := range artifacts {
		fmt.Fprintf(table, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			artifact.ID,
			artifact.Name,
			artifact.Status,
			artifact.Progress,
			media.FormatFileSize(artifact.SizeBytes),
			truncate(orEmpty(artifact.Error), errorWidth),
		)
	}

	return table.Flush()
}

// artifactView is the YAML shape of a single artifact.
type artifactView struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Status        string `yaml:"status"`
	Progress      int    `yaml:"progress"`
	Size          string `yaml:"size"`
	SourceRef     string `yaml:"source_ref"`
	OutputRef     string `yaml:"output_ref,omitempty"`
	Error         string `yaml:"error,omitempty"`
	Transcription string `yaml:"transcription,omitempty"`
	ProcessedText string `yaml:"processed_text,omitempty"`
}

func renderArtifact(out io.Writer, artifact core.Artifact) {
	view := artifactView{
		ID:            artifact.ID,
		Name:          artifact.Name,
		Status:        artifact.Status.String(),
		Progress:      artifact.Progress,
		Size:          media.FormatFileSize(artifact.SizeBytes),
		SourceRef:     artifact.SourceRef,
		OutputRef:     artifact.OutputRef.OrZero(),
		Error:         artifact.Error.OrZero(),
		Transcription: artifact.Transcription.OrZero(),
		ProcessedText: artifact.ProcessedText.OrZero(),
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		fmt.Fprintf(out, "%+v\n", view)

		return
	}

	if view.Error != "" {
		fmt.Fprintln(out, newStyles(out).err.Render("Last attempt failed: "+view.Error))
	}

	fmt.Fprint(out, string(data))
}

// settingsView is the YAML shape of the stored settings.
type settingsView struct {
	TextProcessing struct {
		Prompt       string `yaml:"prompt"`
		Instructions string `yaml:"instructions"`
	} `yaml:"text_processing"`
	Voice struct {
		VoiceID        string  `yaml:"voice_id"`
		Speed          float64 `yaml:"speed"`
		Pitch          float64 `yaml:"pitch"`
		ResponseFormat string  `yaml:"response_format"`
	} `yaml:"voice"`
}

func renderSettings(out io.Writer, current *core.Settings) error {
	if current == nil {
		return nil
	}

	var view settingsView

	view.TextProcessing.Prompt = current.TextProcessing.Prompt
	view.TextProcessing.Instructions = current.TextProcessing.Instructions
	view.Voice.VoiceID = current.Voice.VoiceID
	view.Voice.Speed = current.Voice.Speed
	view.Voice.Pitch = current.Voice.Pitch
	view.Voice.ResponseFormat = current.Voice.ResponseFormat

	data, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}

	_, err = out.Write(data)

	return err
}

func renderVoices(out io.Writer, profiles []core.VoiceProfile) error {
	st := newStyles(out)

	fmt.Fprintln(out, st.title.Render(fmt.Sprintf("Voices (%d)", len(profiles))))

	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tNAME\tKIND\tGENDER\tACCENT")

	for _, profile := range profiles {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
			profile.ID, profile.Name, voiceKind(profile), profile.Gender, profile.Accent)
	}

	return table.Flush()
}

func voiceKind(profile core.VoiceProfile) string {
	switch {
	case profile.IsBase:
		return "base"
	case profile.IsPredefined:
		return "predefined"
	default:
		return "custom"
	}
}

func renderBatchStatus(out io.Writer, status *worker.BatchStatus) {
	if status == nil {
		return
	}

	fmt.Fprintf(out, "transcribe-all: %s\n", runningLabel(status.TranscribeAll))
	fmt.Fprintf(out, "generate-all:   %s\n", runningLabel(status.GenerateAll))

	for _, last := range []*batch.Report{status.LastTranscribeAll, status.LastGenerateAll} {
		if last != nil {
			renderReport(out, *last)
		}
	}
}

func renderReport(out io.Writer, report batch.Report) {
	st := newStyles(out)

	fmt.Fprintln(out, st.title.Render(fmt.Sprintf("Last %s: %d attempted, %d succeeded, %d failed",
		report.Stage, len(report.Attempted), report.Succeeded, len(report.Failed))))

	for _, id := range report.Attempted {
		if reason, failed := report.Failed[id]; failed {
			fmt.Fprintf(out, "  %s %s\n", id, st.err.Render(truncate(reason, errorWidth)))
		}
	}
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}

	return "idle"
}

func orEmpty(value core.Optional[string]) string {
	text, ok := value.Get()
	if !ok || text == "" {
		return emptyValue
	}

	return strings.ReplaceAll(text, "\n", " ")
}

func truncate(text string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}

	return string(runes[:width-1]) + "…"
}
