package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/regen-service/internal/core"
	"github.com/book-expert/regen-service/internal/media"
	"github.com/book-expert/regen-service/internal/worker"
	"github.com/spf13/cobra"
)

// ErrNotAudio indicates an upload of a file without an audio extension.
var ErrNotAudio = errors.New("not an audio file")

// Output messages.
const (
	msgUploaded     = "Uploaded %s as %s\n"
	msgRemoved      = "Removed %s\n"
	msgAccepted     = "Accepted text for %s\n"
	msgSaved        = "Wrote %s (%s)\n"
	msgBatchStarted = "Started %s\n"
	msgVoiceCreated = "Created voice %s (%s)\n"
	msgVoiceDeleted = "Deleted voice %s\n"
	msgSettingsSave = "Settings saved\n"
	msgInFlight     = "A stage operation is running for this artifact.\n"
	outputFileMode  = 0o644
	// Payloads up to this size travel inside the intake command.
	inlineUploadLimit = 512 * 1024
)

func newUploadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an audio or video file as a new artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := filepath.Base(path)

			if !media.IsAudioFile(name) {
				return fmt.Errorf("%w: %s", ErrNotAudio, name)
			}

			payload, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				artifact, err := s.upload(ctx, name, payload)
				if err != nil {
					return err
				}

				fmt.Fprintf(opts.out, msgUploaded, name, artifact.ID)

				return nil
			})
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List artifacts in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{Action: worker.ActionListArtifacts})
				if err != nil {
					return err
				}

				return renderArtifacts(opts.out, reply.Artifacts)
			})
		},
	}
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Show one artifact with its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{Action: worker.ActionGetArtifact, ArtifactID: args[0]})
				if err != nil {
					return err
				}

				renderArtifact(opts.out, *reply.Artifact)

				if reply.InFlight {
					fmt.Fprint(opts.out, msgInFlight)
				}

				return nil
			})
		},
	}
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <artifact-id>",
		Short: "Remove an artifact and its stored audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				_, err := s.request(ctx, worker.Command{Action: worker.ActionRemove, ArtifactID: args[0]})
				if err != nil {
					return err
				}

				fmt.Fprintf(opts.out, msgRemoved, args[0])

				return nil
			})
		},
	}
}

func newTranscribeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <artifact-id>",
		Short: "Transcribe one artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return artifactCommand(cmd, opts, worker.ActionTranscribe, args[0])
		},
	}
}

// artifactCommand runs a single-artifact action and renders the artifact the
// service answers with, including after a failed stage.
func artifactCommand(cmd *cobra.Command, opts *rootOptions, action, id string) error {
	return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
		reply, err := s.request(ctx, worker.Command{Action: action, ArtifactID: id})
		if reply.Artifact != nil {
			renderArtifact(opts.out, *reply.Artifact)
		}

		return err
	})
}

func newEnhanceCommand(opts *rootOptions) *cobra.Command {
	var (
		prompt       string
		instructions string
		accept       bool
	)

	cmd := &cobra.Command{
		Use:   "enhance <artifact-id>",
		Short: "Request an enhanced version of the transcript",
		Long: `Request an enhanced version of the transcript. The proposal is printed
and only applied when --accept is given or it is passed to "accept".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{
					Action:       worker.ActionEnhance,
					ArtifactID:   args[0],
					Prompt:       prompt,
					Instructions: instructions,
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(opts.out, reply.Text)

				if !accept {
					return nil
				}

				return acceptText(ctx, s, opts, args[0], reply.Text)
			})
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "Override the stored enhancement prompt")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Override the stored additional instructions")
	cmd.Flags().BoolVar(&accept, "accept", false, "Apply the proposal immediately")

	return cmd
}

func newAcceptCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <artifact-id> <text-file>",
		Short: "Set the processed text of an artifact from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				return acceptText(ctx, s, opts, args[0], string(text))
			})
		},
	}
}

func acceptText(ctx context.Context, s *session, opts *rootOptions, id, text string) error {
	_, err := s.request(ctx, worker.Command{Action: worker.ActionAccept, ArtifactID: id, Text: text})
	if err != nil {
		return err
	}

	fmt.Fprintf(opts.out, msgAccepted, id)

	return nil
}

func newSynthesizeCommand(opts *rootOptions) *cobra.Command {
	var params core.VoiceParams

	cmd := &cobra.Command{
		Use:   "synthesize <artifact-id>",
		Short: "Generate audio for one artifact",
		Long: `Generate audio for one artifact. The stored voice settings are used
unless --voice is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := worker.Command{Action: worker.ActionSynthesize, ArtifactID: args[0]}
			if params.VoiceID != "" {
				command.Voice = &params
			}

			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, command)
				if reply.Artifact != nil {
					renderArtifact(opts.out, *reply.Artifact)
				}

				return err
			})
		},
	}

	addVoiceFlags(cmd, &params)

	return cmd
}

func addVoiceFlags(cmd *cobra.Command, params *core.VoiceParams) {
	cmd.Flags().StringVar(&params.VoiceID, "voice", "", "Voice id, base or composite")
	cmd.Flags().Float64Var(&params.Speed, "speed", 1.0, "Speech speed")
	cmd.Flags().Float64Var(&params.Pitch, "pitch", 1.0, "Speech pitch")
	cmd.Flags().StringVar(&params.ResponseFormat, "format", media.FormatMP3, "Output audio format")
}

func newDownloadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download <artifact-id> <output-file>",
		Short: "Save the generated audio of a complete artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{Action: worker.ActionGetOutput, ArtifactID: args[0]})
				if err != nil {
					return err
				}

				err = os.WriteFile(args[1], reply.Audio, outputFileMode)
				if err != nil {
					return fmt.Errorf("failed to write %s: %w", args[1], err)
				}

				fmt.Fprintf(opts.out, msgSaved, args[1], media.FormatFileSize(int64(len(reply.Audio))))

				return nil
			})
		},
	}
}

func newTranscribeAllCommand(opts *rootOptions) *cobra.Command {
	return batchCommand(opts, "transcribe-all", "Transcribe every artifact still in upload", worker.ActionTranscribeAll)
}

func newGenerateAllCommand(opts *rootOptions) *cobra.Command {
	return batchCommand(opts, "generate-all", "Generate audio for every artifact in processing", worker.ActionGenerateAll)
}

func batchCommand(opts *rootOptions, use, short, action string) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{Action: action, Wait: wait})
				if err != nil {
					return err
				}

				if reply.Report != nil {
					renderReport(opts.out, *reply.Report)

					return nil
				}

				fmt.Fprintf(opts.out, msgBatchStarted, reply.Batch)

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the batch to finish and print its report")

	return cmd
}

func newBatchStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch-status",
		Short: "Show running batch operations and their last reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
				reply, err := s.request(ctx, worker.Command{Action: worker.ActionBatchStatus})
				if err != nil {
					return err
				}

				renderBatchStatus(opts.out, reply.Batches)

				return nil
			})
		},
	}
}

func newSettingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the current settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
					reply, err := s.request(ctx, worker.Command{Action: worker.ActionGetSettings})
					if err != nil {
						return err
					}

					return renderSettings(opts.out, reply.Settings)
				})
			},
		},
		newSetVoiceCommand(opts),
		newSetPromptCommand(opts),
	)

	return cmd
}

func newSetVoiceCommand(opts *rootOptions) *cobra.Command {
	var params core.VoiceParams

	cmd := &cobra.Command{
		Use:   "set-voice <voice-id>",
		Short: "Select the voice used for generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.VoiceID = args[0]

			return updateSettings(cmd, opts, func(current *core.Settings) {
				current.Voice = params
			})
		},
	}

	cmd.Flags().Float64Var(&params.Speed, "speed", 1.0, "Speech speed")
	cmd.Flags().Float64Var(&params.Pitch, "pitch", 1.0, "Speech pitch")
	cmd.Flags().StringVar(&params.ResponseFormat, "format", media.FormatMP3, "Output audio format")

	return cmd
}

func newSetPromptCommand(opts *rootOptions) *cobra.Command {
	var textProcessing core.TextProcessing

	cmd := &cobra.Command{
		Use:   "set-prompt",
		Short: "Replace the enhancement prompt and instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return updateSettings(cmd, opts, func(current *core.Settings) {
				current.TextProcessing = textProcessing
			})
		},
	}

	cmd.Flags().StringVar(&textProcessing.Prompt, "prompt", "", "Enhancement prompt, empty for the default")
	cmd.Flags().StringVar(&textProcessing.Instructions, "instructions", "", "Additional instructions")

	return cmd
}

// updateSettings reads the current settings, applies change and saves them.
func updateSettings(cmd *cobra.Command, opts *rootOptions, change func(*core.Settings)) error {
	return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
		reply, err := s.request(ctx, worker.Command{Action: worker.ActionGetSettings})
		if err != nil {
			return err
		}

		next := core.Settings{}
		if reply.Settings != nil {
			next = *reply.Settings
		}

		change(&next)

		_, err = s.request(ctx, worker.Command{Action: worker.ActionSaveSettings, Settings: &next})
		if err != nil {
			return err
		}

		fmt.Fprint(opts.out, msgSettingsSave)

		return nil
	})
}

func newVoicesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List and manage voices",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List base, predefined and user voices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
					reply, err := s.request(ctx, worker.Command{Action: worker.ActionListVoices})
					if err != nil {
						return err
					}

					return renderVoices(opts.out, reply.Voices)
				})
			},
		},
		&cobra.Command{
			Use:   "create <name> <voice-id> <voice-id>...",
			Short: "Create a composite voice from two or more base voices",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
					reply, err := s.request(ctx, worker.Command{
						Action:   worker.ActionCreateVoice,
						Name:     args[0],
						VoiceIDs: args[1:],
					})
					if err != nil {
						return err
					}

					fmt.Fprintf(opts.out, msgVoiceCreated, reply.Voice.Name, reply.Voice.ID)

					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "sample <voice-id> <output-file>",
			Short: "Save a spoken sample of a voice as mp3",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
					reply, err := s.request(ctx, worker.Command{Action: worker.ActionSampleVoice, VoiceID: args[0]})
					if err != nil {
						return err
					}

					err = os.WriteFile(args[1], reply.Audio, outputFileMode)
					if err != nil {
						return fmt.Errorf("failed to write %s: %w", args[1], err)
					}

					fmt.Fprintf(opts.out, msgSaved, args[1], media.FormatFileSize(int64(len(reply.Audio))))

					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <voice-id>",
			Short: "Delete a user composite voice",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withSession(cmd.Context(), func(ctx context.Context, s *session) error {
					_, err := s.request(ctx, worker.Command{Action: worker.ActionDeleteVoice, VoiceID: args[0]})
					if err != nil {
						return err
					}

					fmt.Fprintf(opts.out, msgVoiceDeleted, args[0])

					return nil
				})
			},
		},
	)

	return cmd
}
