package main

import (
	"context"
	"io"
	"time"

	"github.com/book-expert/regen-service/internal/config"
	"github.com/spf13/cobra"
)

// Flag names and descriptions.
const (
	flagConfig      = "config"
	flagNATSURL     = "nats-url"
	flagTimeout     = "timeout"
	flagConfigDesc  = "Path to a project.toml (defaults are used when empty)"
	flagNATSURLDesc = "NATS server URL, overrides the config file"
	flagTimeoutDesc = "Timeout for a single request to the service"
)

const defaultRequestTimeout = 5 * time.Minute

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	natsURL    string
	timeout    time.Duration
	out        io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	root := &cobra.Command{
		Use:   "regen-client",
		Short: "Drive the audio regeneration service",
		Long: `regen-client talks to a running regen-service over NATS.

Upload recordings, transcribe them, review the enhanced text and
regenerate the audio with the selected voice.`,
		SilenceUsage: true,
	}

	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)
	root.PersistentFlags().StringVar(&opts.natsURL, flagNATSURL, "", flagNATSURLDesc)
	root.PersistentFlags().DurationVar(&opts.timeout, flagTimeout, defaultRequestTimeout, flagTimeoutDesc)

	root.AddCommand(
		newUploadCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
		newRemoveCommand(opts),
		newTranscribeCommand(opts),
		newEnhanceCommand(opts),
		newAcceptCommand(opts),
		newSynthesizeCommand(opts),
		newDownloadCommand(opts),
		newTranscribeAllCommand(opts),
		newGenerateAllCommand(opts),
		newBatchStatusCommand(opts),
		newSettingsCommand(opts),
		newVoicesCommand(opts),
	)

	return root
}

// loadConfig reads the config file when one is given, otherwise defaults.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}

		err = cfg.Validate()
		if err != nil {
			return nil, err
		}
	}

	if o.natsURL != "" {
		cfg.NATS.URL = o.natsURL
	}

	return cfg, nil
}

// withSession opens a session for the duration of fn.
func (o *rootOptions) withSession(ctx context.Context, fn func(ctx context.Context, s *session) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	s, err := openSession(cfg, o.timeout)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}
