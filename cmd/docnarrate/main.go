package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/document"
	"github.com/dgallion1/docnarrate/internal/metrics"
	"github.com/dgallion1/docnarrate/internal/parser"
	"github.com/dgallion1/docnarrate/internal/pipeline"
	"github.com/dgallion1/docnarrate/internal/recovery"
	"github.com/dgallion1/docnarrate/internal/synth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:          "docnarrate [Key=Value ...]",
		Short:        "Narrate the documents in a directory through a speech service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(debug, cfg.LogLevel)
			if err := cfg.ApplyArgs(args); err != nil {
				return err
			}
			if cfg.IsManual {
				if err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), &cfg); err != nil {
					return err
				}
			}
			return narrate(cmd.Context(), cfg, log)
		},
	}

	f := cmd.PersistentFlags()
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&cfg.InputDir, "input", cfg.InputDir, "directory holding the documents")
	f.StringVar(&cfg.OutputFolderName, "output", cfg.OutputFolderName, "output folder")
	f.IntVar(&cfg.MaxCharacters, "max-chars", cfg.MaxCharacters, "maximum bytes per chunk")
	f.StringVar(&cfg.Model, "model", cfg.Model, "speech model")
	f.StringVar(&cfg.Voice, "voice", cfg.Voice, "voice")
	f.Float64Var(&cfg.Speed, "speed", cfg.Speed, "speaking speed")
	f.StringVar(&cfg.FileFormat, "format", cfg.FileFormat, "audio format")
	f.StringVar(&cfg.LocalAPIURL, "tts-url", cfg.LocalAPIURL, "speech endpoint URL")
	f.StringVar(&cfg.RestartCommand, "restart-command", cfg.RestartCommand, "command that restarts the speech service")
	f.IntVar(&cfg.RecoveryThreshold, "recovery-threshold", cfg.RecoveryThreshold, "transport faults tolerated before recovery")

	cmd.AddCommand(newServeCmd(&cfg, &debug))
	return cmd
}

func newLogger(debug bool, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// converter builds the speech client and the chunk converter around it. A
// configured restart runs once before returning.
func converter(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (*synth.Client, *pipeline.ChunkConverter, error) {
	rec, err := recovery.New(cfg.RestartCommand, cfg.RestartSettle, log)
	if err != nil {
		return nil, nil, err
	}
	client := synth.NewClient(cfg.LocalAPIURL, cfg.TTSAPIKey, cfg.TTSTimeout)
	conv := pipeline.NewChunkConverter(client, rec, pipeline.VoiceFromConfig(cfg), cfg.RecoveryThreshold, m, log)

	if cfg.RestartAPI {
		if _, ok := rec.(recovery.Noop); ok {
			log.Warn("RestartAPI set without a restart command")
		}
		conv.Recover(ctx)
	}
	return client, conv, nil
}

func narrate(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	paths, err := document.Find(cfg.InputDir, parser.SupportedExtensions)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	client, conv, err := converter(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer client.Close()

	runner := pipeline.NewRunner(pipeline.OptionsFromConfig(cfg), conv, m, log)
	sum, err := runner.Run(ctx, paths)
	if errors.Is(err, pipeline.ErrNoInput) {
		fmt.Fprintf(os.Stderr, "No documents found in %s.\n", cfg.InputDir)
		return err
	}
	if err != nil {
		return err
	}
	if sum.FailedSplits > 0 {
		log.Warn("some text was not narrated", "failed_splits", sum.FailedSplits)
	}
	return nil
}
