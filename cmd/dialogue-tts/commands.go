package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/dialogue-tts/internal/metrics"
	"github.com/book-expert/dialogue-tts/internal/pipeline"
	"github.com/book-expert/dialogue-tts/internal/tts/ttsutils"
	"github.com/book-expert/dialogue-tts/internal/voice"
)

const (
	healthTimeout       = 15 * time.Second
	metricsFlushTimeout = 5 * time.Second
)

var errProviderUnhealthy = errors.New("provider health check failed")

func newRenderCmd(a *app) *cobra.Command {
	var (
		scriptPath string
		outPath    string
		combined   bool
	)

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a script into a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.session()
			if err != nil {
				return err
			}
			defer closeLogger(log)

			if cmd.Flags().Changed("combined") {
				cfg.Synthesis.Combined = combined
			}

			src, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to read script %s: %w", scriptPath, err)
			}

			provider, err := a.newProvider(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create %s provider: %w", cfg.Provider.Kind, err)
			}

			met, shutdownMetrics, err := metrics.InitProvider(metrics.ProviderConfig{
				ServiceName: cliName,
				Interval:    cfg.MetricsInterval(),
				Log:         log,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize metrics: %w", err)
			}
			defer flushMetrics(log, shutdownMetrics)

			p, err := pipeline.BuildWith(provider, cfg, log, met, nil)
			if err != nil {
				return err
			}

			report, err := p.Run(cmd.Context(), src, outPath)
			if err != nil {
				log.Error("Render of %s failed: %v", scriptPath, err)

				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %s: %s of audio, %d lines synthesized, %d effects mixed, %d skipped\n",
				outPath, ttsutils.FormatDuration(report.Output), report.Synthesized, report.Mixed, len(report.Skipped))

			for _, skipped := range report.Skipped {
				fmt.Fprintf(out, "  skipped #%d %s %q: %s\n", skipped.Position, skipped.Kind, skipped.Label, skipped.Reason)
			}

			return nil
		},
	}

	renderCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "script file to render")
	renderCmd.Flags().StringVarP(&outPath, "out", "o", "", "output WAV path")
	renderCmd.Flags().BoolVar(&combined, "combined", false, "send the whole script as one multi-speaker request")

	_ = renderCmd.MarkFlagRequired("script")
	_ = renderCmd.MarkFlagRequired("out")

	return renderCmd
}

func newVoicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the configured speakers and their voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			resolver, err := voice.NewResolver(cfg.VoiceTable(), cfg.Voices.Default)
			if err != nil {
				return err
			}

			defaultSpeaker, _ := resolver.Default()
			out := cmd.OutOrStdout()

			for _, speaker := range resolver.Speakers() {
				voiceCfg, _ := resolver.Lookup(speaker)

				marker := ""
				if speaker == defaultSpeaker {
					marker = " (default)"
				}

				fmt.Fprintf(out, "%s\t%s\t%s%s\n", speaker, voiceCfg.VoiceID, voiceCfg.LanguageCode, marker)
			}

			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured provider accepts the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			provider, err := a.newProvider(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create %s provider: %w", cfg.Provider.Kind, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			healthErr := provider.HealthCheck(ctx)
			if healthErr != nil {
				return fmt.Errorf("%w: %w", errProviderUnhealthy, healthErr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s provider is healthy\n", cfg.Provider.Kind)

			return nil
		},
	}
}

// flushMetrics writes the final metric values to the run log.
func flushMetrics(log *logger.Logger, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
	defer cancel()

	shutdownErr := shutdown(ctx)
	if shutdownErr != nil {
		log.Error("Failed to flush metrics: %v", shutdownErr)
	}
}
