// main package for the dialogue-tts command line renderer
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/dialogue-tts/internal/config"
	"github.com/book-expert/dialogue-tts/internal/pipeline"
)

const (
	cliName          = "dialogue-tts"
	bootstrapLogFile = cliName + "-bootstrap.log"
	logFile          = cliName + ".log"
)

// providerFactory builds the synthesis backend for a loaded configuration.
type providerFactory func(ctx context.Context, cfg *config.Config) (pipeline.Provider, error)

// app carries the state shared by all subcommands.
type app struct {
	configPath  string
	newProvider providerFactory
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "Render dialogue scripts into a single WAV file",
		Long: `dialogue-tts turns a speaker-labelled script or a voice markup document
into one audio file. Each line is synthesized with the voice cast to its
speaker and named sound effects are mixed in where the script asks for them.

Without --config the configuration is resolved through the shared
configurator.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a .toml or .yaml config file")

	rootCmd.AddCommand(newRenderCmd(a), newVoicesCmd(a), newHealthCmd(a))

	return rootCmd
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// loadConfig reads --config when given and falls back to the configurator.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}

	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	return config.Load(bootstrapLog)
}

// session loads the configuration and opens the run logger.
func (a *app) session() (*config.Config, *logger.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := setupLogger(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

func closeLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(&app{newProvider: pipeline.NewProvider}).ExecuteContext(ctx)

	stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
		}

		os.Exit(1)
	}
}
