package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/dialogue-tts/internal/config"
	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/effects"
	"github.com/book-expert/dialogue-tts/internal/metrics"
	"github.com/book-expert/dialogue-tts/internal/tts"
	"github.com/book-expert/dialogue-tts/internal/voice"
)

// Provider is a synthesis backend that can also check its own reachability.
type Provider interface {
	core.Synthesizer
	HealthCheck(ctx context.Context) error
}

// NewProvider builds the provider named by cfg.Provider with an explicit credential.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	timeout := cfg.ProviderTimeout()

	switch cfg.Provider.Kind {
	case config.ProviderCloud:
		credential, err := cloudCredential(ctx, cfg.Provider)
		if err != nil {
			return nil, err
		}

		client, err := tts.NewCloudClient(cfg.Provider.BaseURL, timeout, credential)
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.ProviderGemini:
		credential, err := geminiCredential(cfg.Provider)
		if err != nil {
			return nil, err
		}

		client, err := tts.NewGeminiClient(cfg.Provider.BaseURL, cfg.Provider.Model, timeout, credential)
		if err != nil {
			return nil, err
		}

		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider.Kind)
	}
}

func geminiCredential(cfg config.ProviderConfig) (tts.Credential, error) {
	var (
		credential *tts.APIKeyCredential
		err        error
	)

	if cfg.APIKeyFile != "" {
		credential, err = tts.NewAPIKeyCredentialFromFile(cfg.APIKeyFile)
	} else {
		key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
		if key == "" {
			return nil, fmt.Errorf("%w: set provider.api_key_file or %s", tts.ErrNoCredential, cfg.APIKeyEnv)
		}

		credential, err = tts.NewAPIKeyCredential(key)
	}

	if err != nil {
		return nil, err
	}

	return credential, nil
}

func cloudCredential(ctx context.Context, cfg config.ProviderConfig) (tts.Credential, error) {
	var (
		credential *tts.TokenCredential
		err        error
	)

	if cfg.CredentialsFile != "" {
		credential, err = tts.NewServiceAccountCredential(ctx, cfg.CredentialsFile)
	} else {
		credential, err = tts.NewDefaultCredential(ctx)
	}

	if err != nil {
		return nil, err
	}

	return credential, nil
}

// Build wires a Pipeline from cfg: provider, retry policy, voice table, and
// effect registry. clips overrides the clip source; nil reads from
// cfg.Effects.Dir.
func Build(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	met *metrics.Metrics,
	clips effects.ClipSource,
) (*Pipeline, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider.Kind, err)
	}

	return BuildWith(provider, cfg, log, met, clips)
}

// BuildWith is Build with a caller-supplied provider.
func BuildWith(
	provider core.Synthesizer,
	cfg *config.Config,
	log *logger.Logger,
	met *metrics.Metrics,
	clips effects.ClipSource,
) (*Pipeline, error) {
	retrying := tts.NewRetryingSynthesizer(provider,
		tts.RetryPolicy{MaxAttempts: cfg.Synthesis.MaxAttempts, BaseDelay: cfg.BaseDelay()},
		log,
		tts.WithRetryObserver(RetryMetrics(met)),
	)

	resolver, err := voice.NewResolver(cfg.VoiceTable(), cfg.Voices.Default)
	if err != nil {
		return nil, fmt.Errorf("failed to build voice table: %w", err)
	}

	if clips == nil {
		clips = effects.FileSource{Dir: cfg.Effects.Dir}
	}

	registry, err := effects.NewRegistry(cfg.Effects.Clips, clips)
	if err != nil {
		return nil, fmt.Errorf("failed to build effect registry: %w", err)
	}

	return New(retrying, resolver, log,
		WithEffects(registry),
		WithMetrics(met),
		WithSampleRate(cfg.Synthesis.SampleRate),
		WithCombined(cfg.Synthesis.Combined),
	)
}
