// Package config provides the configuration structure for dialogue-tts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/book-expert/dialogue-tts/internal/core"
)

// Provider kinds.
const (
	ProviderGemini = "gemini"
	ProviderCloud  = "cloud"
)

// Effect clip sources.
const (
	EffectSourceFile  = "file"
	EffectSourceStore = "store"
)

// Defaults applied to zero values.
const (
	DefaultSampleRate     = 24000
	DefaultMaxAttempts    = 5
	DefaultBaseDelayMS    = 1000
	DefaultTimeoutSeconds = 60
	DefaultSpeaker        = "Narrator"
	DefaultAPIKeyEnv      = "GEMINI_API_KEY"
	DefaultJobsSubject    = "dialogue.render"
	DefaultScriptBucket   = "DIALOGUE_SCRIPTS"
	DefaultAudioBucket    = "DIALOGUE_AUDIO"
	DefaultEffectsBucket  = "DIALOGUE_EFFECTS"
	DefaultExportSeconds  = 60
)

var (
	// ErrUnknownProvider indicates a provider kind other than gemini or cloud.
	ErrUnknownProvider = errors.New("unknown provider kind")
	// ErrUnknownEffectSource indicates an effect source other than file or store.
	ErrUnknownEffectSource = errors.New("unknown effect source")
	// ErrEmptyCast indicates a configuration without any voices.
	ErrEmptyCast = errors.New("voice cast cannot be empty")
	// ErrDefaultVoiceMissing indicates that voices.default names no cast member.
	ErrDefaultVoiceMissing = errors.New("default speaker is not in the cast")
	// ErrDuplicateSpeaker indicates two cast entries for one speaker.
	ErrDuplicateSpeaker = errors.New("speaker listed twice in the cast")
	// ErrInvalidSynthesis indicates out-of-range synthesis settings.
	ErrInvalidSynthesis = errors.New("invalid synthesis settings")
	// ErrInvalidMetrics indicates a non-positive metrics export interval.
	ErrInvalidMetrics = errors.New("invalid metrics settings")
	// ErrUnknownConfigFormat indicates a config file that is neither TOML nor YAML.
	ErrUnknownConfigFormat = errors.New("config file must be .toml, .yaml or .yml")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" yaml:"base_logs_dir"`
}

// NATSConfig holds the configuration for the render job worker.
type NATSConfig struct {
	URL           string `toml:"url"            yaml:"url"`
	JobsSubject   string `toml:"jobs_subject"   yaml:"jobs_subject"`
	ScriptBucket  string `toml:"script_bucket"  yaml:"script_bucket"`
	AudioBucket   string `toml:"audio_bucket"   yaml:"audio_bucket"`
	EffectsBucket string `toml:"effects_bucket" yaml:"effects_bucket"`
}

// ProviderConfig selects and authenticates the remote synthesis provider.
type ProviderConfig struct {
	Kind    string `toml:"kind"     yaml:"kind"`
	BaseURL string `toml:"base_url" yaml:"base_url"`
	Model   string `toml:"model"    yaml:"model"`
	// APIKeyFile, then APIKeyEnv, supply the Gemini API key.
	APIKeyFile string `toml:"api_key_file" yaml:"api_key_file"`
	APIKeyEnv  string `toml:"api_key_env"  yaml:"api_key_env"`
	// CredentialsFile is a service account key for the Cloud provider. When
	// empty, Application Default Credentials are used.
	CredentialsFile string `toml:"credentials_file" yaml:"credentials_file"`
	TimeoutSeconds  int    `toml:"timeout_seconds"  yaml:"timeout_seconds"`
}

// SynthesisConfig holds the output format and retry settings.
type SynthesisConfig struct {
	SampleRate  int  `toml:"sample_rate"   yaml:"sample_rate"`
	MaxAttempts int  `toml:"max_attempts"  yaml:"max_attempts"`
	BaseDelayMS int  `toml:"base_delay_ms" yaml:"base_delay_ms"`
	Combined    bool `toml:"combined"      yaml:"combined"`
}

// CastMember maps one script speaker to a provider voice.
type CastMember struct {
	Speaker      string `toml:"speaker"       yaml:"speaker"`
	VoiceID      string `toml:"voice_id"      yaml:"voice_id"`
	LanguageCode string `toml:"language_code" yaml:"language_code"`
}

// VoicesConfig is the cast table and its default entry.
type VoicesConfig struct {
	Default string       `toml:"default" yaml:"default"`
	Cast    []CastMember `toml:"cast"    yaml:"cast"`
}

// EffectsConfig is the effect registry.
type EffectsConfig struct {
	Source string            `toml:"source" yaml:"source"`
	Dir    string            `toml:"dir"    yaml:"dir"`
	Clips  map[string]string `toml:"clips"  yaml:"clips"`
}

// MetricsConfig controls how often metrics are written to the log.
type MetricsConfig struct {
	ExportIntervalSeconds int `toml:"export_interval_seconds" yaml:"export_interval_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	Paths     PathsConfig     `toml:"paths"     yaml:"paths"`
	NATS      NATSConfig      `toml:"nats"      yaml:"nats"`
	Provider  ProviderConfig  `toml:"provider"  yaml:"provider"`
	Synthesis SynthesisConfig `toml:"synthesis" yaml:"synthesis"`
	Voices    VoicesConfig    `toml:"voices"    yaml:"voices"`
	Effects   EffectsConfig   `toml:"effects"   yaml:"effects"`
	Metrics   MetricsConfig   `toml:"metrics"   yaml:"metrics"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads a TOML or YAML file, chosen by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfigFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills zero values with the defaults.
func (c *Config) ApplyDefaults() {
	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}

	if c.NATS.JobsSubject == "" {
		c.NATS.JobsSubject = DefaultJobsSubject
	}

	if c.NATS.ScriptBucket == "" {
		c.NATS.ScriptBucket = DefaultScriptBucket
	}

	if c.NATS.AudioBucket == "" {
		c.NATS.AudioBucket = DefaultAudioBucket
	}

	if c.NATS.EffectsBucket == "" {
		c.NATS.EffectsBucket = DefaultEffectsBucket
	}

	if c.Provider.Kind == "" {
		c.Provider.Kind = ProviderGemini
	}

	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = DefaultAPIKeyEnv
	}

	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Synthesis.SampleRate == 0 {
		c.Synthesis.SampleRate = DefaultSampleRate
	}

	if c.Synthesis.MaxAttempts == 0 {
		c.Synthesis.MaxAttempts = DefaultMaxAttempts
	}

	if c.Synthesis.BaseDelayMS == 0 {
		c.Synthesis.BaseDelayMS = DefaultBaseDelayMS
	}

	if c.Voices.Default == "" {
		c.Voices.Default = DefaultSpeaker
	}

	if c.Effects.Source == "" {
		c.Effects.Source = EffectSourceFile
	}

	if c.Metrics.ExportIntervalSeconds == 0 {
		c.Metrics.ExportIntervalSeconds = DefaultExportSeconds
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderGemini, ProviderCloud:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider.Kind)
	}

	switch c.Effects.Source {
	case EffectSourceFile, EffectSourceStore:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEffectSource, c.Effects.Source)
	}

	if c.Synthesis.SampleRate <= 0 || c.Synthesis.MaxAttempts <= 0 || c.Synthesis.BaseDelayMS <= 0 {
		return fmt.Errorf("%w: sample_rate, max_attempts and base_delay_ms must be positive", ErrInvalidSynthesis)
	}

	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout_seconds must be positive", ErrInvalidSynthesis)
	}

	if c.Metrics.ExportIntervalSeconds <= 0 {
		return fmt.Errorf("%w: export_interval_seconds must be positive", ErrInvalidMetrics)
	}

	if len(c.Voices.Cast) == 0 {
		return ErrEmptyCast
	}

	// Lookups fall back to case-insensitive matching, so names must be unique
	// ignoring case.
	seen := make(map[string]string, len(c.Voices.Cast))

	for _, member := range c.Voices.Cast {
		key := strings.ToLower(member.Speaker)
		if other, ok := seen[key]; ok {
			if other == member.Speaker {
				return fmt.Errorf("%w: %q", ErrDuplicateSpeaker, member.Speaker)
			}

			return fmt.Errorf("%w: %q and %q differ only in case", ErrDuplicateSpeaker, other, member.Speaker)
		}

		seen[key] = member.Speaker
	}

	if speaker, ok := seen[strings.ToLower(c.Voices.Default)]; !ok || speaker != c.Voices.Default {
		return fmt.Errorf("%w: %q", ErrDefaultVoiceMissing, c.Voices.Default)
	}

	return nil
}

// VoiceTable returns the cast as a speaker to voice map.
func (c *Config) VoiceTable() map[string]core.VoiceConfig {
	table := make(map[string]core.VoiceConfig, len(c.Voices.Cast))
	for _, member := range c.Voices.Cast {
		table[member.Speaker] = core.VoiceConfig{
			VoiceID:      member.VoiceID,
			LanguageCode: member.LanguageCode,
		}
	}

	return table
}

// BaseDelay returns the first retry delay.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Synthesis.BaseDelayMS) * time.Millisecond
}

// ProviderTimeout returns the per-request HTTP timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// MetricsInterval returns the period between metric exports.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Metrics.ExportIntervalSeconds) * time.Second
}
