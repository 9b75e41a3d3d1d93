// Package pipeline renders a dialogue script into one audio buffer: parse,
// resolve voices, synthesize, decode, and assemble in script order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/effects"
	"github.com/book-expert/dialogue-tts/internal/export"
	"github.com/book-expert/dialogue-tts/internal/metrics"
	"github.com/book-expert/dialogue-tts/internal/script"
	"github.com/book-expert/dialogue-tts/internal/timeline"
	"github.com/book-expert/dialogue-tts/internal/tts"
	"github.com/book-expert/dialogue-tts/internal/tts/audio"
	"github.com/book-expert/dialogue-tts/internal/tts/ttsutils"
	"github.com/book-expert/dialogue-tts/internal/voice"
)

var (
	// ErrNoSynthesizer is returned by New without a synthesizer.
	ErrNoSynthesizer = errors.New("pipeline requires a synthesizer")
	// ErrNoResolver is returned by New without a voice resolver.
	ErrNoResolver = errors.New("pipeline requires a voice resolver")
	// ErrNoLogger is returned by New without a logger.
	ErrNoLogger = errors.New("pipeline requires a logger")
	// ErrAuthentication aborts a run when the provider rejects the credential.
	ErrAuthentication = errors.New("provider authentication failed")
)

// Skip records a unit left out of the output.
type Skip struct {
	Position int
	Kind     script.Kind
	Label    string
	Reason   string
}

// Report summarizes one run.
type Report struct {
	RunID       string
	Units       int
	Synthesized int
	Mixed       int
	Skipped     []Skip
	Output      time.Duration
	Elapsed     time.Duration
}

// Pipeline holds the collaborators of a run. The voice table and effect
// registry are read-only, so a Pipeline may render several scripts in turn.
type Pipeline struct {
	synth      core.Synthesizer
	resolver   *voice.Resolver
	effects    *effects.Registry
	metrics    *metrics.Metrics
	log        *logger.Logger
	sampleRate int
	combined   bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEffects sets the effect registry. Without one every effect unit is dropped.
func WithEffects(registry *effects.Registry) Option {
	return func(p *Pipeline) {
		p.effects = registry
	}
}

// WithMetrics records unit and run metrics.
func WithMetrics(met *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = met
	}
}

// WithSampleRate overrides the pipeline-wide output rate.
func WithSampleRate(sampleRate int) Option {
	return func(p *Pipeline) {
		if sampleRate > 0 {
			p.sampleRate = sampleRate
		}
	}
}

// WithCombined sends every speech unit as a single multi-speaker request.
// Effect units are not rendered in this mode.
func WithCombined(combined bool) Option {
	return func(p *Pipeline) {
		p.combined = combined
	}
}

// New returns a pipeline that calls synth once per speech unit.
func New(synth core.Synthesizer, resolver *voice.Resolver, log *logger.Logger, opts ...Option) (*Pipeline, error) {
	if synth == nil {
		return nil, ErrNoSynthesizer
	}

	if resolver == nil {
		return nil, ErrNoResolver
	}

	if log == nil {
		return nil, ErrNoLogger
	}

	p := &Pipeline{
		synth:      synth,
		resolver:   resolver,
		log:        log,
		sampleRate: audio.DefaultSampleRate,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// RetryMetrics adapts met to a tts.RetryObserver.
func RetryMetrics(met *metrics.Metrics) tts.RetryObserver {
	return func(ctx context.Context, kind tts.FailureKind, _ int, _ time.Duration) {
		met.RecordRetry(ctx, kind.String())
	}
}

// Render parses src and assembles its audio. Parse and authentication failures
// abort the run; any other failure drops the affected unit and is listed in
// the report.
func (p *Pipeline) Render(ctx context.Context, src []byte) (*audio.Buffer, *Report, error) {
	started := time.Now()
	report := &Report{RunID: uuid.NewString()}

	units, err := script.Parse(src)
	if err != nil {
		p.log.Error("Run %s: failed to parse script: %v", report.RunID, err)
		p.metrics.RecordRun(ctx, metrics.StatusFailed, 0)

		return nil, report, err
	}

	if p.combined {
		units = script.Combine(units)
	}

	speech, effect := script.CountKinds(units)
	report.Units = len(units)
	p.log.Info("Run %s: rendering %d speech and %d effect units", report.RunID, speech, effect)

	assembled := timeline.New(p.sampleRate)

	for _, unit := range units {
		var unitErr error

		switch unit.Kind {
		case script.KindSpeech:
			unitErr = p.renderSpeech(ctx, unit, assembled, report)
		case script.KindEffect:
			p.mixEffect(ctx, unit, assembled, report)
		}

		if unitErr != nil {
			p.log.Error("Run %s: aborted at unit %d: %v", report.RunID, unit.Position, unitErr)
			p.metrics.RecordRun(ctx, metrics.StatusFailed, 0)

			return nil, report, unitErr
		}
	}

	buf := assembled.Buffer()
	report.Output = buf.Duration()
	report.Elapsed = time.Since(started)

	p.metrics.RecordRun(ctx, metrics.StatusOK, report.Output)
	p.log.Info("Run %s: %d synthesized, %d effects mixed, %d skipped, %s of audio in %s",
		report.RunID, report.Synthesized, report.Mixed, len(report.Skipped),
		ttsutils.FormatDuration(report.Output), ttsutils.FormatDuration(report.Elapsed))

	return buf, report, nil
}

// Run renders src and writes the result to outputPath. The container format
// comes from the extension of outputPath and is checked before any synthesis.
// Nothing is written unless rendering succeeds.
func (p *Pipeline) Run(ctx context.Context, src []byte, outputPath string) (*Report, error) {
	format, err := audio.ParseFormat(filepath.Ext(outputPath))
	if err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", outputPath, err)
	}

	buf, report, err := p.Render(ctx, src)
	if err != nil {
		return report, err
	}

	exportErr := export.Export(buf, outputPath, format)
	if exportErr != nil {
		return report, fmt.Errorf("failed to export %s: %w", outputPath, exportErr)
	}

	info, statErr := os.Stat(outputPath)
	if statErr == nil {
		p.log.Info("Run %s: wrote %s (%s)", report.RunID, outputPath, ttsutils.FormatFileSize(info.Size()))
	}

	return report, nil
}

// RenderWAV renders a script into WAV bytes.
func (p *Pipeline) RenderWAV(ctx context.Context, src []byte) ([]byte, error) {
	buf, _, err := p.Render(ctx, src)
	if err != nil {
		return nil, err
	}

	return audio.EncodeWAV(buf)
}

// renderSpeech synthesizes one unit. It returns an error only when the run
// must stop.
func (p *Pipeline) renderSpeech(ctx context.Context, unit script.Unit, assembled *timeline.Timeline, report *Report) error {
	req := p.buildRequest(unit)
	label := unit.Speaker
	started := time.Now()

	raw, err := p.synth.Synthesize(ctx, req)
	if err != nil {
		p.metrics.RecordSynthesis(ctx, time.Since(started), metrics.OutcomeSkipped)

		if errors.Is(err, tts.ErrAuth) {
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		}

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return fmt.Errorf("run interrupted: %w", ctxErr)
		}

		p.skip(ctx, report, unit, label, fmt.Sprintf("synthesis failed: %v", err))

		return nil
	}

	p.metrics.RecordSynthesis(ctx, time.Since(started), metrics.OutcomeSynthesized)

	buf, err := audio.Decode(raw)
	if err != nil {
		p.skip(ctx, report, unit, label, fmt.Sprintf("undecodable audio: %v", err))

		return nil
	}

	appendErr := assembled.Append(buf, label)
	if appendErr != nil {
		p.skip(ctx, report, unit, label, appendErr.Error())

		return nil
	}

	report.Synthesized++
	p.metrics.RecordUnit(ctx, unit.Kind.String(), metrics.OutcomeSynthesized)

	return nil
}

func (p *Pipeline) buildRequest(unit script.Unit) core.SynthesisRequest {
	req := core.SynthesisRequest{
		Content:    unit.Content,
		Markup:     unit.Markup,
		SampleRate: p.sampleRate,
	}

	if len(unit.Speakers) == 0 {
		req.Voice = p.resolver.Resolve(unit.Speaker)

		return req
	}

	_, req.Voice = p.resolver.Default()
	req.SpeakerVoices = make(map[string]core.VoiceConfig, len(unit.Speakers))

	for _, speaker := range unit.Speakers {
		req.SpeakerVoices[speaker] = p.resolver.Resolve(speaker)
	}

	return req
}

func (p *Pipeline) mixEffect(ctx context.Context, unit script.Unit, assembled *timeline.Timeline, report *Report) {
	clip, err := p.effects.Load(ctx, unit.EffectKey)
	if err != nil {
		if errors.Is(err, effects.ErrUnknownEffect) {
			p.log.Warn("Run %s: dropping effect %q at unit %d: not in registry",
				report.RunID, unit.EffectKey, unit.Position)
			report.Skipped = append(report.Skipped, Skip{
				Position: unit.Position,
				Kind:     unit.Kind,
				Label:    unit.EffectKey,
				Reason:   "not in registry",
			})
			p.metrics.RecordUnit(ctx, unit.Kind.String(), metrics.OutcomeDropped)

			return
		}

		p.skip(ctx, report, unit, unit.EffectKey, err.Error())

		return
	}

	appendErr := assembled.Append(clip, unit.EffectKey)
	if appendErr != nil {
		p.skip(ctx, report, unit, unit.EffectKey, appendErr.Error())

		return
	}

	report.Mixed++
	p.metrics.RecordUnit(ctx, unit.Kind.String(), metrics.OutcomeMixed)
}

func (p *Pipeline) skip(ctx context.Context, report *Report, unit script.Unit, label, reason string) {
	p.log.Warn("Run %s: skipping %s unit %d (%s): %s", report.RunID, unit.Kind, unit.Position, label, reason)

	report.Skipped = append(report.Skipped, Skip{
		Position: unit.Position,
		Kind:     unit.Kind,
		Label:    label,
		Reason:   reason,
	})
	p.metrics.RecordUnit(ctx, unit.Kind.String(), metrics.OutcomeSkipped)
}
