// Package worker provides a NATS worker that renders dialogue scripts on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/tts/ttsutils"
)

// DefaultJobTimeout bounds one render job, backoff sleeps included.
const DefaultJobTimeout = 10 * time.Minute

const audioKeySuffix = ".wav"

var (
	// ErrSubjectEmpty indicates that no subject was given to listen on.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrMissingDependency indicates a nil connection, store, renderer, or logger.
	ErrMissingDependency = errors.New("worker dependency cannot be nil")
	// ErrTextKeyEmpty indicates a job without a script object key.
	ErrTextKeyEmpty = errors.New("event text key cannot be empty")
)

// NatsWorker listens for render jobs on a NATS subject. Each request names a
// script object; the worker renders it, uploads the WAV, and replies with the
// audio object key.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	scripts        core.ObjectStore
	audio          core.ObjectStore
	renderer       core.ScriptRenderer
	log            *logger.Logger
	jobTimeout     time.Duration
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	scripts core.ObjectStore,
	audio core.ObjectStore,
	renderer core.ScriptRenderer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if natsConnection == nil || scripts == nil || audio == nil || renderer == nil || log == nil {
		return nil, ErrMissingDependency
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		scripts:        scripts,
		audio:          audio,
		renderer:       renderer,
		log:            log,
		jobTimeout:     DefaultJobTimeout,
	}, nil
}

// SetJobTimeout overrides DefaultJobTimeout. Call before Run.
func (w *NatsWorker) SetJobTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.jobTimeout = timeout
	}
}

// Run subscribes and handles jobs until ctx is done, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for render jobs on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(runCtx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), w.jobTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, processErr := w.processRenderJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to render script for workflow %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processRenderJob downloads the script, renders it, and uploads the audio.
func (w *NatsWorker) processRenderJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	scriptData, err := w.scripts.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download script for key '%s': %w", event.TextKey, err)
	}

	audioData, err := w.renderer.RenderWAV(ctx, scriptData)
	if err != nil {
		return "", fmt.Errorf("failed to render script '%s': %w", event.TextKey, err)
	}

	audioKey := audioKeyFor(event)

	err = w.audio.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Rendered '%s' into '%s' (%s)", event.TextKey, audioKey,
		ttsutils.FormatFileSize(int64(len(audioData))))

	return audioKey, nil
}

// audioKeyFor prefixes a fresh id with the workflow id when there is one.
func audioKeyFor(event *events.TextProcessedEvent) string {
	key := uuid.NewString() + audioKeySuffix
	if event.Header.WorkflowID == "" {
		return key
	}

	return ttsutils.SanitizeFilename(event.Header.WorkflowID) + "-" + key
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &event, nil
}
