package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/dialogue-tts/internal/core"
)

// Cloud Text-to-Speech defaults.
const (
	DefaultCloudBaseURL = "https://texttospeech.googleapis.com"

	cloudSynthesizePath = "/v1/text:synthesize"
	cloudVoicesPath     = "/v1/voices"
	encodingLinear16    = "LINEAR16"
	ssmlRootOpen        = "<speak>"
	ssmlRootClose       = "</speak>"
	ssmlRootPrefix      = "<speak"
	errNoAudioContent   = "response carries no audio content"
)

// CloudClient calls the Cloud Text-to-Speech text:synthesize endpoint. Markup
// content is sent as SSML, plain content as text.
type CloudClient struct {
	httpProvider
}

type cloudRequest struct {
	Input       cloudInput       `json:"input"`
	Voice       cloudVoice       `json:"voice"`
	AudioConfig cloudAudioConfig `json:"audioConfig"`
}

type cloudInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type cloudVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type cloudAudioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
}

type cloudResponse struct {
	// AudioContent is base64 in JSON; encoding/json decodes it into bytes.
	AudioContent []byte `json:"audioContent"`
}

// NewCloudClient returns a client for baseURL (DefaultCloudBaseURL if empty).
func NewCloudClient(baseURL string, timeout time.Duration, credential Credential) (*CloudClient, error) {
	if baseURL == "" {
		baseURL = DefaultCloudBaseURL
	}

	provider, err := newHTTPProvider(baseURL, timeout, credential)
	if err != nil {
		return nil, err
	}

	return &CloudClient{httpProvider: provider}, nil
}

// Synthesize requests LINEAR16 speech at req.SampleRate for one unit.
func (c *CloudClient) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.RawAudio, error) {
	if req.Content == "" {
		return nil, newFailure(FailureInvalidRequest, 0, "", ErrContentEmpty)
	}

	payload := cloudRequest{
		Voice: cloudVoice{
			LanguageCode: req.Voice.LanguageCode,
			Name:         req.Voice.VoiceID,
		},
		AudioConfig: cloudAudioConfig{
			AudioEncoding:   encodingLinear16,
			SampleRateHertz: req.SampleRate,
		},
	}

	if req.Markup {
		payload.Input.SSML = wrapSSML(req.Content)
	} else {
		payload.Input.Text = req.Content
	}

	var resp cloudResponse

	err := c.postJSON(ctx, c.baseURL+cloudSynthesizePath, payload, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.AudioContent) == 0 {
		return nil, newFailure(FailureMalformedResponse, 0, errNoAudioContent, nil)
	}

	return &core.RawAudio{
		Data:       resp.AudioContent,
		Encoding:   core.EncodingLinear16,
		SampleRate: req.SampleRate,
	}, nil
}

// HealthCheck lists voices for a single language, which verifies reachability
// and the credential.
func (c *CloudClient) HealthCheck(ctx context.Context) error {
	var voices map[string]any

	query := url.Values{"languageCode": []string{"en-US"}}

	err := c.getJSON(ctx, c.baseURL+cloudVoicesPath+"?"+query.Encode(), &voices)
	if err != nil {
		return fmt.Errorf("cloud tts health check failed: %w", err)
	}

	return nil
}

// wrapSSML adds a <speak> root unless the fragment already has one.
func wrapSSML(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if strings.HasPrefix(trimmed, ssmlRootPrefix) {
		return trimmed
	}

	return ssmlRootOpen + trimmed + ssmlRootClose
}
