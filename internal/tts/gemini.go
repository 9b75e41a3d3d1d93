package tts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/book-expert/dialogue-tts/internal/core"
)

// Gemini API defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.5-flash-preview-tts"

	geminiGenerateFormat = "%s/models/%s:generateContent"
	geminiModelFormat    = "%s/models/%s"
	modalityAudio        = "AUDIO"
	errNoInlineAudio     = "response carries no inline audio"
)

// GeminiClient calls the Gemini generateContent endpoint with audio output.
// The API answers with base64 PCM and a MIME type that names the rate.
type GeminiClient struct {
	httpProvider
	model string
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	LanguageCode            string                   `json:"languageCode,omitempty"`
	VoiceConfig             *geminiVoiceConfig       `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *geminiMultiSpeakerVoice `json:"multiSpeakerVoiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiMultiSpeakerVoice struct {
	SpeakerVoiceConfigs []geminiSpeakerVoice `json:"speakerVoiceConfigs"`
}

type geminiSpeakerVoice struct {
	Speaker     string            `json:"speaker"`
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient returns a client for baseURL (DefaultGeminiBaseURL if empty).
func NewGeminiClient(baseURL, model string, timeout time.Duration, credential Credential) (*GeminiClient, error) {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}

	if model == "" {
		model = DefaultGeminiModel
	}

	provider, err := newHTTPProvider(baseURL, timeout, credential)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{httpProvider: provider, model: model}, nil
}

// Synthesize requests speech for one unit. A request with SpeakerVoices set
// becomes a multi-speaker request.
func (c *GeminiClient) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.RawAudio, error) {
	if req.Content == "" {
		return nil, newFailure(FailureInvalidRequest, 0, "", ErrContentEmpty)
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Content}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{modalityAudio},
			SpeechConfig:       buildGeminiSpeechConfig(req),
		},
	}

	var resp geminiResponse

	url := fmt.Sprintf(geminiGenerateFormat, c.baseURL, c.model)

	err := c.postJSON(ctx, url, payload, &resp)
	if err != nil {
		return nil, err
	}

	inline := firstInlineData(resp)
	if inline == nil || inline.Data == "" || inline.MimeType == "" {
		return nil, newFailure(FailureMalformedResponse, 0, errNoInlineAudio, nil)
	}

	return &core.RawAudio{
		Data:       []byte(inline.Data),
		Encoding:   core.EncodingBase64Linear16,
		MIMEType:   inline.MimeType,
		SampleRate: req.SampleRate,
	}, nil
}

// HealthCheck fetches the model resource, which verifies both reachability and the API key.
func (c *GeminiClient) HealthCheck(ctx context.Context) error {
	var model map[string]any

	err := c.getJSON(ctx, fmt.Sprintf(geminiModelFormat, c.baseURL, c.model), &model)
	if err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}

	return nil
}

func buildGeminiSpeechConfig(req core.SynthesisRequest) geminiSpeechConfig {
	speechConfig := geminiSpeechConfig{LanguageCode: req.Voice.LanguageCode}

	if len(req.SpeakerVoices) == 0 {
		speechConfig.VoiceConfig = &geminiVoiceConfig{
			PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: req.Voice.VoiceID},
		}

		return speechConfig
	}

	speakers := make([]string, 0, len(req.SpeakerVoices))
	for speaker := range req.SpeakerVoices {
		speakers = append(speakers, speaker)
	}

	sort.Strings(speakers)

	multi := &geminiMultiSpeakerVoice{}
	for _, speaker := range speakers {
		multi.SpeakerVoiceConfigs = append(multi.SpeakerVoiceConfigs, geminiSpeakerVoice{
			Speaker: speaker,
			VoiceConfig: geminiVoiceConfig{
				PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: req.SpeakerVoices[speaker].VoiceID},
			},
		})
	}

	speechConfig.MultiSpeakerVoiceConfig = multi

	return speechConfig
}

func firstInlineData(resp geminiResponse) *geminiInlineData {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				return part.InlineData
			}
		}
	}

	return nil
}
