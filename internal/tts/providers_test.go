package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/tts"
)

const testAPIKey = "test-key"

func apiKey(t *testing.T) tts.Credential {
	t.Helper()

	cred, err := tts.NewAPIKeyCredential(testAPIKey)
	require.NoError(t, err)

	return cred
}

func newGemini(t *testing.T, handler http.HandlerFunc) *tts.GeminiClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := tts.NewGeminiClient(server.URL, "test-model", 5*time.Second, apiKey(t))
	require.NoError(t, err)

	return client
}

func newCloud(t *testing.T, handler http.HandlerFunc, cred tts.Credential) *tts.CloudClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := tts.NewCloudClient(server.URL, 5*time.Second, cred)
	require.NoError(t, err)

	return client
}

func TestGeminiClient_SynthesizeSingleVoice(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 0, 2, 0}

	client := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("x-goog-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		generation, _ := body["generationConfig"].(map[string]any)
		assert.Equal(t, []any{"AUDIO"}, generation["responseModalities"])

		speech, _ := generation["speechConfig"].(map[string]any)
		voiceConfig, _ := speech["voiceConfig"].(map[string]any)
		prebuilt, _ := voiceConfig["prebuiltVoiceConfig"].(map[string]any)
		assert.Equal(t, "Kore", prebuilt["voiceName"])
		assert.NotContains(t, speech, "multiSpeakerVoiceConfig")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{` +
			`"mimeType":"audio/L16;codec=pcm;rate=24000","data":"` +
			base64.StdEncoding.EncodeToString(pcm) + `"}}]}}]}`))
	})

	raw, err := client.Synthesize(context.Background(), core.SynthesisRequest{
		Content:    "Hello there.",
		Voice:      core.VoiceConfig{VoiceID: "Kore", LanguageCode: "en-US"},
		SampleRate: 24000,
	})
	require.NoError(t, err)
	assert.Equal(t, core.EncodingBase64Linear16, raw.Encoding)
	assert.Equal(t, "audio/L16;codec=pcm;rate=24000", raw.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pcm), string(raw.Data))
}

func TestGeminiClient_SynthesizeMultiSpeaker(t *testing.T) {
	t.Parallel()

	client := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			GenerationConfig struct {
				SpeechConfig struct {
					MultiSpeakerVoiceConfig struct {
						SpeakerVoiceConfigs []struct {
							Speaker     string `json:"speaker"`
							VoiceConfig struct {
								PrebuiltVoiceConfig struct {
									VoiceName string `json:"voiceName"`
								} `json:"prebuiltVoiceConfig"`
							} `json:"voiceConfig"`
						} `json:"speakerVoiceConfigs"`
					} `json:"multiSpeakerVoiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		configs := body.GenerationConfig.SpeechConfig.MultiSpeakerVoiceConfig.SpeakerVoiceConfigs
		if assert.Len(t, configs, 2) {
			assert.Equal(t, "MAYA", configs[0].Speaker)
			assert.Equal(t, "Puck", configs[0].VoiceConfig.PrebuiltVoiceConfig.VoiceName)
			assert.Equal(t, "RILEY", configs[1].Speaker)
			assert.Equal(t, "Kore", configs[1].VoiceConfig.PrebuiltVoiceConfig.VoiceName)
		}

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{` +
			`"mimeType":"audio/L16;rate=24000","data":"AAA="}}]}}]}`))
	})

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{
		Content: "RILEY: Hi.\nMAYA: Hello.",
		SpeakerVoices: map[string]core.VoiceConfig{
			"RILEY": {VoiceID: "Kore"},
			"MAYA":  {VoiceID: "Puck"},
		},
	})
	require.NoError(t, err)
}

func TestGeminiClient_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, tts.ErrAuth},
		{http.StatusForbidden, tts.ErrAuth},
		{http.StatusTooManyRequests, tts.ErrRateLimited},
		{http.StatusInternalServerError, tts.ErrServerUnavailable},
		{http.StatusServiceUnavailable, tts.ErrServerUnavailable},
		{http.StatusGatewayTimeout, tts.ErrServerUnavailable},
		{http.StatusBadRequest, tts.ErrMalformedResponse},
	}

	for _, tc := range cases {
		client := newGemini(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"code":1,"message":"nope","status":"DENIED"}}`))
		})

		_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Content: "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Contains(t, err.Error(), "DENIED: nope")
	}
}

func TestGeminiClient_MalformedBodies(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`not json`,
		`{"candidates":[]}`,
		`{"candidates":[{"content":{"parts":[{"text":"no audio"}]}}]}`,
	}

	for _, body := range bodies {
		client := newGemini(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Content: "x"})
		assert.ErrorIs(t, err, tts.ErrMalformedResponse, body)
	}
}

func TestGeminiClient_RejectsEmptyContent(t *testing.T) {
	t.Parallel()

	client := newGemini(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{})
	require.ErrorIs(t, err, tts.ErrContentEmpty)
	assert.Equal(t, tts.FailureInvalidRequest, tts.KindOf(err))
}

func TestEmptyContentIsNotRetried(t *testing.T) {
	t.Parallel()

	noRequest := func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}

	providers := map[string]core.Synthesizer{
		"gemini": newGemini(t, noRequest),
		"cloud":  newCloud(t, noRequest, apiKey(t)),
	}

	for name, provider := range providers {
		sleeper := &recordingSleeper{}
		retrying := tts.NewRetryingSynthesizer(provider, tts.DefaultRetryPolicy(), newTestLogger(t),
			tts.WithSleeper(sleeper.sleep))

		_, err := retrying.Synthesize(context.Background(), core.SynthesisRequest{})
		require.ErrorIs(t, err, tts.ErrContentEmpty, name)
		require.ErrorIs(t, err, tts.ErrInvalidRequest, name)
		assert.NotErrorIs(t, err, tts.ErrRetriesExhausted, name)
		assert.Empty(t, sleeper.delays, name)
	}
}

func TestGeminiClient_NetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := tts.NewGeminiClient(url, "", time.Second, apiKey(t))
	require.NoError(t, err)

	_, err = client.Synthesize(context.Background(), core.SynthesisRequest{Content: "x"})
	assert.ErrorIs(t, err, tts.ErrNetwork)
}

func TestGeminiClient_HealthCheck(t *testing.T) {
	t.Parallel()

	client := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models/test-model", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"models/test-model"}`))
	})

	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestCloudClient_SynthesizeSSMLWithBearerToken(t *testing.T) {
	t.Parallel()

	pcm := []byte{5, 0, 6, 0}
	cred := tts.NewTokenCredential(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}))

	client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text:synthesize", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			Input struct {
				Text string `json:"text"`
				SSML string `json:"ssml"`
			} `json:"input"`
			Voice struct {
				LanguageCode string `json:"languageCode"`
				Name         string `json:"name"`
			} `json:"voice"`
			AudioConfig struct {
				AudioEncoding   string `json:"audioEncoding"`
				SampleRateHertz int    `json:"sampleRateHertz"`
			} `json:"audioConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `<speak><voice name="RILEY">Hi.</voice></speak>`, body.Input.SSML)
		assert.Empty(t, body.Input.Text)
		assert.Equal(t, "en-US-Neural2-F", body.Voice.Name)
		assert.Equal(t, "en-US", body.Voice.LanguageCode)
		assert.Equal(t, "LINEAR16", body.AudioConfig.AudioEncoding)
		assert.Equal(t, 24000, body.AudioConfig.SampleRateHertz)

		_, _ = w.Write([]byte(`{"audioContent":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`))
	}, cred)

	raw, err := client.Synthesize(context.Background(), core.SynthesisRequest{
		Content:    `<voice name="RILEY">Hi.</voice>`,
		Markup:     true,
		Voice:      core.VoiceConfig{VoiceID: "en-US-Neural2-F", LanguageCode: "en-US"},
		SampleRate: 24000,
	})
	require.NoError(t, err)
	assert.Equal(t, pcm, raw.Data)
	assert.Equal(t, core.EncodingLinear16, raw.Encoding)
	assert.Equal(t, 24000, raw.SampleRate)
}

func TestCloudClient_PlainTextInput(t *testing.T) {
	t.Parallel()

	client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello.", body["input"]["text"])
		assert.NotContains(t, body["input"], "ssml")

		_, _ = w.Write([]byte(`{"audioContent":"AAA="}`))
	}, apiKey(t))

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Content: "Hello."})
	require.NoError(t, err)
}

func TestCloudClient_EmptyAudioIsMalformed(t *testing.T) {
	t.Parallel()

	client := newCloud(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, apiKey(t))

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Content: "x"})
	assert.ErrorIs(t, err, tts.ErrMalformedResponse)
}

func TestCloudClient_HealthCheck(t *testing.T) {
	t.Parallel()

	client := newCloud(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/voices", r.URL.Path)
		assert.Equal(t, "en-US", r.URL.Query().Get("languageCode"))
		w.WriteHeader(http.StatusForbidden)
	}, apiKey(t))

	err := client.HealthCheck(context.Background())
	assert.ErrorIs(t, err, tts.ErrAuth)
}

func TestTokenCredential_TokenFailureIsAuth(t *testing.T) {
	t.Parallel()

	cred := tts.NewTokenCredential(failingTokenSource{})

	client := newCloud(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}, cred)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Content: "x"})
	assert.ErrorIs(t, err, tts.ErrAuth)
}

func TestAPIKeyCredential(t *testing.T) {
	t.Parallel()

	_, err := tts.NewAPIKeyCredential("   ")
	require.ErrorIs(t, err, tts.ErrAPIKeyEmpty)

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("secret\n"), 0o600))

	cred, err := tts.NewAPIKeyCredentialFromFile(path)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	require.NoError(t, cred.Apply(context.Background(), req))
	assert.Equal(t, "secret", req.Header.Get("x-goog-api-key"))

	_, err = tts.NewAPIKeyCredentialFromFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestNewProviders_RequireCredential(t *testing.T) {
	t.Parallel()

	_, err := tts.NewGeminiClient("", "", time.Second, nil)
	require.ErrorIs(t, err, tts.ErrNoCredential)

	_, err = tts.NewCloudClient("", time.Second, nil)
	require.ErrorIs(t, err, tts.ErrNoCredential)
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, assert.AnError
}
