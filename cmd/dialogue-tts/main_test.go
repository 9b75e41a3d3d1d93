package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/dialogue-tts/internal/config"
	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/pipeline"
	"github.com/book-expert/dialogue-tts/internal/tts/audio"
)

var errProviderDown = errors.New("provider down")

type fakeProvider struct {
	mu        sync.Mutex
	healthErr error
	requests  []core.SynthesisRequest
}

func (f *fakeProvider) Synthesize(_ context.Context, req core.SynthesisRequest) (*core.RawAudio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)

	return &core.RawAudio{Data: []byte{1, 0}, Encoding: core.EncodingLinear16, SampleRate: req.SampleRate}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error {
	return f.healthErr
}

func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`
[paths]
base_logs_dir = %q

[voices]
default = "Narrator"

[[voices.cast]]
speaker = "Narrator"
voice_id = "Charon"
language_code = "en-US"

[[voices.cast]]
speaker = "Riley"
voice_id = "Kore"
language_code = "en-US"
`, dir)

	path := filepath.Join(dir, "dialogue.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func execute(t *testing.T, provider *fakeProvider, args ...string) (string, error) {
	t.Helper()

	a := &app{
		newProvider: func(context.Context, *config.Config) (pipeline.Provider, error) {
			return provider, nil
		},
	}

	var out bytes.Buffer

	rootCmd := newRootCmd(a)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestRender_WritesWAV(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "episode.txt")
	outPath := filepath.Join(dir, "out", "episode.wav")

	require.NoError(t, os.WriteFile(scriptPath, []byte("RILEY: Hello\nNARRATOR: Later.\n"), 0o600))

	provider := &fakeProvider{}

	output, err := execute(t, provider, "render", "--config", configPath, "--script", scriptPath, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, output, "2 lines synthesized")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	buf, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1, 0}, buf.Data)

	require.Len(t, provider.requests, 2)
	assert.Equal(t, "Kore", provider.requests[0].Voice.VoiceID)
	assert.Equal(t, "Charon", provider.requests[1].Voice.VoiceID)
}

func TestRender_ReportsSkippedEffects(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "episode.xml")
	outPath := filepath.Join(dir, "episode.wav")

	require.NoError(t, os.WriteFile(scriptPath,
		[]byte(`<speak><voice name="Riley">Hi.</voice><audio src="thunder"/></speak>`), 0o600))

	output, err := execute(t, &fakeProvider{}, "render", "-c", configPath, "-s", scriptPath, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, output, "1 skipped")
	assert.Contains(t, output, `"thunder"`)
	assert.FileExists(t, outPath)
}

func TestRender_UnsupportedOutputSkipsSynthesis(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "episode.txt")
	outPath := filepath.Join(dir, "episode.mp3")

	require.NoError(t, os.WriteFile(scriptPath, []byte("RILEY: Hello\n"), 0o600))

	provider := &fakeProvider{}

	_, err := execute(t, provider, "render", "-c", configPath, "-s", scriptPath, "-o", outPath)
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Empty(t, provider.requests)
	assert.NoFileExists(t, outPath)
}

func TestRender_FlushesMetricsToRunLog(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "episode.txt")

	require.NoError(t, os.WriteFile(scriptPath, []byte("RILEY: Hello\n"), 0o600))

	_, err := execute(t, &fakeProvider{}, "render", "-c", configPath, "-s", scriptPath,
		"-o", filepath.Join(dir, "episode.wav"))
	require.NoError(t, err)

	logs, err := filepath.Glob(filepath.Join(filepath.Dir(configPath), cliName+"*"))
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	var written strings.Builder

	for _, path := range logs {
		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		written.Write(data)
	}

	assert.Contains(t, written.String(), "dialogue_tts.runs{status=ok} 1")
}

func TestRender_RequiresFlags(t *testing.T) {
	t.Parallel()

	_, err := execute(t, &fakeProvider{}, "render", "--config", writeConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRender_MissingScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := execute(t, &fakeProvider{}, "render", "--config", writeConfig(t),
		"--script", filepath.Join(dir, "missing.txt"), "--out", filepath.Join(dir, "out.wav"))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, "out.wav"))
}

func TestVoices_ListsCast(t *testing.T) {
	t.Parallel()

	output, err := execute(t, &fakeProvider{}, "voices", "--config", writeConfig(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Narrator\tCharon\ten-US (default)", lines[0])
	assert.Equal(t, "Riley\tKore\ten-US", lines[1])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	output, err := execute(t, &fakeProvider{}, "health", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, output, "gemini provider is healthy")

	_, err = execute(t, &fakeProvider{healthErr: errProviderDown}, "health", "--config", writeConfig(t))
	require.ErrorIs(t, err, errProviderUnhealthy)
	require.ErrorIs(t, err, errProviderDown)
}

func TestLoadConfig_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dialogue.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := execute(t, &fakeProvider{}, "voices", "--config", path)
	require.ErrorIs(t, err, config.ErrUnknownConfigFormat)
}
