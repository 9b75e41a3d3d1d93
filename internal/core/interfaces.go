// Package core defines the shared value types and interfaces for the dialogue TTS pipeline.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// VoiceConfig identifies a provider voice and the locale it speaks.
type VoiceConfig struct {
	VoiceID      string
	LanguageCode string
}

// AudioEncoding describes how a provider framed the audio bytes it returned.
type AudioEncoding int

const (
	// EncodingLinear16 is bare little-endian signed 16-bit PCM. A payload that
	// starts with a RIFF/WAVE header is treated as a WAV container instead.
	EncodingLinear16 AudioEncoding = iota
	// EncodingBase64Linear16 is base64 text wrapping bare 16-bit PCM.
	EncodingBase64Linear16
	// EncodingWAV is a RIFF/WAVE container.
	EncodingWAV
)

// SynthesisRequest is one call to a remote text-to-speech provider.
type SynthesisRequest struct {
	// Content is plain text or a markup fragment, see Markup.
	Content string
	// Markup reports whether Content carries speech-synthesis control tags.
	Markup bool
	Voice  VoiceConfig
	// SampleRate is the desired output rate in Hz.
	SampleRate int
	// SpeakerVoices is set only for combined multi-speaker requests.
	SpeakerVoices map[string]VoiceConfig
}

// RawAudio is the undecoded provider payload for a single request.
type RawAudio struct {
	Data     []byte
	Encoding AudioEncoding
	// MIMEType is the provider's declared type, e.g. "audio/L16;rate=24000".
	MIMEType string
	// SampleRate is a hint used when MIMEType carries no rate.
	SampleRate int
}

// Synthesizer turns one request into raw audio or a typed failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*RawAudio, error)
}

// ScriptRenderer renders a complete script into an encoded WAV payload.
type ScriptRenderer interface {
	RenderWAV(ctx context.Context, script []byte) ([]byte, error)
}
