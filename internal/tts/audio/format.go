// Package audio provides the normalized PCM buffer used across the pipeline,
// format validation, and decoding/encoding between provider payloads, WAV
// containers, and that buffer.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline-wide PCM layout. Providers are asked for this rate, so every buffer
// built by the pipeline agrees on it.
const (
	DefaultSampleRate = 24000
	DefaultBitDepth   = 16
	DefaultChannels   = 1
)

// Supported source bit depths for WAV containers.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32
)

// Validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

// Error message formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
)

var (
	// ErrInvalidFormat indicates PCM layout parameters out of range.
	ErrInvalidFormat = errors.New("invalid pcm format")
	// ErrUnsupportedFormat indicates a container format that cannot be written.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Format represents an output container format.
type Format string

// FormatWAV is the only container the exporter writes.
const FormatWAV Format = "wav"

// ParseFormat maps a file extension or format name to a Format.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimPrefix(name, ".")))
	if format != FormatWAV {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	return format, nil
}

// PCMFormat describes the layout of interleaved PCM samples.
type PCMFormat struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// NormalizedFormat returns the mono 16-bit layout at sampleRate.
func NormalizedFormat(sampleRate int) PCMFormat {
	return PCMFormat{
		SampleRate: sampleRate,
		BitDepth:   DefaultBitDepth,
		Channels:   DefaultChannels,
	}
}

// Validate checks that the layout parameters are within reasonable bounds.
func (f PCMFormat) Validate() error {
	sampleRateErr := validateSampleRate(f.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	bitDepthErr := validateBitDepth(f.BitDepth)
	if bitDepthErr != nil {
		return bitDepthErr
	}

	channelsErr := validateChannels(f.Channels)
	if channelsErr != nil {
		return channelsErr
	}

	return nil
}

// BytesPerSecond returns the data rate of the layout.
func (f PCMFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate, sampleRate)
	}

	return nil
}

func validateBitDepth(bitDepth int) error {
	switch bitDepth {
	case bitDepth8, bitDepth16, bitDepth24, bitDepth32:
		return nil
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat, bitDepth)
	}
}

func validateChannels(channels int) error {
	if channels <= 0 || channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels, channels)
	}

	return nil
}
