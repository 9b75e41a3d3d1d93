package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"mime"
	"strconv"

	"github.com/book-expert/dialogue-tts/internal/core"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	mimeRateParam  = "rate"
	riffMagic      = "RIFF"
	waveMagic      = "WAVE"
	riffHeaderSize = 12
)

// WAVE fmt chunk layout.
const (
	wavFormatPCM        = 0x0001
	wavFormatExtensible = 0xFFFE
	fmtChunkID          = "fmt "
	chunkHeaderSize     = 8
	extensibleFmtSize   = 40
	subFormatOffset     = 24
)

var (
	// ErrMalformedAudio indicates a payload that cannot be decoded into PCM.
	ErrMalformedAudio = errors.New("malformed audio payload")
	// ErrEmptyAudio indicates a nil payload.
	ErrEmptyAudio = errors.New("audio payload is empty")
)

// ParseSampleRate extracts the rate parameter from a MIME type such as
// "audio/L16;rate=24000". It returns fallback when the rate is absent or not
// a positive integer.
func ParseSampleRate(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}

	rate, convErr := strconv.Atoi(params[mimeRateParam])
	if convErr != nil || rate <= 0 {
		return fallback
	}

	return rate
}

// Decode normalizes a provider payload into a mono 16-bit Buffer.
//
// The rate of bare PCM comes from raw.MIMEType, then raw.SampleRate, then
// DefaultSampleRate. WAV containers carry their own rate.
func Decode(raw *core.RawAudio) (*Buffer, error) {
	if raw == nil {
		return nil, ErrEmptyAudio
	}

	fallbackRate := raw.SampleRate
	if fallbackRate <= 0 {
		fallbackRate = DefaultSampleRate
	}

	sampleRate := ParseSampleRate(raw.MIMEType, fallbackRate)

	switch raw.Encoding {
	case core.EncodingBase64Linear16:
		pcm, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw.Data)))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %w", ErrMalformedAudio, err)
		}

		return decodePCM(pcm, sampleRate)
	case core.EncodingWAV:
		return DecodeWAV(raw.Data)
	case core.EncodingLinear16:
		if isWAV(raw.Data) {
			return DecodeWAV(raw.Data)
		}

		return decodePCM(raw.Data, sampleRate)
	default:
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrMalformedAudio, raw.Encoding)
	}
}

// DecodeWAV reads a RIFF/WAVE container and normalizes it to mono 16-bit at
// the container's own sample rate.
func DecodeWAV(data []byte) (*Buffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav container", ErrMalformedAudio)
	}

	if !isIntegerPCM(decoder.WavAudioFormat, data) {
		return nil, fmt.Errorf("%w: wav audio format %d is not integer pcm",
			ErrMalformedAudio, decoder.WavAudioFormat)
	}

	source := PCMFormat{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
		Channels:   int(decoder.NumChans),
	}

	validateErr := source.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAudio, validateErr)
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read wav samples: %w", ErrMalformedAudio, err)
	}

	samples := downmix(pcmBuffer, source.Channels)
	for index, sample := range samples {
		samples[index] = rescaleTo16(sample, source.BitDepth)
	}

	return NewBuffer(source.SampleRate, samplesToBytes(samples)), nil
}

func decodePCM(pcm []byte, sampleRate int) (*Buffer, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd pcm length %d", ErrMalformedAudio, len(pcm))
	}

	rateErr := validateSampleRate(sampleRate)
	if rateErr != nil {
		return nil, rateErr
	}

	data := make([]byte, len(pcm))
	copy(data, pcm)

	return NewBuffer(sampleRate, data), nil
}

// isIntegerPCM accepts plain PCM and WAVE_FORMAT_EXTENSIBLE with a PCM sub-format.
func isIntegerPCM(format uint16, data []byte) bool {
	switch format {
	case wavFormatPCM:
		return true
	case wavFormatExtensible:
		subFormat, ok := wavSubFormat(data)

		return ok && subFormat == wavFormatPCM
	default:
		return false
	}
}

// wavSubFormat returns the leading format code of the SubFormat GUID in an
// extensible fmt chunk.
func wavSubFormat(data []byte) (uint16, bool) {
	offset := riffHeaderSize

	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+chunkHeaderSize]))
		body := offset + chunkHeaderSize

		if chunkID == fmtChunkID {
			if size < extensibleFmtSize || body+extensibleFmtSize > len(data) {
				return 0, false
			}

			return binary.LittleEndian.Uint16(data[body+subFormatOffset:]), true
		}

		// Chunks are padded to an even size.
		offset = body + size + size%2
	}

	return 0, false
}

func isWAV(data []byte) bool {
	return len(data) >= riffHeaderSize &&
		string(data[0:4]) == riffMagic &&
		string(data[8:12]) == waveMagic
}

// downmix averages interleaved frames into one sample per frame.
func downmix(pcmBuffer *goaudio.IntBuffer, channels int) []int {
	if channels == 1 {
		return pcmBuffer.Data
	}

	frames := len(pcmBuffer.Data) / channels
	mono := make([]int, frames)

	for frame := range mono {
		sum := 0
		for channel := range channels {
			sum += pcmBuffer.Data[frame*channels+channel]
		}

		mono[frame] = sum / channels
	}

	return mono
}

// rescaleTo16 maps a sample of the given source depth onto the signed 16-bit range.
// 8-bit WAV samples are unsigned.
func rescaleTo16(sample, bitDepth int) int {
	switch bitDepth {
	case bitDepth8:
		return (sample - 128) << 8
	case bitDepth24:
		return sample >> 8
	case bitDepth32:
		return sample >> 16
	default:
		return sample
	}
}
