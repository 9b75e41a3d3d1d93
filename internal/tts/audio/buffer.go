package audio

import (
	"encoding/binary"
	"time"
)

const bytesPerSample = DefaultBitDepth / 8

// Buffer holds mono, signed 16-bit little-endian PCM samples.
type Buffer struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []byte
}

// NewBuffer returns a normalized buffer at sampleRate that owns data.
func NewBuffer(sampleRate int, data []byte) *Buffer {
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
		Data:       data,
	}
}

// Format returns the layout of the buffer.
func (b *Buffer) Format() PCMFormat {
	return PCMFormat{
		SampleRate: b.SampleRate,
		BitDepth:   b.BitDepth,
		Channels:   b.Channels,
	}
}

// Len returns the length of the sample data in bytes.
func (b *Buffer) Len() int {
	return len(b.Data)
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	bytesPerSecond := b.Format().BytesPerSecond()
	if bytesPerSecond == 0 {
		return 0
	}

	return time.Duration(len(b.Data)) * time.Second / time.Duration(bytesPerSecond)
}

// Samples decodes the buffer into one int per 16-bit sample.
func (b *Buffer) Samples() []int {
	samples := make([]int, len(b.Data)/bytesPerSample)
	for index := range samples {
		samples[index] = int(int16(binary.LittleEndian.Uint16(b.Data[index*bytesPerSample:])))
	}

	return samples
}

// samplesToBytes packs 16-bit sample values as little-endian bytes.
func samplesToBytes(samples []int) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for index, sample := range samples {
		binary.LittleEndian.PutUint16(data[index*bytesPerSample:], uint16(int16(clamp16(sample))))
	}

	return data
}

func clamp16(sample int) int {
	const (
		minInt16 = -1 << 15
		maxInt16 = 1<<15 - 1
	)

	switch {
	case sample < minInt16:
		return minInt16
	case sample > maxInt16:
		return maxInt16
	default:
		return sample
	}
}
