// Package timeline concatenates normalized audio buffers in script order.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/dialogue-tts/internal/tts/audio"
)

// ErrSampleRateMismatch is returned when a buffer does not share the timeline's format.
var ErrSampleRateMismatch = errors.New("buffer format does not match timeline")

// Segment records where one appended buffer sits in the output.
type Segment struct {
	Offset int
	Length int
	Label  string
}

// Timeline is an append-only sequence of buffers sharing one PCM format.
type Timeline struct {
	format   audio.PCMFormat
	data     []byte
	segments []Segment
}

// New returns an empty timeline at sampleRate, mono, 16-bit.
func New(sampleRate int) *Timeline {
	return &Timeline{format: audio.NormalizedFormat(sampleRate)}
}

// Append adds buf after everything appended so far. The buffer is rejected
// whole if its format differs from the timeline's.
func (t *Timeline) Append(buf *audio.Buffer, label string) error {
	if buf == nil {
		return nil
	}

	if buf.Format() != t.format {
		return fmt.Errorf("%w: got %d Hz/%d-bit/%dch, want %d Hz/%d-bit/%dch",
			ErrSampleRateMismatch,
			buf.SampleRate, buf.BitDepth, buf.Channels,
			t.format.SampleRate, t.format.BitDepth, t.format.Channels)
	}

	t.segments = append(t.segments, Segment{Offset: len(t.data), Length: len(buf.Data), Label: label})
	t.data = append(t.data, buf.Data...)

	return nil
}

// Buffer returns the assembled audio. The timeline must not be appended to
// after the buffer is handed off.
func (t *Timeline) Buffer() *audio.Buffer {
	return audio.NewBuffer(t.format.SampleRate, t.data)
}

// Len returns the assembled length in bytes.
func (t *Timeline) Len() int {
	return len(t.data)
}

// Duration returns the assembled playback length.
func (t *Timeline) Duration() time.Duration {
	return t.Buffer().Duration()
}

// Segments returns the appended segments in order.
func (t *Timeline) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)

	return out
}
