package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const tempWAVPattern = "dialogue-tts-*.wav"

// WriteWAV encodes buf as a PCM WAV container to w.
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	formatErr := buf.Format().Validate()
	if formatErr != nil {
		return formatErr
	}

	encoder := wav.NewEncoder(w, buf.SampleRate, buf.BitDepth, buf.Channels, wavFormatPCM)

	writeErr := encoder.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buf.Channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           buf.Samples(),
		SourceBitDepth: buf.BitDepth,
	})
	if writeErr != nil {
		return fmt.Errorf("failed to write wav samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize wav header: %w", closeErr)
	}

	return nil
}

// EncodeWAV returns buf as WAV bytes. The encoder needs a seekable sink, so the
// container is assembled in a temp file that is removed before returning.
func EncodeWAV(buf *Buffer) (data []byte, err error) {
	tempFile, err := os.CreateTemp("", tempWAVPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp wav file: %w", err)
	}

	defer func() {
		closeErr := tempFile.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close temp wav file: %w", closeErr)
		}

		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil && err == nil {
			err = fmt.Errorf("failed to remove temp wav file: %w", removeErr)
		}
	}()

	writeErr := WriteWAV(tempFile, buf)
	if writeErr != nil {
		return nil, writeErr
	}

	_, seekErr := tempFile.Seek(0, io.SeekStart)
	if seekErr != nil {
		return nil, fmt.Errorf("failed to rewind temp wav file: %w", seekErr)
	}

	data, readErr := io.ReadAll(tempFile)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read temp wav file: %w", readErr)
	}

	return data, nil
}
