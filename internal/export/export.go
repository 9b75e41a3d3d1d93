// Package export writes the assembled timeline to an audio container file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/dialogue-tts/internal/tts/audio"
	"github.com/book-expert/dialogue-tts/internal/tts/ttsutils"
)

const (
	tempPatternSuffix = ".partial-*"
	outputFileMode    = 0o644
)

// ErrNoBuffer is returned when there is nothing to export.
var ErrNoBuffer = errors.New("no audio buffer to export")

// Export encodes buf in format and writes it to path, replacing any existing
// file. The file is written beside the destination and renamed into place, so
// a failed export leaves no partial output.
func Export(buf *audio.Buffer, path string, format audio.Format) (err error) {
	if buf == nil {
		return ErrNoBuffer
	}

	if format != audio.FormatWAV {
		return fmt.Errorf("%w: %s", audio.ErrUnsupportedFormat, format)
	}

	dir := filepath.Dir(path)

	dirErr := ttsutils.EnsureDir(dir)
	if dirErr != nil {
		return dirErr
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+tempPatternSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temporary output file: %w", err)
	}

	tempPath := tempFile.Name()
	closed := false

	defer func() {
		if !closed {
			_ = tempFile.Close()
		}

		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	writeErr := audio.WriteWAV(tempFile, buf)
	if writeErr != nil {
		return fmt.Errorf("failed to encode %s: %w", path, writeErr)
	}

	syncErr := tempFile.Sync()
	if syncErr != nil {
		return fmt.Errorf("failed to flush %s: %w", path, syncErr)
	}

	closed = true

	closeErr := tempFile.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", path, closeErr)
	}

	chmodErr := os.Chmod(tempPath, outputFileMode)
	if chmodErr != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, chmodErr)
	}

	renameErr := os.Rename(tempPath, path)
	if renameErr != nil {
		return fmt.Errorf("failed to move output into place at %s: %w", path, renameErr)
	}

	return nil
}
