// Package effects maps effect keys from a script to audio clips.
package effects

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/dialogue-tts/internal/core"
	"github.com/book-expert/dialogue-tts/internal/tts/audio"
	"github.com/book-expert/dialogue-tts/internal/tts/ttsutils"
)

var (
	// ErrUnknownEffect is returned for a key that is not in the registry.
	ErrUnknownEffect = errors.New("effect key not registered")
	// ErrClipUnavailable is returned when a registered clip cannot be loaded.
	ErrClipUnavailable = errors.New("effect clip unavailable")
	// ErrUnsupportedClip is returned for a clip that is not a WAV file.
	ErrUnsupportedClip = errors.New("effect clip must be a wav file")
	// ErrEmptyKey is returned when registering a blank key or location.
	ErrEmptyKey = errors.New("effect key and location cannot be empty")
)

// ClipSource loads the clip stored at a location.
type ClipSource interface {
	Load(ctx context.Context, location string) (*audio.Buffer, error)
}

// Registry is an immutable key to clip-location table backed by one source.
type Registry struct {
	clips  map[string]string
	source ClipSource
}

// NewRegistry copies clips and validates each entry.
func NewRegistry(clips map[string]string, source ClipSource) (*Registry, error) {
	table := make(map[string]string, len(clips))

	for key, location := range clips {
		key = strings.TrimSpace(key)
		location = strings.TrimSpace(location)

		if key == "" || location == "" {
			return nil, fmt.Errorf("%w: %q=%q", ErrEmptyKey, key, location)
		}

		table[key] = location
	}

	return &Registry{clips: table, source: source}, nil
}

// Lookup returns the location registered for key.
func (r *Registry) Lookup(key string) (string, bool) {
	if r == nil {
		return "", false
	}

	location, ok := r.clips[key]

	return location, ok
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}

	keys := make([]string, 0, len(r.clips))
	for key := range r.clips {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Load returns the clip for key. Unknown keys fail with ErrUnknownEffect and
// load failures with ErrClipUnavailable.
func (r *Registry) Load(ctx context.Context, key string) (*audio.Buffer, error) {
	location, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, key)
	}

	clip, err := r.source.Load(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrClipUnavailable, key, err)
	}

	return clip, nil
}

// FileSource reads WAV clips from the local filesystem. Relative locations
// are resolved against Dir.
type FileSource struct {
	Dir string
}

// Load reads and decodes the WAV file at location.
func (s FileSource) Load(_ context.Context, location string) (*audio.Buffer, error) {
	locationErr := checkClipLocation(location)
	if locationErr != nil {
		return nil, locationErr
	}

	path := location
	if !filepath.IsAbs(path) && s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip %s: %w", path, err)
	}

	return audio.DecodeWAV(data)
}

// StoreSource reads WAV clips from an object store, using the location as the key.
type StoreSource struct {
	Store core.ObjectStore
}

// Load downloads and decodes the clip object.
func (s StoreSource) Load(ctx context.Context, location string) (*audio.Buffer, error) {
	locationErr := checkClipLocation(location)
	if locationErr != nil {
		return nil, locationErr
	}

	data, err := s.Store.Download(ctx, location)
	if err != nil {
		return nil, err
	}

	return audio.DecodeWAV(data)
}

// checkClipLocation accepts .wav locations only. Other audio extensions get a
// conversion hint.
func checkClipLocation(location string) error {
	switch {
	case ttsutils.IsWAVFile(location):
		return nil
	case ttsutils.IsValidAudioFile(location):
		return fmt.Errorf("%w: %s is %s audio, convert it to wav",
			ErrUnsupportedClip, location, strings.TrimPrefix(strings.ToLower(filepath.Ext(location)), "."))
	default:
		return fmt.Errorf("%w: %s is not an audio file", ErrUnsupportedClip, location)
	}
}
