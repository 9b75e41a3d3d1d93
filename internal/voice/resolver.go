// Package voice maps script speakers to provider voices.
package voice

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/book-expert/dialogue-tts/internal/core"
)

var (
	// ErrDefaultSpeakerEmpty indicates that no default speaker was named.
	ErrDefaultSpeakerEmpty = errors.New("default speaker cannot be empty")
	// ErrDefaultSpeakerUnknown indicates that the default speaker has no voice in the table.
	ErrDefaultSpeakerUnknown = errors.New("default speaker is not in the voice table")
	// ErrVoiceIDEmpty indicates a table entry without a provider voice id.
	ErrVoiceIDEmpty = errors.New("voice id cannot be empty")
	// ErrSpeakerEmpty indicates a table entry without a speaker name.
	ErrSpeakerEmpty = errors.New("speaker name cannot be empty")
	// ErrSpeakerCollision indicates two speakers whose names differ only in case.
	ErrSpeakerCollision = errors.New("speaker names differ only in case")
)

// Resolver is an immutable speaker to voice lookup table with a default entry.
type Resolver struct {
	exact          map[string]core.VoiceConfig
	folded         map[string]core.VoiceConfig
	defaultSpeaker string
	defaultVoice   core.VoiceConfig
}

// NewResolver validates table and returns a Resolver. The table is copied, so
// later changes to the caller's map have no effect.
func NewResolver(table map[string]core.VoiceConfig, defaultSpeaker string) (*Resolver, error) {
	if defaultSpeaker == "" {
		return nil, ErrDefaultSpeakerEmpty
	}

	exact := make(map[string]core.VoiceConfig, len(table))
	folded := make(map[string]core.VoiceConfig, len(table))

	for speaker, voiceCfg := range table {
		if speaker == "" {
			return nil, ErrSpeakerEmpty
		}

		if voiceCfg.VoiceID == "" {
			return nil, fmt.Errorf("%w: speaker '%s'", ErrVoiceIDEmpty, speaker)
		}

		key := strings.ToLower(speaker)
		if _, taken := folded[key]; taken {
			return nil, fmt.Errorf("%w: '%s'", ErrSpeakerCollision, speaker)
		}

		exact[speaker] = voiceCfg
		folded[key] = voiceCfg
	}

	defaultVoice, ok := exact[defaultSpeaker]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrDefaultSpeakerUnknown, defaultSpeaker)
	}

	return &Resolver{
		exact:          exact,
		folded:         folded,
		defaultSpeaker: defaultSpeaker,
		defaultVoice:   defaultVoice,
	}, nil
}

// Resolve returns the voice for speaker. Exact names win over case-insensitive
// matches; unknown speakers get the default voice.
func (r *Resolver) Resolve(speaker string) core.VoiceConfig {
	voiceCfg, _ := r.Lookup(speaker)

	return voiceCfg
}

// Lookup is Resolve that also reports whether speaker was found in the table.
func (r *Resolver) Lookup(speaker string) (core.VoiceConfig, bool) {
	if voiceCfg, ok := r.exact[speaker]; ok {
		return voiceCfg, true
	}

	if voiceCfg, ok := r.folded[strings.ToLower(speaker)]; ok {
		return voiceCfg, true
	}

	return r.defaultVoice, false
}

// Default returns the default speaker name and its voice.
func (r *Resolver) Default() (string, core.VoiceConfig) {
	return r.defaultSpeaker, r.defaultVoice
}

// Speakers returns the configured speaker names in sorted order.
func (r *Resolver) Speakers() []string {
	speakers := make([]string, 0, len(r.exact))
	for speaker := range r.exact {
		speakers = append(speakers, speaker)
	}

	sort.Strings(speakers)

	return speakers
}
