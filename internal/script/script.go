// Package script parses dialogue scripts into an ordered list of speech and effect units.
//
// Two input shapes are accepted: SSML-like markup, where <voice name="..."> elements carry
// speech and <audio src="..."/> elements reference sound effects, and plain text made of
// "SPEAKER: line" entries. Either way the result is a flat slice in document order; the
// pipeline never needs to look back into the document tree.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// DefaultSpeaker is assigned to voice elements without a name attribute.
const DefaultSpeaker = "Narrator"

// Markup element and attribute names.
const (
	elementVoice   = "voice"
	elementAudio   = "audio"
	attrVoiceName  = "name"
	attrAudioSrc   = "src"
	combinedFormat = "%s: %s"
)

// ErrParse is returned for scripts that cannot be parsed at all.
var ErrParse = errors.New("script parse error")

// Kind distinguishes speech from effect units.
type Kind int

const (
	// KindSpeech is a unit to be synthesized.
	KindSpeech Kind = iota
	// KindEffect is a reference to a local sound-effect clip.
	KindEffect
)

// String returns the unit kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindSpeech:
		return "speech"
	case KindEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// Unit is one entry of a parsed script.
type Unit struct {
	Kind     Kind
	Position int
	// Speaker and Content are set for speech units.
	Speaker string
	Content string
	// Markup is true when Content is a serialized markup element.
	Markup bool
	// Speakers lists every speaker folded into a combined unit, in order of
	// first appearance. Empty for ordinary units.
	Speakers []string
	// EffectKey is set for effect units.
	EffectKey string
}

// Parse detects the script shape and parses it. Input whose first non-space
// byte is '<' is treated as markup.
func Parse(src []byte) ([]Unit, error) {
	trimmed := bytes.TrimSpace(src)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return ParseMarkup(src)
	}

	return ParseLines(src), nil
}

// Combine folds every speech unit into one multi-speaker unit whose content is
// "SPEAKER: text" lines. Effect units are not carried over. Combine returns nil
// when units holds no speech.
func Combine(units []Unit) []Unit {
	var (
		lines    []string
		speakers []string
	)

	seen := make(map[string]struct{})

	for _, unit := range units {
		if unit.Kind != KindSpeech {
			continue
		}

		lines = append(lines, fmt.Sprintf(combinedFormat, unit.Speaker, unit.Content))

		if _, ok := seen[unit.Speaker]; !ok {
			seen[unit.Speaker] = struct{}{}
			speakers = append(speakers, unit.Speaker)
		}
	}

	if len(lines) == 0 {
		return nil
	}

	return []Unit{{
		Kind:     KindSpeech,
		Position: 0,
		Content:  strings.Join(lines, "\n"),
		Speakers: speakers,
	}}
}

// CountKinds returns the number of speech and effect units.
func CountKinds(units []Unit) (speech, effect int) {
	for _, unit := range units {
		switch unit.Kind {
		case KindSpeech:
			speech++
		case KindEffect:
			effect++
		}
	}

	return speech, effect
}
