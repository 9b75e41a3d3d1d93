package script

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

var (
	errNoRootElement   = errors.New("document has no root element")
	errJunkAfterRoot   = errors.New("junk after document element")
	errTextOutsideRoot = errors.New("text outside the document element")
)

// openVoice tracks a <voice> element whose end tag has not been read yet.
type openVoice struct {
	unitIndex int
	start     int64
	depth     int
}

// ParseMarkup walks the markup document depth-first and returns its units in
// document order. Each voice unit keeps the element exactly as written in src,
// wrapper tags included, so control tags reach the provider untouched.
//
// A malformed document fails with ErrParse and no units.
func ParseMarkup(src []byte) ([]Unit, error) {
	decoder := xml.NewDecoder(bytes.NewReader(src))

	var (
		units      []Unit
		open       []openVoice
		depth      int
		sawRoot    bool
		rootClosed bool
	)

	for {
		tokenStart := decoder.InputOffset()

		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		switch element := token.(type) {
		case xml.StartElement:
			if rootClosed {
				return nil, fmt.Errorf("%w: %w: <%s> at offset %d",
					ErrParse, errJunkAfterRoot, element.Name.Local, tokenStart)
			}

			sawRoot = true
			depth++

			switch element.Name.Local {
			case elementVoice:
				speaker := attrValue(element, attrVoiceName)
				if speaker == "" {
					speaker = DefaultSpeaker
				}

				units = append(units, Unit{
					Kind:     KindSpeech,
					Position: len(units),
					Speaker:  speaker,
					Markup:   true,
				})
				open = append(open, openVoice{
					unitIndex: len(units) - 1,
					start:     tokenStart,
					depth:     depth,
				})
			case elementAudio:
				key := attrValue(element, attrAudioSrc)
				if key != "" {
					units = append(units, Unit{
						Kind:      KindEffect,
						Position:  len(units),
						EffectKey: key,
					})
				}
			}
		case xml.EndElement:
			if len(open) > 0 && open[len(open)-1].depth == depth {
				current := open[len(open)-1]
				open = open[:len(open)-1]
				units[current.unitIndex].Content = string(src[current.start:decoder.InputOffset()])
			}

			depth--
			if depth == 0 {
				rootClosed = true
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(element)) > 0 {
				if rootClosed {
					return nil, fmt.Errorf("%w: %w at offset %d", ErrParse, errJunkAfterRoot, tokenStart)
				}

				return nil, fmt.Errorf("%w: %w at offset %d", ErrParse, errTextOutsideRoot, tokenStart)
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: %w", ErrParse, errNoRootElement)
	}

	return units, nil
}

func attrValue(element xml.StartElement, name string) string {
	for _, attr := range element.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}

	return ""
}
