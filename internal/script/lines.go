package script

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// speakerLinePattern matches "IDENTIFIER: remainder" with a non-empty remainder.
var speakerLinePattern = regexp.MustCompile(`^\s*([\p{L}\p{N}_]+)\s*:\s*(\S.*?)\s*$`)

// ParseLines turns "SPEAKER: text" lines into speech units. Lines that do not
// match are skipped.
func ParseLines(src []byte) []Unit {
	var units []Unit

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), len(src)+1)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		match := speakerLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		units = append(units, Unit{
			Kind:     KindSpeech,
			Position: len(units),
			Speaker:  match[1],
			Content:  match[2],
		})
	}

	return units
}
