// Package script_test tests script parsing.
package script_test

import (
	"testing"

	"github.com/book-expert/dialogue-tts/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const episodeMarkup = `<?xml version="1.0"?>
<speak>
  <voice name="Riley">They want me to lead the drones to <emphasis>Riverside</emphasis>!</voice>
  <audio src="footsteps_drip.wav"/>
  <p>
    <voice name="Maya">That was always the backup plan.<break time="300ms"/></voice>
  </p>
  <voice>Night falls over the settlement.</voice>
</speak>`

func TestParseMarkup_DocumentOrder(t *testing.T) {
	t.Parallel()

	units, err := script.ParseMarkup([]byte(episodeMarkup))
	require.NoError(t, err)
	require.Len(t, units, 4)

	assert.Equal(t, script.KindSpeech, units[0].Kind)
	assert.Equal(t, "Riley", units[0].Speaker)
	assert.Equal(t,
		`<voice name="Riley">They want me to lead the drones to <emphasis>Riverside</emphasis>!</voice>`,
		units[0].Content)
	assert.True(t, units[0].Markup)

	assert.Equal(t, script.KindEffect, units[1].Kind)
	assert.Equal(t, "footsteps_drip.wav", units[1].EffectKey)

	assert.Equal(t, "Maya", units[2].Speaker)
	assert.Equal(t, `<voice name="Maya">That was always the backup plan.<break time="300ms"/></voice>`, units[2].Content)

	assert.Equal(t, script.DefaultSpeaker, units[3].Speaker)

	for index, unit := range units {
		assert.Equal(t, index, unit.Position)
	}
}

func TestParseMarkup_SelfClosingVoice(t *testing.T) {
	t.Parallel()

	units, err := script.ParseMarkup([]byte(`<speak><voice name="Tommy"/></speak>`))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, `<voice name="Tommy"/>`, units[0].Content)
}

func TestParseMarkup_AudioWithoutSourceIgnored(t *testing.T) {
	t.Parallel()

	units, err := script.ParseMarkup([]byte(`<speak><audio/><voice name="A">x</voice></speak>`))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, 0, units[0].Position)
}

func TestParseMarkup_AllowsPrologAndTrailingComments(t *testing.T) {
	t.Parallel()

	input := "<?xml version=\"1.0\"?>\n<!-- cast -->\n<speak><voice name=\"A\">x</voice></speak>\n<!-- end -->\n"

	units, err := script.ParseMarkup([]byte(input))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "A", units[0].Speaker)
}

func TestParseMarkup_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "unclosed element", input: `<speak><voice name="Riley">hello</speak>`},
		{name: "truncated", input: `<speak><voice name="Riley">hello`},
		{name: "no root", input: `   `},
		{name: "two root elements", input: `<voice name="A">one</voice><voice name="B">two</voice>`},
		{name: "junk after root", input: `<speak><voice name="A">x</voice></speak> trailing junk <voice name="C">x</voice>`},
		{name: "text after root", input: `<speak><voice name="A">x</voice></speak> trailing junk`},
		{name: "text before root", input: `leading <speak><voice name="A">x</voice></speak>`},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			units, err := script.ParseMarkup([]byte(testCase.input))
			require.ErrorIs(t, err, script.ErrParse)
			assert.Nil(t, units)
		})
	}
}

func TestParseLines(t *testing.T) {
	t.Parallel()

	input := "RILEY: Hello\n\nstage direction without speaker\nMAYA:   Hi there  \r\nTOMMY:\n"

	units := script.ParseLines([]byte(input))
	require.Len(t, units, 2)

	assert.Equal(t, "RILEY", units[0].Speaker)
	assert.Equal(t, "Hello", units[0].Content)
	assert.False(t, units[0].Markup)
	assert.Equal(t, "MAYA", units[1].Speaker)
	assert.Equal(t, "Hi there", units[1].Content)
	assert.Equal(t, 1, units[1].Position)
}

func TestParse_DetectsShape(t *testing.T) {
	t.Parallel()

	markupUnits, err := script.Parse([]byte("\n  <speak><voice name=\"A\">x</voice></speak>"))
	require.NoError(t, err)
	require.Len(t, markupUnits, 1)
	assert.True(t, markupUnits[0].Markup)

	lineUnits, err := script.Parse([]byte("A: x"))
	require.NoError(t, err)
	require.Len(t, lineUnits, 1)
	assert.False(t, lineUnits[0].Markup)
}

func TestCombine(t *testing.T) {
	t.Parallel()

	units := script.ParseLines([]byte("RILEY: One\nMAYA: Two\nRILEY: Three"))
	units = append(units, script.Unit{Kind: script.KindEffect, EffectKey: "x.wav"})

	combined := script.Combine(units)
	require.Len(t, combined, 1)
	assert.Equal(t, "RILEY: One\nMAYA: Two\nRILEY: Three", combined[0].Content)
	assert.Equal(t, []string{"RILEY", "MAYA"}, combined[0].Speakers)

	assert.Nil(t, script.Combine(nil))
}

func TestCountKinds(t *testing.T) {
	t.Parallel()

	units, err := script.ParseMarkup([]byte(episodeMarkup))
	require.NoError(t, err)

	speech, effect := script.CountKinds(units)
	assert.Equal(t, 3, speech)
	assert.Equal(t, 1, effect)
}
