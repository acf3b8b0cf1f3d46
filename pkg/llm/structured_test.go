package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONBareObject(t *testing.T) {
	raw, err := ExtractJSON(`{"satisfaction_score": 80, "feedback": "ok"}`)
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, float64(80), v["satisfaction_score"])
}

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Sure, here is the evaluation:\n```json\n{\"score\": 42}\n```\nLet me know if you need more."
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 42}`, string(raw))
}

func TestExtractJSONFencePreferredOverProseBraces(t *testing.T) {
	// The prose contains a balanced brace pair before the fence. The fenced
	// payload must still win.
	text := "Config shape is {key: value} style.\n```\n{\"real\": true}\n```"
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"real": true}`, string(raw))
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	text := `After careful analysis I found: {"issues": [{"file": "a.go"}]} which covers everything.`
	raw, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"issues": [{"file": "a.go"}]}`, string(raw))
}

func TestExtractJSONBareArray(t *testing.T) {
	raw, err := ExtractJSON(`[{"file": "a.go"}, {"file": "b.go"}]`)
	require.NoError(t, err)

	var v []map[string]any
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Len(t, v, 2)
}

func TestExtractJSONRepairsTrailingCommas(t *testing.T) {
	raw, err := ExtractJSON(`{"items": [1, 2, 3,], "done": true,}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": [1, 2, 3], "done": true}`, string(raw))
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	raw, err := ExtractJSON(`{"snippet": "if x { return }", "msg": "ok"}`)
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, "if x { return }", v["snippet"])
}

func TestExtractJSONEscapedQuotes(t *testing.T) {
	raw, err := ExtractJSON(`{"msg": "he said \"no {braces}\" twice"}`)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
}

func TestExtractJSONNoPayload(t *testing.T) {
	_, err := ExtractJSON("I could not produce any structured output, sorry.")
	require.Error(t, err)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindInvalidOutput, lerr.Kind)
	assert.Contains(t, lerr.Raw, "sorry")
}

func TestExtractJSONUnbalancedPayload(t *testing.T) {
	_, err := ExtractJSON(`{"truncated": [1, 2`)
	require.Error(t, err)

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindInvalidOutput, lerr.Kind)
}
