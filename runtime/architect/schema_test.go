package architect

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"mode":"done"}`, want: `{"mode":"done"}`},
		{name: "surrounding prose", in: "Here you go:\n{\"mode\":\"done\"}\nHope that helps!", want: `{"mode":"done"}`},
		{name: "markdown fence", in: "```json\n{\"mode\":\"done\"}\n```", want: `{"mode":"done"}`},
		{name: "no braces", in: "not json at all", want: "not json at all"},
		{name: "whitespace trimmed", in: "  {\"a\":1}  ", want: `{"a":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, extractJSON(c.in))
		})
	}
}

func validateJSON(t *testing.T, text string) error {
	t.Helper()
	var value any
	require.NoError(t, json.Unmarshal([]byte(text), &value))
	return compiledSchema.Validate(value)
}

func TestResponseSchemaAcceptsValidOutput(t *testing.T) {
	assert.NoError(t, validateJSON(t, doneJSON("")))
	assert.NoError(t, validateJSON(t, doneJSON("A world-scale conflict.")))
	assert.NoError(t, validateJSON(t, questionsJSON()))

	// Null conflict is explicitly allowed.
	skeleton := map[string]any{
		"game_prompt":     strings.Repeat("p", 250),
		"world_bible":     strings.Repeat("b", 2500),
		"global_conflict": nil,
	}
	data, _ := json.Marshal(map[string]any{"mode": "done", "skeleton": skeleton})
	assert.NoError(t, validateJSON(t, string(data)))
}

func TestResponseSchemaRejectsInvalidOutput(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{name: "missing mode", in: `{"skeleton":{}}`},
		{name: "unknown mode", in: `{"mode":"maybe","questions":[]}`},
		{name: "empty question list", in: `{"mode":"questions","questions":[]}`},
		{name: "question without id", in: `{"mode":"questions","questions":[{"question":"What?"}]}`},
		{name: "done without skeleton", in: `{"mode":"done"}`},
		{name: "extra field", in: `{"mode":"done","skeleton":{"game_prompt":"x","world_bible":"y","extra":1}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Error(t, validateJSON(t, c.in))
		})
	}

	t.Run("short game prompt", func(t *testing.T) {
		skeleton := map[string]any{
			"game_prompt": "too short",
			"world_bible": strings.Repeat("b", 2500),
		}
		data, _ := json.Marshal(map[string]any{"mode": "done", "skeleton": skeleton})
		assert.Error(t, validateJSON(t, string(data)))
	})
	t.Run("five questions", func(t *testing.T) {
		questions := make([]map[string]any, 5)
		for i := range questions {
			questions[i] = map[string]any{"id": "q", "question": "What?"}
		}
		data, _ := json.Marshal(map[string]any{"mode": "questions", "questions": questions})
		assert.Error(t, validateJSON(t, string(data)))
	})
}
