package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableforge/fableforge/runtime/run"
)

func TestFrameString(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
		want  string
	}{
		{
			name:  "event with id",
			frame: Frame{ID: 3, Event: "stage", Data: `{"x":1}`},
			want:  "id: 3\nevent: stage\ndata: {\"x\":1}\n\n",
		},
		{
			name:  "hello has no id line",
			frame: Frame{Event: "hello", Data: `{"run_id":"r1"}`},
			want:  "event: hello\ndata: {\"run_id\":\"r1\"}\n\n",
		},
		{
			name:  "multi-line data is split",
			frame: Frame{ID: 1, Event: "raw", Data: "line1\nline2"},
			want:  "id: 1\nevent: raw\ndata: line1\ndata: line2\n\n",
		},
		{
			name:  "ping comment",
			frame: Ping(),
			want:  ": ping\n\n",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.frame.String())
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ev := run.Event{
		RunID:   "r1",
		Seq:     7,
		Type:    "stage",
		Ts:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload: map[string]any{"stage": "building"},
	}
	f, err := Encode(ev)
	require.NoError(t, err)
	assert.Equal(t, 7, f.ID)
	assert.Equal(t, "stage", f.Event)

	decoded, err := Decode(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
	assert.Contains(t, decoded.Data, `"run_id":"r1"`)
}

func TestDecodePing(t *testing.T) {
	f, err := Decode(": ping\n\n")
	require.NoError(t, err)
	assert.Equal(t, "ping", f.Comment)
	assert.Empty(t, f.Event)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("garbage line\n\n")
	require.Error(t, err)
}
