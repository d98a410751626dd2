package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/architect"
	"github.com/fableforge/fableforge/runtime/run"
)

type stubGenerator struct {
	response string
}

func (s *stubGenerator) Complete(context.Context, string, string) (string, error) {
	return s.response, nil
}

func newTestServer(t *testing.T, gen architect.Generator) (*httptest.Server, *run.Registry) {
	t.Helper()
	ctx := log.Context(context.Background())
	reg := run.NewRegistry(ctx)
	arch := architect.New(reg, gen)
	srv := NewServer(ctx, ":0", reg, arch, time.Minute)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRunLifecycleEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{})

	resp := postJSON(t, ts.URL+"/v1/runs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[RunCreated](t, resp)
	require.NotEmpty(t, created.RunID)

	resp, err := http.Get(ts.URL + "/v1/runs/" + created.RunID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[run.Status](t, resp)
	assert.Equal(t, created.RunID, st.RunID)
	assert.Equal(t, run.StateRunning, st.State)

	resp = postJSON(t, ts.URL+"/v1/runs/"+created.RunID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[run.Status](t, resp)
	assert.Equal(t, run.StateCancelled, st.State)

	// Cancel again: idempotent.
	resp = postJSON(t, ts.URL+"/v1/runs/"+created.RunID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestGetUnknownRunReturns404(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{})

	resp, err := http.Get(ts.URL + "/v1/runs/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/runs/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestStartArchitectValidation(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{})

	// Malformed JSON.
	resp, err := http.Post(ts.URL+"/v1/world-architect/runs", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown field.
	resp, err = http.Post(ts.URL+"/v1/world-architect/runs", "application/json",
		strings.NewReader(`{"world_description":"x","plot_type":"adventure","bogus":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Fails the field bounds.
	resp = postJSON(t, ts.URL+"/v1/world-architect/runs", architect.StartRequest{
		WorldDescription: "",
		PlotType:         architect.PlotAdventure,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/world-architect/runs", architect.StartRequest{
		WorldDescription: "A canyon city strung between two cliff faces.",
		PlotType:         "noir",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestStartArchitectStreamsWorkflowEvents(t *testing.T) {
	skeleton := map[string]any{
		"game_prompt": strings.Repeat("p", 250),
		"world_bible": strings.Repeat("b", 2500),
	}
	doneOut, err := json.Marshal(map[string]any{"mode": "done", "skeleton": skeleton})
	require.NoError(t, err)
	ts, reg := newTestServer(t, &stubGenerator{response: string(doneOut)})

	resp := postJSON(t, ts.URL+"/v1/world-architect/runs", architect.StartRequest{
		WorldDescription: "A canyon city strung between two cliff faces.",
		PlotType:         architect.PlotAdventure,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[RunCreated](t, resp)

	// The workflow runs detached; wait for its terminal event via a direct
	// subscription rather than sleeping.
	sub := reg.Subscribe(context.Background(), created.RunID)
	defer sub.Close()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type == architect.EventDone {
				return
			}
			require.NotEqual(t, architect.EventError, ev.Type)
		case <-deadline:
			t.Fatal("workflow did not publish done")
		}
	}
}

func TestSubmitAnswersEndpoint(t *testing.T) {
	ts, reg := newTestServer(t, &stubGenerator{})
	id := reg.Create(context.Background())

	resp := postJSON(t, ts.URL+"/v1/world-architect/runs/"+id+"/answers", AnswersRequest{
		Answers: map[string]architect.Answer{"q1": {SelectedOptionID: "a"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	payload, ok := reg.PopMailbox(context.Background(), id, architect.AnswersKey)
	require.True(t, ok)
	answers, ok := payload.(map[string]architect.Answer)
	require.True(t, ok)
	assert.Equal(t, "a", answers["q1"].SelectedOptionID)
}

func TestSubmitAnswersUnknownRun(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{})
	resp := postJSON(t, ts.URL+"/v1/world-architect/runs/nope/answers", AnswersRequest{
		Answers: map[string]architect.Answer{"q1": {SelectedOptionID: "a"}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitAnswersOversizedField(t *testing.T) {
	ts, reg := newTestServer(t, &stubGenerator{})
	id := reg.Create(context.Background())

	resp := postJSON(t, ts.URL+"/v1/world-architect/runs/"+id+"/answers", AnswersRequest{
		Answers: map[string]architect.Answer{"q1": {FreeText: strings.Repeat("x", 2001)}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestEventsStreamEmitsHelloAndEvents(t *testing.T) {
	ts, reg := newTestServer(t, &stubGenerator{})
	id := reg.Create(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/runs/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimSuffix(line, "\n")
	}

	assert.Equal(t, "event: hello", readLine())
	assert.Contains(t, readLine(), `"run_id":"`+id+`"`)
	assert.Equal(t, "", readLine())

	reg.Publish(context.Background(), id, "stage", map[string]string{"stage": "analyzing"})
	assert.Equal(t, "id: 2", readLine())
	assert.Equal(t, "event: stage", readLine())
	assert.Contains(t, readLine(), `"stage":"analyzing"`)
}
