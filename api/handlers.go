package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/architect"
	"github.com/fableforge/fableforge/runtime/run"
	"github.com/fableforge/fableforge/runtime/stream"
)

type (
	// Handlers implements the HTTP surface of the run engine: run lifecycle,
	// the live event stream, and the world-architect workflow endpoints.
	Handlers struct {
		reg       *run.Registry
		arch      *architect.Architect
		keepalive time.Duration
	}

	// RunCreated is the response body for run-creating endpoints.
	RunCreated struct {
		RunID string `json:"run_id"`
	}

	// AnswersRequest is the request body for the workflow answers endpoint.
	AnswersRequest struct {
		Answers map[string]architect.Answer `json:"answers"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// NewHandlers constructs the handler set. keepalive bounds the idle window of
// event streams; zero selects stream.DefaultKeepalive.
func NewHandlers(reg *run.Registry, arch *architect.Architect, keepalive time.Duration) *Handlers {
	return &Handlers{reg: reg, arch: arch, keepalive: keepalive}
}

// HandleCreateRun starts a bare run with no workflow attached.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	id := h.reg.Create(r.Context())
	writeJSON(w, http.StatusCreated, RunCreated{RunID: id})
}

// HandleGetRun returns the run's status snapshot.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	st, ok := h.reg.Status(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleCancelRun cancels the run. Repeat cancellations are accepted and
// republish the run_cancelled event.
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	st, ok := h.reg.Cancel(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleEvents streams the run's events as Server-Sent Events until the
// client disconnects. Subscribers attached mid-run only see events published
// after attach; there is no replay.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx := r.Context()
	sub := h.reg.Subscribe(ctx, r.PathValue("id"))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := stream.New(sub, stream.WithKeepalive(h.keepalive))
	for {
		frame, err := frames.Next(ctx)
		if err != nil {
			return
		}
		if _, err := io.WriteString(w, frame.String()); err != nil {
			log.Debug(ctx, log.KV{K: "msg", V: "event stream write failed"},
				log.KV{K: "run_id", V: sub.RunID()}, log.KV{K: "err", V: err.Error()})
			return
		}
		flusher.Flush()
	}
}

// HandleStartArchitect validates the request, allocates a run and spawns the
// world-architect workflow against it. The workflow outcome is reported on
// the run's event stream, not on this response.
func (h *Handlers) HandleStartArchitect(w http.ResponseWriter, r *http.Request) {
	var req architect.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ctx := r.Context()
	runID := h.reg.Create(ctx)
	// Detach the workflow from the request lifetime but keep log/trace
	// values flowing.
	go h.arch.Run(context.WithoutCancel(ctx), runID, req)
	writeJSON(w, http.StatusCreated, RunCreated{RunID: runID})
}

// HandleSubmitAnswers delivers human answers to the workflow mailbox, waking
// a workflow suspended in waiting_for_answers. Submitting to a run that is
// not currently waiting is allowed: the payload is retained and a later wait
// on the same key returns immediately.
func (h *Handlers) HandleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	var req AnswersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for qid, ans := range req.Answers {
		if err := ans.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "answer "+qid+": "+err.Error())
			return
		}
	}
	ctx := r.Context()
	id := r.PathValue("id")
	st, ok := h.reg.Status(ctx, id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if !h.reg.SubmitMailbox(ctx, id, architect.AnswersKey, req.Answers) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
