package run

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/telemetry"
)

// DefaultQueueCapacity bounds the number of undelivered events buffered per
// subscriber. When the buffer is full, new events are dropped for that
// subscriber only; the publisher never blocks.
const DefaultQueueCapacity = 100

// ErrWaitTimeout reports that WaitMailbox gave up before a signal fired.
var ErrWaitTimeout = errors.New("run: mailbox wait timed out")

type (
	// Registry owns the table of active runs. Construct one per process with
	// NewRegistry and pass it by handle to every component that needs it;
	// there is no package-level instance.
	//
	// All map and counter state is guarded by a single mutex. The mutex is
	// held only to mutate bookkeeping and snapshot the subscriber set; event
	// delivery to subscriber queues happens after release so a slow consumer
	// cannot stall publication to others.
	Registry struct {
		mu   sync.Mutex
		runs map[string]*runState

		now     func() time.Time
		metrics *telemetry.RunMetrics
	}

	// Option configures a Registry.
	Option func(*Registry)

	runState struct {
		status    Status
		cancelled bool
		seq       int
		subs      map[*Subscriber]struct{}
		mail      map[string]*mailSlot
	}

	// mailSlot is a single-value handoff cell with a set-once wake signal.
	// ready is closed when the slot is signalled (by a submit or by run
	// cancellation) and replaced with a fresh channel when the slot is
	// popped, so the same key can be reused by a later round.
	mailSlot struct {
		payload   any
		set       bool
		signalled bool
		ready     chan struct{}
	}
)

// WithClock overrides the registry time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithMetrics overrides the OTEL counters recorded by the registry.
func WithMetrics(m *telemetry.RunMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry constructs an empty registry. Metrics instruments come from the
// global OTEL MeterProvider unless overridden with WithMetrics.
func NewRegistry(ctx context.Context, opts ...Option) *Registry {
	r := &Registry{
		runs: make(map[string]*runState),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = telemetry.NewRunMetrics(ctx)
	}
	return r
}

// Create allocates a new run in state running and publishes the run_created
// event. It never fails.
func (r *Registry) Create(ctx context.Context) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	r.mu.Lock()
	r.runs[id] = newRunState(id, r.now())
	r.mu.Unlock()
	r.metrics.RunCreated(ctx)
	log.Debug(ctx, log.KV{K: "msg", V: "run created"}, log.KV{K: "run_id", V: id})
	r.Publish(ctx, id, EventRunCreated, map[string]string{"run_id": id})
	return id
}

// Status returns a snapshot of the run's lifecycle metadata. The second
// return value is false when the run id is unknown.
func (r *Registry) Status(_ context.Context, runID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return Status{}, false
	}
	return st.status, true
}

// IsCancelled reports whether the run exists and has been cancelled.
func (r *Registry) IsCancelled(_ context.Context, runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	return ok && st.cancelled
}

// Cancel flips the run to cancelled, wakes every mailbox wait signal so a
// workflow blocked on external input unblocks, and publishes run_cancelled.
// Cancelling an already-cancelled run republishes the event and returns the
// same terminal status: callers must not assume the cancellation event is
// observed exactly once. Returns false when the run id is unknown.
func (r *Registry) Cancel(ctx context.Context, runID string) (Status, bool) {
	r.mu.Lock()
	st, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return Status{}, false
	}
	st.cancelled = true
	st.status.State = StateCancelled
	st.status.UpdatedAt = r.now()
	for _, slot := range st.mail {
		slot.signal()
	}
	r.mu.Unlock()

	r.Publish(ctx, runID, EventRunCancelled, map[string]string{"run_id": runID})

	r.mu.Lock()
	defer r.mu.Unlock()
	return st.status, true
}

// Publish appends an event to the run's stream and fans it out to the current
// subscribers. Unknown run ids are auto-vivified so publish-before-create
// races never fail; the placeholder creation is logged and counted distinctly
// from an intentional Create since it can mask use of a stale id.
//
// Delivery is non-blocking: a subscriber whose queue is full loses this event
// (silently, for that subscriber only) and its delivered stream gains a gap.
func (r *Registry) Publish(ctx context.Context, runID, eventType string, payload any) {
	r.mu.Lock()
	st := r.ensureLocked(ctx, runID)
	st.seq++
	now := r.now()
	st.status.UpdatedAt = now
	ev := Event{
		RunID:   runID,
		Seq:     st.seq,
		Type:    eventType,
		Ts:      now,
		Payload: payload,
	}
	subs := make([]*Subscriber, 0, len(st.subs))
	for sub := range st.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	r.metrics.EventPublished(ctx, eventType)
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			r.metrics.FrameDropped(ctx)
			log.Debug(ctx, log.KV{K: "msg", V: "subscriber queue full, event dropped"},
				log.KV{K: "run_id", V: runID}, log.KV{K: "seq", V: ev.Seq})
		}
	}
}

// Subscribe attaches a new bounded subscriber queue to the run, auto-creating
// the run if unknown. The subscriber receives every event published after
// this call, independently of other subscribers. Callers must Close the
// subscriber when done so publishes stop targeting its queue.
func (r *Registry) Subscribe(ctx context.Context, runID string, opts ...SubscribeOption) *Subscriber {
	cfg := subscribeConfig{capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	sub := &Subscriber{
		runID: runID,
		reg:   r,
		ch:    make(chan Event, cfg.capacity),
	}
	r.mu.Lock()
	st := r.ensureLocked(ctx, runID)
	st.subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

// SubmitMailbox stores payload under key and signals any current or future
// waiter on that key. Concurrent submits to the same key overwrite the
// payload (last write wins). Returns false when the run id is unknown;
// submitting does not auto-create runs.
func (r *Registry) SubmitMailbox(_ context.Context, runID, key string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return false
	}
	slot := st.slot(key)
	slot.payload = payload
	slot.set = true
	slot.signal()
	return true
}

// WaitMailbox blocks the calling goroutine until the signal for key fires, the
// timeout elapses (timeout <= 0 means wait forever) or ctx is done. The stored
// payload, if any, is returned without being consumed; use PopMailbox to take
// it. The wait also wakes when the run is cancelled, returning a nil payload.
// Unknown run ids are auto-vivified so a wait can be registered ahead of the
// first submit.
func (r *Registry) WaitMailbox(ctx context.Context, runID, key string, timeout time.Duration) (any, error) {
	r.mu.Lock()
	st := r.ensureLocked(ctx, runID)
	if st.cancelled {
		r.mu.Unlock()
		return nil, nil
	}
	slot := st.slot(key)
	ready := slot.ready
	r.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case <-ready:
	case <-timeoutC:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return slot.payload, nil
}

// PopMailbox removes and returns the payload stored under key and resets the
// wake signal so the key can be reused by a later round. The second return
// value is false when the run is unknown or no payload was submitted.
func (r *Registry) PopMailbox(_ context.Context, runID, key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	if !ok {
		return nil, false
	}
	slot, ok := st.mail[key]
	if !ok || !slot.set {
		return nil, false
	}
	payload := slot.payload
	slot.payload = nil
	slot.set = false
	slot.signalled = false
	slot.ready = make(chan struct{})
	return payload, true
}

// Sweep evicts runs whose UpdatedAt is older than the horizon and that have
// no live subscribers, waking any mailbox waiters so they do not leak. It
// returns the number of runs evicted. Runs are otherwise retained for the
// life of the process, so callers must drive Sweep (see Janitor) to bound
// memory growth.
func (r *Registry) Sweep(ctx context.Context, olderThan time.Duration) int {
	horizon := r.now().Add(-olderThan)
	r.mu.Lock()
	evicted := 0
	for id, st := range r.runs {
		if len(st.subs) > 0 || st.status.UpdatedAt.After(horizon) {
			continue
		}
		for _, slot := range st.mail {
			slot.signal()
		}
		delete(r.runs, id)
		evicted++
	}
	r.mu.Unlock()
	if evicted > 0 {
		r.metrics.RunsEvicted(ctx, evicted)
		log.Info(ctx, log.KV{K: "msg", V: "runs evicted"}, log.KV{K: "count", V: evicted})
	}
	return evicted
}

// Janitor drives Sweep every interval until ctx is done, evicting runs idle
// for longer than retention.
func (r *Registry) Janitor(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, retention)
		}
	}
}

// ensureLocked returns the state for runID, creating a bare placeholder run
// when the id is unknown. Callers must hold r.mu.
func (r *Registry) ensureLocked(ctx context.Context, runID string) *runState {
	st, ok := r.runs[runID]
	if !ok {
		st = newRunState(runID, r.now())
		r.runs[runID] = st
		r.metrics.RunAutoVivified(ctx)
		log.Info(ctx, log.KV{K: "msg", V: "run auto-vivified"},
			log.KV{K: "run_id", V: runID}, log.KV{K: "reason", V: "auto_vivified"})
	}
	return st
}

func newRunState(runID string, now time.Time) *runState {
	return &runState{
		status: Status{
			RunID:     runID,
			State:     StateRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		subs: make(map[*Subscriber]struct{}),
		mail: make(map[string]*mailSlot),
	}
}

// slot returns the mailbox cell for key, creating it on first use.
func (st *runState) slot(key string) *mailSlot {
	s, ok := st.mail[key]
	if !ok {
		s = &mailSlot{ready: make(chan struct{})}
		st.mail[key] = s
	}
	return s
}

// signal closes the wake channel exactly once.
func (s *mailSlot) signal() {
	if s.signalled {
		return
	}
	s.signalled = true
	close(s.ready)
}
