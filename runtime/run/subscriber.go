package run

import "sync"

type (
	// Subscriber is one live consumer of a run's event stream. Events
	// published after the subscriber attached are delivered on Events in
	// strictly increasing sequence order, up to the queue capacity; when the
	// queue is full, new events are dropped for this subscriber only.
	//
	// Subscribers are registered by Registry.Subscribe and must be closed by
	// the consumer so future publishes stop targeting the queue.
	Subscriber struct {
		runID string
		reg   *Registry
		ch    chan Event
		once  sync.Once
	}

	// SubscribeOption configures a subscriber at attach time.
	SubscribeOption func(*subscribeConfig)

	subscribeConfig struct {
		capacity int
	}
)

// WithQueueCapacity overrides the subscriber queue capacity. Intended for
// tests; production subscribers use DefaultQueueCapacity.
func WithQueueCapacity(n int) SubscribeOption {
	return func(cfg *subscribeConfig) {
		if n > 0 {
			cfg.capacity = n
		}
	}
}

// RunID returns the id of the run this subscriber is attached to.
func (s *Subscriber) RunID() string { return s.runID }

// Events returns the subscriber's delivery queue. The channel is never
// closed; consumers stop reading when their context ends.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Close detaches the subscriber from the run. Idempotent. Events already
// queued remain readable; no new events are enqueued after Close returns.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.reg.mu.Lock()
		if st, ok := s.reg.runs[s.runID]; ok {
			delete(st.subs, s)
		}
		s.reg.mu.Unlock()
	})
}
