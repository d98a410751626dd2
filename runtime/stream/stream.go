package stream

import (
	"context"
	"time"

	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/run"
)

// DefaultKeepalive is the idle window after which a comment ping is emitted
// to prevent intermediaries from tearing down the connection.
const DefaultKeepalive = 15 * time.Second

type (
	// Stream turns a run subscriber into a lazy, non-restartable sequence of
	// wire frames: first a hello greeting, then queued event frames,
	// interleaving keepalive pings whenever no event arrives within the
	// keepalive window. The sequence ends only when the consumer's context
	// is done; callers still own closing the underlying subscriber.
	Stream struct {
		sub       *run.Subscriber
		keepalive time.Duration
		helloSent bool
	}

	// Option configures a Stream.
	Option func(*Stream)
)

// WithKeepalive overrides the idle window before a ping frame is emitted.
func WithKeepalive(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.keepalive = d
		}
	}
}

// New wraps a subscriber in a frame stream.
func New(sub *run.Subscriber, opts ...Option) *Stream {
	s := &Stream{sub: sub, keepalive: DefaultKeepalive}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next blocks until the next frame is available and returns it. The first
// call returns the hello frame immediately; subsequent calls return the next
// queued event frame or, after the keepalive window elapses with no event, a
// ping frame. Next returns ctx.Err() once the context is done.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	if !s.helloSent {
		s.helloSent = true
		return Hello(s.sub.RunID()), nil
	}
	timer := time.NewTimer(s.keepalive)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case ev := <-s.sub.Events():
			f, err := Encode(ev)
			if err != nil {
				// Unserializable payloads are a programming error upstream;
				// skip the event rather than ending the stream.
				log.Error(ctx, err, log.KV{K: "run_id", V: ev.RunID}, log.KV{K: "seq", V: ev.Seq})
				continue
			}
			return f, nil
		case <-timer.C:
			return Ping(), nil
		}
	}
}
