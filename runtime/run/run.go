// Package run implements the process-local run engine: a registry of
// long-lived asynchronous runs, each with a monotonically increasing event
// sequence, a set of live stream subscribers, and a per-key mailbox used to
// hand externally supplied payloads to a suspended workflow.
//
// Runs are in-memory only. They do not survive process restarts and events
// are never replayed: a subscriber only observes events published after it
// attached. Delivery to a single subscriber is ordered and gap-free unless
// that subscriber's bounded queue overflows, in which case new events are
// dropped for that subscriber alone (see Registry.Publish).
package run

import "time"

type (
	// State is the lifecycle state of a run.
	State string

	// Status is a read-only snapshot of a run's lifecycle metadata.
	//
	// Note that State is not advanced when a workflow driving the run
	// finishes: a successful workflow publishes a "done" event and leaves the
	// run in StateRunning. Clients infer completion from the event stream,
	// not from Status.
	Status struct {
		// RunID is the opaque identifier allocated at creation.
		RunID string `json:"run_id"`
		// State is one of running, completed or cancelled.
		State State `json:"state"`
		// CreatedAt records when the run was allocated.
		CreatedAt time.Time `json:"created_at"`
		// UpdatedAt advances on every publish and on cancellation.
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Event is one emitted occurrence belonging to a run. Events are
	// immutable once constructed and are delivered to each subscriber in
	// strictly increasing Seq order.
	Event struct {
		// RunID identifies the run the event belongs to.
		RunID string `json:"run_id"`
		// Seq is the per-run sequence number, starting at 1.
		Seq int `json:"seq"`
		// Type is a short tag mirrored into the wire-level event name.
		Type string `json:"type"`
		// Ts is the publish timestamp.
		Ts time.Time `json:"ts"`
		// Payload is arbitrary JSON-serializable data.
		Payload any `json:"payload"`
	}
)

const (
	// StateRunning indicates the run is live.
	StateRunning State = "running"
	// StateCompleted is reserved for future normal-termination signaling.
	// Nothing drives a run to this state today.
	StateCompleted State = "completed"
	// StateCancelled indicates the run was cancelled externally.
	StateCancelled State = "cancelled"
)

// Well-known event types published by the engine itself. Workflows layer
// their own types (stage, hitl_questions, world_skeleton, ...) on top.
const (
	// EventRunCreated is published once when a run is allocated.
	EventRunCreated = "run_created"
	// EventRunCancelled is published on every Cancel call, including
	// repeated cancellations of an already-cancelled run.
	EventRunCancelled = "run_cancelled"
)
