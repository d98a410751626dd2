// Package architect drives the world-architect workflow against a single
// run: it calls the generation service, validates the structured output
// schema-first with bounded repair, optionally suspends on the run mailbox
// until human answers arrive, and publishes stage/result/error events back
// through the run registry.
//
// Cancellation is cooperative: cancelling the run wakes the mailbox wait and
// the workflow exits silently at that checkpoint, without publishing a done
// or error event. Workflow completion is never reflected in the run's
// lifecycle state; the event stream is the source of truth.
package architect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/run"
	"github.com/fableforge/fableforge/runtime/telemetry"
)

// AnswersKey is the mailbox key the workflow blocks on while waiting for
// human answers. The answers endpoint submits to exactly this key.
const AnswersKey = "world_architect_answers"

// maxRepairRounds bounds how many times schema- or parse-invalid generator
// output is sent back for correction (3 decode attempts total).
const maxRepairRounds = 2

// Workflow stages published as "stage" events.
const (
	StageAnalyzing         = "analyzing"
	StageAsking            = "asking"
	StageWaitingForAnswers = "waiting_for_answers"
	StageBuilding          = "building"
	StageFinalizing        = "finalizing"
)

// Event types published by the workflow on top of the engine's own.
const (
	EventStage         = "stage"
	EventQuestions     = "hitl_questions"
	EventWorldSkeleton = "world_skeleton"
	EventDone          = "done"
	EventError         = "error"
)

// ErrRepairExhausted reports that generator output never conformed to the
// response schema within the bounded repair attempts.
var ErrRepairExhausted = errors.New("architect: generation output invalid after repair attempts")

// errCancelled ends the workflow silently after a cancellation checkpoint.
var errCancelled = errors.New("architect: run cancelled")

// errRunGone ends the workflow silently when its run was evicted while the
// workflow was suspended. Publishing anything at that point would re-create
// the run the janitor just removed.
var errRunGone = errors.New("architect: run evicted")

type (
	// Generator produces one text completion for a system instruction and
	// user prompt. Implemented by features/model/openrouter; tests inject
	// fakes.
	Generator interface {
		Complete(ctx context.Context, system, user string) (string, error)
	}

	// Architect runs the world-architect workflow. One instance serves all
	// runs; per-run state lives in the registry.
	Architect struct {
		reg    *run.Registry
		gen    Generator
		tracer trace.Tracer
	}
)

// New constructs an Architect bound to the given registry and generator.
func New(reg *run.Registry, gen Generator) *Architect {
	return &Architect{reg: reg, gen: gen, tracer: telemetry.Tracer()}
}

// Run executes the workflow for runID. It is designed to be spawned as a
// goroutine by the API layer; failures are reported as an "error" event on
// the run stream, never returned, since the triggering call is asynchronous.
func (a *Architect) Run(ctx context.Context, runID string, req StartRequest) {
	err := a.execute(ctx, runID, req)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		log.Info(ctx, log.KV{K: "msg", V: "workflow cancelled"}, log.KV{K: "run_id", V: runID})
	case errors.Is(err, errRunGone):
		log.Info(ctx, log.KV{K: "msg", V: "workflow abandoned, run evicted"}, log.KV{K: "run_id", V: runID})
	default:
		log.Error(ctx, err, log.KV{K: "run_id", V: runID})
		a.reg.Publish(ctx, runID, EventError, map[string]string{"message": err.Error()})
	}
}

func (a *Architect) execute(ctx context.Context, runID string, req StartRequest) error {
	a.publishStage(ctx, runID, StageAnalyzing)

	raw, err := a.complete(ctx, runID, systemPrompt, userPromptInitial(req))
	if err != nil {
		return err
	}
	res, err := a.parseAndValidate(ctx, runID, raw)
	if err != nil {
		return err
	}

	var skeleton WorldSkeleton
	if res.Mode == ModeQuestions {
		a.publishStage(ctx, runID, StageAsking)
		a.reg.Publish(ctx, runID, EventQuestions, map[string]any{"questions": res.Questions})

		a.publishStage(ctx, runID, StageWaitingForAnswers)
		if _, err := a.reg.WaitMailbox(ctx, runID, AnswersKey, 0); err != nil {
			return err
		}
		// Single checkpoint: the wait above also wakes on cancellation and on
		// janitor eviction, neither of which delivers answers.
		if a.reg.IsCancelled(ctx, runID) {
			return errCancelled
		}
		if _, ok := a.reg.Status(ctx, runID); !ok {
			return errRunGone
		}
		payload, _ := a.reg.PopMailbox(ctx, runID, AnswersKey)
		answers, err := decodeAnswers(payload)
		if err != nil {
			return err
		}

		a.publishStage(ctx, runID, StageBuilding)
		raw2, err := a.complete(ctx, runID, systemPrompt, userPromptFinal(req, answers))
		if err != nil {
			return err
		}
		final, err := a.parseAndValidate(ctx, runID, raw2)
		if err != nil {
			return err
		}
		if final.Mode != ModeDone {
			return errors.New("architect: generator returned questions again during finalize")
		}
		skeleton = *final.Skeleton
	} else {
		skeleton = *res.Skeleton
	}

	// Enforce the caller's global conflict toggle. The generator is allowed
	// to omit the conflict even when enabled.
	if !req.IsGlobalConflictEnabled {
		skeleton.GlobalConflict = ""
	}

	a.publishStage(ctx, runID, StageFinalizing)
	a.reg.Publish(ctx, runID, EventWorldSkeleton, skeleton)
	a.reg.Publish(ctx, runID, EventDone, map[string]bool{"ok": true})
	return nil
}

// parseAndValidate decodes raw generator text into a schema-valid result,
// attempting up to maxRepairRounds corrective round-trips through the
// generator. Transport failures during repair propagate immediately;
// exhausting the rounds returns ErrRepairExhausted wrapping the last
// parse/validation error text.
func (a *Architect) parseAndValidate(ctx context.Context, runID, raw string) (*result, error) {
	text := raw
	var lastErr string
	for attempt := 0; attempt <= maxRepairRounds; attempt++ {
		candidate := extractJSON(text)

		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			lastErr = fmt.Sprintf("JSON parse error: %v", err)
			if attempt == maxRepairRounds {
				break
			}
			repaired, rerr := a.complete(ctx, runID, repairParsePrompt, repairPrompt(candidate, lastErr))
			if rerr != nil {
				return nil, rerr
			}
			text = repaired
			continue
		}

		if err := compiledSchema.Validate(value); err != nil {
			lastErr = fmt.Sprintf("schema validation error: %v", err)
			if attempt == maxRepairRounds {
				break
			}
			repaired, rerr := a.complete(ctx, runID, repairSchemaPrompt, repairPrompt(candidate, lastErr))
			if rerr != nil {
				return nil, rerr
			}
			text = repaired
			continue
		}

		var res result
		if err := json.Unmarshal([]byte(candidate), &res); err != nil {
			return nil, fmt.Errorf("architect: decode validated result: %w", err)
		}
		return &res, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRepairExhausted, lastErr)
}

// complete calls the generator inside a trace span.
func (a *Architect) complete(ctx context.Context, runID, system, user string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "architect.generate",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()
	out, err := a.gen.Complete(ctx, system, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("architect: generation call: %w", err)
	}
	return out, nil
}

func (a *Architect) publishStage(ctx context.Context, runID, stage string) {
	a.reg.Publish(ctx, runID, EventStage, map[string]string{"stage": stage})
}

// decodeAnswers validates and coerces the mailbox payload into the answer
// map. The payload is either the typed map submitted by the API layer or any
// JSON-shaped equivalent; anything not answer-shaped degrades to an empty map
// and the workflow proceeds without answers.
func decodeAnswers(payload any) (map[string]Answer, error) {
	if payload == nil {
		return map[string]Answer{}, nil
	}
	answers, ok := payload.(map[string]Answer)
	if !ok {
		encoded, err := json.Marshal(payload)
		if err == nil {
			err = json.Unmarshal(encoded, &answers)
		}
		if err != nil {
			return map[string]Answer{}, nil
		}
	}
	for qid, ans := range answers {
		if err := ans.Validate(); err != nil {
			return nil, fmt.Errorf("architect: answer %q: %w", qid, err)
		}
	}
	return answers, nil
}
