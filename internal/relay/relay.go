// Package relay drives one agent run and turns its steps into the ordered
// sequence of server-sent events delivered to a client.
package relay

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"OnchainAgent/internal/agent"
	"OnchainAgent/internal/eventbus"
	"OnchainAgent/internal/observability/alerting"
	"OnchainAgent/internal/observability/metrics"
	"OnchainAgent/internal/runlog"
	"OnchainAgent/internal/sse"
	"OnchainAgent/pkg/logger"

	"github.com/google/uuid"
)

const (
	// FinishedMessage is the data of the terminal completed event.
	FinishedMessage = "Agent finished"

	sideEffectTimeout = 5 * time.Second
)

// Relay turns agent runs into event sequences. It is safe for concurrent use;
// every Run constructs its own agent.
type Relay struct {
	initializer        agent.Initializer
	publisher          eventbus.Publisher
	recorder           runlog.Recorder
	metrics            *metrics.Metrics
	alerts             alerting.Dispatcher
	emitInit           bool
	defaultInstruction string
	log                *slog.Logger
	now                func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithPublisher mirrors every emitted event to p.
func WithPublisher(p eventbus.Publisher) Option {
	return func(r *Relay) { r.publisher = p }
}

// WithRecorder stores a summary of each run in rec.
func WithRecorder(rec runlog.Recorder) Option {
	return func(r *Relay) { r.recorder = rec }
}

// WithMetrics counts events and run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithAlerts notifies d about every failed run.
func WithAlerts(d alerting.Dispatcher) Option {
	return func(r *Relay) { r.alerts = d }
}

// WithEmitInit emits an init event carrying the construction time.
func WithEmitInit(enabled bool) Option {
	return func(r *Relay) { r.emitInit = enabled }
}

// WithDefaultInstruction sets the instruction used when a request has none.
func WithDefaultInstruction(instruction string) Option {
	return func(r *Relay) {
		if strings.TrimSpace(instruction) != "" {
			r.defaultInstruction = instruction
		}
	}
}

// New returns a Relay constructing agents through init.
func New(init agent.Initializer, opts ...Option) *Relay {
	r := &Relay{
		initializer:        init,
		defaultInstruction: agent.DefaultInstruction,
		log:                logger.Named("relay"),
		now:                time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run constructs an agent, drives it with instruction and yields one event
// per non-empty step. At most one error event is produced and completed is
// always last. When the consumer stops pulling or ctx is cancelled, the run
// is abandoned without further events.
func (r *Relay) Run(ctx context.Context, instruction string) iter.Seq[sse.Event] {
	return func(yield func(sse.Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if strings.TrimSpace(instruction) == "" {
			instruction = r.defaultInstruction
		}
		state := &runState{Run: runlog.Run{
			ID:          uuid.NewString(),
			Instruction: instruction,
			StartedAt:   r.now(),
		}}

		r.metrics.StreamOpened()
		defer r.metrics.StreamClosed()
		defer r.finish(ctx, state)

		emit := func(ev sse.Event) bool {
			if ctx.Err() != nil {
				state.cancelled = true
				return false
			}
			r.mirror(ctx, state, ev)
			state.Frames++
			if !yield(ev) {
				state.cancelled = true
				return false
			}
			return true
		}

		started := r.now()
		exec, session, err := r.initializer.Initialize(ctx)
		state.ThreadID = session.ThreadID
		logger.Audit().Info("agent run started",
			slog.String("run_id", state.ID),
			slog.String("thread_id", state.ThreadID))

		if err != nil {
			if ctx.Err() != nil {
				state.cancelled = true
				return
			}
			state.fail(err)
			if !emit(errorEvent(err)) {
				return
			}
			emit(sse.Event{Name: sse.EventCompleted, Data: FinishedMessage})
			return
		}

		if r.emitInit {
			elapsed := r.now().Sub(started).Seconds()
			if !emit(sse.Event{Name: sse.EventInit, Data: fmt.Sprintf("Agent initialized in %.2fs", elapsed)}) {
				return
			}
		}

		for step, err := range exec.Stream(ctx, instruction, session) {
			if err != nil {
				if ctx.Err() != nil {
					state.cancelled = true
					return
				}
				state.fail(err)
				if !emit(errorEvent(err)) {
					return
				}
				break
			}
			ev, ok := state.observe(step)
			if !ok {
				continue
			}
			if !emit(ev) {
				return
			}
		}

		emit(sse.Event{Name: sse.EventCompleted, Data: FinishedMessage})
	}
}

func errorEvent(err error) sse.Event {
	return sse.Event{Name: sse.EventError, Data: "Error: " + err.Error()}
}

// mirror forwards an event to the publisher and metrics. Failures are only logged.
func (r *Relay) mirror(ctx context.Context, state *runState, ev sse.Event) {
	r.metrics.StreamEvent(ev.Name)
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	err := r.publisher.Publish(pubCtx, eventbus.Message{
		RunID:    state.ID,
		ThreadID: state.ThreadID,
		Event:    ev.Name,
		Data:     ev.Data,
		At:       r.now().UTC(),
	})
	if err != nil {
		r.metrics.PublishFailed()
		r.log.Warn("事件镜像失败", slog.String("run_id", state.ID), slog.String("event", ev.Name), slog.Any("error", err))
	}
}

// finish records the run summary. It runs after the request context may
// already be cancelled, so it uses a detached context.
func (r *Relay) finish(ctx context.Context, state *runState) {
	state.FinishedAt = r.now()
	state.DurationMS = state.FinishedAt.Sub(state.StartedAt).Milliseconds()
	switch {
	case state.cancelled:
		state.Status = runlog.StatusCancelled
	case state.Error != "":
		state.Status = runlog.StatusFailed
	default:
		state.Status = runlog.StatusCompleted
	}

	r.metrics.RunFinished(string(state.Status), state.FinishedAt.Sub(state.StartedAt))
	logger.Audit().Info("agent run finished",
		slog.String("run_id", state.ID),
		slog.String("thread_id", state.ThreadID),
		slog.String("status", string(state.Status)),
		slog.Int("frames", state.Frames),
		slog.Int64("duration_ms", state.DurationMS))

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if r.alerts != nil && state.Status == runlog.StatusFailed {
		ev := alerting.FromError(state.failure, state.ID, state.ThreadID)
		ev.Instruction = state.Instruction
		if err := r.alerts.Notify(detached, ev); err != nil {
			r.log.Warn("发送告警失败", slog.String("run_id", state.ID), slog.Any("error", err))
		}
	}

	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(detached, state.Run); err != nil {
		r.log.Warn("保存运行记录失败", slog.String("run_id", state.ID), slog.Any("error", err))
	}
}

type runState struct {
	runlog.Run
	cancelled bool
	failure   error
}

func (s *runState) fail(err error) {
	s.failure = err
	s.Error = err.Error()
}

// observe maps a step to its event. Steps whose first message has no content
// produce no event.
func (s *runState) observe(step agent.StepRecord) (sse.Event, bool) {
	var name string
	switch step.Node {
	case agent.NodeAgent:
		s.AgentSteps++
		name = sse.EventAgent
	case agent.NodeTools:
		s.ToolSteps++
		name = sse.EventTools
	default:
		return sse.Event{}, false
	}
	content := step.Content()
	if content == "" {
		return sse.Event{}, false
	}
	s.LastMessage = content
	return sse.Event{Name: name, Data: content}, true
}
