// Package graph assembles the supervisor and workers into the compiled
// state machine from spec.md §4.3: the conditional out-edges, the
// interrupt before human_approval, the recursion ceiling, and the
// per-node checkpointing that makes a paused thread resumable.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"graphcore/pkg/checkpoint"
	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/logx"
	"graphcore/pkg/router"
	"graphcore/pkg/worker"
)

// ErrRecursionLimit is returned when a single run exceeds the configured
// recursion ceiling, spec.md §4.3's defense-in-depth against
// mis-configured edges.
var ErrRecursionLimit = fmt.Errorf("graph: recursion limit exceeded")

// Graph wires one supervisor and its named workers to a shared checkpoint
// store. One Graph serves every thread; per-thread state lives only in
// the checkpoint store between calls.
type Graph struct {
	Supervisor     *router.Supervisor
	Workers        map[string]*worker.Worker
	Store          *checkpoint.Store
	Tunables       graphstate.Tunables
	RecursionLimit int
	logger         *logx.Logger
}

// New builds a Graph. recursionLimit must be >= tunables.MaxIterations;
// callers typically pass config.GraphTunables.RecursionLimit (default 50).
func New(supervisor *router.Supervisor, workers map[string]*worker.Worker, store *checkpoint.Store, tunables graphstate.Tunables, recursionLimit int) *Graph {
	return &Graph{
		Supervisor:     supervisor,
		Workers:        workers,
		Store:          store,
		Tunables:       tunables,
		RecursionLimit: recursionLimit,
		logger:         logx.NewLogger("graph"),
	}
}

// SetMetrics attaches r to the graph's checkpoint store, supervisor, and
// every worker, so routing decisions, tool-call latency, and checkpoint
// write latency are all observed through one Recorder. Passing nil detaches
// recording.
func (g *Graph) SetMetrics(r *graphmetrics.Recorder) {
	g.Store.SetMetrics(r)
	g.Supervisor.Metrics = r
	for _, w := range g.Workers {
		w.Metrics = r
	}
}

// loadState returns the most recently checkpointed state for threadID, or
// the zero State if the thread has never run.
func (g *Graph) loadState(ctx context.Context, threadID string) (graphstate.State, checkpoint.Config, error) {
	cfg := checkpoint.Config{ThreadID: threadID}
	tuple, err := g.Store.GetTuple(ctx, cfg)
	if err != nil {
		return graphstate.State{}, cfg, fmt.Errorf("graph: load state: %w", err)
	}
	if tuple == nil {
		return graphstate.State{}, cfg, nil
	}
	state, err := decodeState(tuple.Checkpoint)
	if err != nil {
		return graphstate.State{}, cfg, err
	}
	cfg.CheckpointID = tuple.Config.CheckpointID
	return state, cfg, nil
}

// persist writes state as a new checkpoint linked to cfg's current
// checkpoint (its parent), returning the config pointing at the new one.
func (g *Graph) persist(ctx context.Context, cfg checkpoint.Config, state graphstate.State) (checkpoint.Config, error) {
	blob, err := encodeState(state)
	if err != nil {
		return cfg, err
	}
	newID := uuid.New().String()
	next, err := g.Store.Put(ctx, cfg, newID, blob, nil, nil)
	if err != nil {
		return cfg, fmt.Errorf("graph: persist checkpoint: %w", err)
	}
	return next, nil
}

// Start begins a new turn on threadID: userMsg is appended and every
// per-turn counter resets, per spec.md §4.5's "start" path, then the
// graph runs from the supervisor until it ends or pauses for approval.
func (g *Graph) Start(ctx context.Context, threadID string, userMsg graphstate.Message) ([]graphevent.Event, error) {
	state, cfg, err := g.loadState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state = graphstate.Apply(state, graphstate.StartTurn(userMsg))
	return g.run(ctx, cfg, state, graphstate.NodeSupervisor)
}

// Resume continues threadID's run from wherever it paused. The caller
// (pkg/session, via Approve/Deny) must have already written the approval
// decision into state; Resume's first act mirrors the human_approval node
// body (clearing awaitingApproval) before handing control to the
// supervisor, per spec.md §4.3.
func (g *Graph) Resume(ctx context.Context, threadID string) ([]graphevent.Event, error) {
	state, cfg, err := g.loadState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state = graphstate.Apply(state, graphstate.Update{AwaitingApproval: graphstate.Some(false)})
	return g.run(ctx, cfg, state, graphstate.NodeSupervisor)
}

// PendingApproval returns threadID's outstanding pending action and the
// timestamp its approval checkpoint was written, or (nil, zero time) if
// the thread is not currently paused at human_approval. Callers (pkg/
// session's approval-timeout sweep) use the timestamp to decide whether
// the approval window has expired.
func (g *Graph) PendingApproval(ctx context.Context, threadID string) (*graphstate.PendingAction, time.Time, error) {
	cfg := checkpoint.Config{ThreadID: threadID}
	tuple, err := g.Store.GetTuple(ctx, cfg)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("graph: load tuple: %w", err)
	}
	if tuple == nil {
		return nil, time.Time{}, nil
	}
	state, err := decodeState(tuple.Checkpoint)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !state.AwaitingApproval || state.PendingAction == nil {
		return nil, time.Time{}, nil
	}
	return state.PendingAction, tuple.CreatedAt, nil
}

// CommitApproval executes the pending action through its owning worker and
// commits the result as a new checkpoint, without resuming the run. It is
// the "approveAction" half of spec.md §6's pair — the caller drives the
// stream with a separate Resume call. It is an error to call with no
// pending action.
func (g *Graph) CommitApproval(ctx context.Context, threadID string) error {
	state, cfg, err := g.loadState(ctx, threadID)
	if err != nil {
		return err
	}
	if state.PendingAction == nil {
		return fmt.Errorf("graph: no pending action on thread %q", threadID)
	}
	action := *state.PendingAction
	w, ok := g.Workers[action.WorkerName]
	if !ok {
		return fmt.Errorf("graph: unknown worker %q for pending action", action.WorkerName)
	}
	result := w.Resume(ctx, action)
	state = graphstate.Apply(state, graphstate.Update{
		Messages:         []graphstate.Message{result},
		PendingAction:    graphstate.Some[*graphstate.PendingAction](nil),
		AwaitingApproval: graphstate.Some(false),
	})
	_, err = g.persist(ctx, cfg, state)
	return err
}

// Approve is CommitApproval followed immediately by Resume, for callers
// that don't need the two phases split across a streaming boundary.
func (g *Graph) Approve(ctx context.Context, threadID string) ([]graphevent.Event, error) {
	if err := g.CommitApproval(ctx, threadID); err != nil {
		return nil, err
	}
	return g.Resume(ctx, threadID)
}

// CommitDenial records a synthetic denial message in place of the pending
// action's result and commits it as a new checkpoint, without resuming the
// run — the "denyAction" half of spec.md §6's pair.
func (g *Graph) CommitDenial(ctx context.Context, threadID, reason string) error {
	state, cfg, err := g.loadState(ctx, threadID)
	if err != nil {
		return err
	}
	if state.PendingAction == nil {
		return fmt.Errorf("graph: no pending action on thread %q", threadID)
	}
	denial := graphstate.NewUserMessage(graphstate.DenialMessageContent(reason))
	state = graphstate.Apply(state, graphstate.Update{
		Messages:         []graphstate.Message{denial},
		PendingAction:    graphstate.Some[*graphstate.PendingAction](nil),
		AwaitingApproval: graphstate.Some(false),
	})
	_, err = g.persist(ctx, cfg, state)
	return err
}

// Deny is CommitDenial followed immediately by Resume.
func (g *Graph) Deny(ctx context.Context, threadID, reason string) ([]graphevent.Event, error) {
	if err := g.CommitDenial(ctx, threadID, reason); err != nil {
		return nil, err
	}
	return g.Resume(ctx, threadID)
}

// run drives the node loop from startNode until the graph reaches End or
// pauses at human_approval, checkpointing after every node invocation so
// the thread can resume from exactly where it stopped.
func (g *Graph) run(ctx context.Context, cfg checkpoint.Config, state graphstate.State, startNode graphstate.NodeName) ([]graphevent.Event, error) {
	var allEvents []graphevent.Event
	current := startNode

	for steps := 0; ; steps++ {
		if steps >= g.RecursionLimit {
			state = graphstate.Apply(state, graphstate.Update{Error: graphstate.Some("Reached the graph's recursion limit.")})
			if _, err := g.persist(ctx, cfg, state); err != nil {
				return allEvents, err
			}
			allEvents = append(allEvents, graphevent.Event{Kind: graphevent.Error, Message: "recursion limit exceeded"})
			return allEvents, ErrRecursionLimit
		}

		if current == graphstate.NodeSupervisor {
			state = graphstate.Apply(state, graphstate.SupervisorEntry())
			update, events, err := g.Supervisor.Decide(ctx, state, g.Tunables)
			if err != nil {
				return allEvents, fmt.Errorf("graph: supervisor step: %w", err)
			}
			// SupervisorEntry already did this visit's counter bookkeeping.
			iter, workerIter := state.IterationCount, state.WorkerIterationCount
			update.IterationCount, update.WorkerIterationCount = &iter, &workerIter
			state = graphstate.Apply(state, update)
			allEvents = append(allEvents, events...)

			var persistErr error
			cfg, persistErr = g.persist(ctx, cfg, state)
			if persistErr != nil {
				return allEvents, persistErr
			}

			next := graphstate.SupervisorNext(state)
			if next == graphstate.End {
				allEvents = append(allEvents, graphevent.Event{Kind: graphevent.Complete, Response: state.FinalResponse})
				return allEvents, nil
			}
			current = next
			continue
		}

		w, ok := g.Workers[string(current)]
		if !ok {
			return allEvents, fmt.Errorf("graph: unknown worker node %q", current)
		}
		iter := state.IterationCount
		state = graphstate.Apply(state, graphstate.WorkerEntry())
		update, events, err := w.Step(ctx, state)
		if err != nil {
			return allEvents, fmt.Errorf("graph: worker %q step: %w", current, err)
		}
		// A worker visit advances only the worker's own count, once.
		workerIter := state.WorkerIterationCount
		update.IterationCount, update.WorkerIterationCount = &iter, &workerIter
		state = graphstate.Apply(state, update)
		allEvents = append(allEvents, events...)

		var persistErr error
		cfg, persistErr = g.persist(ctx, cfg, state)
		if persistErr != nil {
			return allEvents, persistErr
		}

		next := graphstate.WorkerNext(string(current), state, g.Tunables)
		if next == graphstate.NodeHumanApproval {
			g.logger.Debug("thread paused at human_approval for worker %q", current)
			return allEvents, nil
		}
		current = next
	}
}
