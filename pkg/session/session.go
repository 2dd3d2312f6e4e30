// Package session is the orchestrator façade from spec.md §4.5: the
// thin layer a host process drives through spec.md §6's external
// interface (ping/ask/approveAction/denyAction/resumeAgent plus
// history.*) instead of calling pkg/graph directly.
package session

import (
	"context"
	"fmt"
	"time"

	"graphcore/pkg/config"
	"graphcore/pkg/graph"
	"graphcore/pkg/graphevent"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/logx"
	"graphcore/pkg/session/history"
)

// Session wires one compiled Graph to one chat-history store and the
// operator's approval-timeout tunable. One Session serves every thread
// in the process, matching Graph's own one-per-process design.
type Session struct {
	graph           *graph.Graph
	history         *history.Store
	approvalTimeout time.Duration
	logger          *logx.Logger
}

// New builds a Session from cfg: the graph (supervisor, workers, metrics,
// checkpoint store) and the chat-history store sharing its database file.
func New(cfg config.Config) (*Session, error) {
	g, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	hist, err := BuildHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: build history store: %w", err)
	}
	return newSession(g, hist, time.Duration(cfg.Tunables.ApprovalTimeoutSeconds)*time.Second), nil
}

// newSession assembles a Session from already-built parts. Split out from
// New so tests can exercise the façade against a graph wired with mock LLM
// clients instead of Build's real provider resolution.
func newSession(g *graph.Graph, hist *history.Store, approvalTimeout time.Duration) *Session {
	return &Session{
		graph:           g,
		history:         hist,
		approvalTimeout: approvalTimeout,
		logger:          logx.NewLogger("session"),
	}
}

// Close releases the checkpoint and history database handles.
func (s *Session) Close() error {
	histErr := s.history.Close()
	storeErr := s.graph.Store.Close()
	if storeErr != nil {
		return storeErr
	}
	return histErr
}

// Ping answers the liveness probe from spec.md §6.
func (s *Session) Ping() string { return "pong" }

// Ask starts a new turn on threadID, creating the thread's history row if
// it doesn't already exist, and streams the resulting events to onEvent
// in emission order. A pending approval older than the configured timeout
// is auto-denied first, so a user returning to a long-idle approval gets
// a "timeout" denial rather than resuming a stale pending action.
func (s *Session) Ask(ctx context.Context, threadID, text string, onEvent func(graphevent.Event)) error {
	if err := s.sweepExpiredApproval(ctx, threadID, onEvent); err != nil {
		return err
	}
	if _, err := s.history.Load(ctx, threadID); err != nil {
		if _, createErr := s.history.CreateWithID(ctx, threadID, titleFromText(text)); createErr != nil {
			return fmt.Errorf("session: back-fill history row for thread %q: %w", threadID, createErr)
		}
	}
	events, err := s.graph.Start(ctx, threadID, graphstate.NewUserMessage(text))
	emit(onEvent, events)
	if err != nil {
		return err
	}
	return s.history.Touch(ctx, threadID)
}

// ApproveAction commits the owning worker's execution of threadID's
// pending action without resuming the run, per spec.md §6's two-phase
// approveAction/resumeAgent pair. The caller must follow with
// ResumeAgent (or Ask) to drive the stream onward.
func (s *Session) ApproveAction(ctx context.Context, threadID string) error {
	if err := s.sweepExpiredApproval(ctx, threadID, nil); err != nil {
		return err
	}
	return s.graph.CommitApproval(ctx, threadID)
}

// DenyAction commits a synthetic denial in place of threadID's pending
// action without resuming the run. reason may be empty.
func (s *Session) DenyAction(ctx context.Context, threadID, reason string) error {
	if err := s.sweepExpiredApproval(ctx, threadID, nil); err != nil {
		return err
	}
	return s.graph.CommitDenial(ctx, threadID, reason)
}

// ResumeAgent continues threadID's run from wherever CommitApproval or
// CommitDenial left it, streaming the resulting events to onEvent.
func (s *Session) ResumeAgent(ctx context.Context, threadID string, onEvent func(graphevent.Event)) error {
	if err := s.sweepExpiredApproval(ctx, threadID, onEvent); err != nil {
		return err
	}
	events, err := s.graph.Resume(ctx, threadID)
	emit(onEvent, events)
	if err != nil {
		return err
	}
	return s.history.Touch(ctx, threadID)
}

// sweepExpiredApproval auto-denies threadID's pending action with reason
// "timeout" if it has sat unanswered past approvalTimeout, resuming the
// run so the supervisor can react (typically finishing the turn with an
// acknowledgement). A zero approvalTimeout disables the sweep.
func (s *Session) sweepExpiredApproval(ctx context.Context, threadID string, onEvent func(graphevent.Event)) error {
	if s.approvalTimeout <= 0 {
		return nil
	}
	pending, since, err := s.graph.PendingApproval(ctx, threadID)
	if err != nil {
		return err
	}
	if pending == nil || time.Since(since) < s.approvalTimeout {
		return nil
	}
	s.logger.Info("auto-denying expired approval on thread %q (worker=%q tool=%q)", threadID, pending.WorkerName, pending.ToolName)
	events, err := s.graph.Deny(ctx, threadID, "timeout")
	emit(onEvent, events)
	return err
}

// HistoryCreate starts a new thread's history row ahead of its first Ask,
// the "history.create" entry of spec.md §6's external interface.
func (s *Session) HistoryCreate(ctx context.Context, title string) (history.Thread, error) {
	return s.history.Create(ctx, title)
}

// HistoryList returns every known thread, most recently active first.
func (s *Session) HistoryList(ctx context.Context) ([]history.Thread, error) {
	return s.history.List(ctx)
}

// HistoryLoad returns one thread's metadata.
func (s *Session) HistoryLoad(ctx context.Context, threadID string) (history.Thread, error) {
	return s.history.Load(ctx, threadID)
}

// HistoryUpdateTitle renames a thread.
func (s *Session) HistoryUpdateTitle(ctx context.Context, threadID, title string) error {
	return s.history.UpdateTitle(ctx, threadID, title)
}

// HistoryDelete removes a thread's history row and its entire checkpoint
// transcript, so a deleted thread leaves no recoverable state behind.
func (s *Session) HistoryDelete(ctx context.Context, threadID string) error {
	if err := s.graph.Store.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	return s.history.Delete(ctx, threadID)
}

func titleFromText(text string) string {
	const maxLen = 60
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "…"
}

func emit(onEvent func(graphevent.Event), events []graphevent.Event) {
	if onEvent == nil {
		return
	}
	for _, e := range events {
		onEvent(e)
	}
}
