// Command graphctl is a thin CLI over pkg/session: it drives one
// orchestrator turn per invocation and inspects a thread's persisted
// checkpoint history, the same debugging role cmd/replayer fills for
// event logs, applied here to graph checkpoints instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"graphcore/pkg/checkpoint"
	"graphcore/pkg/config"
	"graphcore/pkg/graph"
	"graphcore/pkg/graphevent"
	"graphcore/pkg/session"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var configPath string
	top := flag.NewFlagSet("graphctl", flag.ContinueOnError)
	top.StringVar(&configPath, "config", "", "path to a YAML config file (defaults baked in if omitted)")
	top.Usage = printUsage
	if err := top.Parse(args); err != nil {
		return 2
	}

	rest := top.Args()
	if len(rest) == 0 {
		printUsage()
		return 2
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: %v\n", err)
		return 1
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "threads":
		return runThreads(cfg, cmdArgs)
	case "ask":
		return runAsk(cfg, cmdArgs)
	case "approve":
		return runApprove(cfg, cmdArgs)
	case "deny":
		return runDeny(cfg, cmdArgs)
	case "resume":
		return runResume(cfg, cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "graphctl: unknown command %q\n\n", cmd)
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `graphctl - inspect and drive graphcore orchestrator threads

Usage:
  graphctl [-config path] <command> [arguments]

Commands:
  threads list              list every known thread, most recently active first
  threads show <id>         dump the checkpoint history for one thread
  ask <id> <text>           start or continue a turn with a user message
  approve <id>              approve the thread's pending sensitive action
  deny <id> [reason]        deny the thread's pending sensitive action
  resume <id>               resume a thread after approve/deny

ask and resume stream events to stdout. When a sensitive action needs
approval and stdin is a terminal, graphctl prompts for approve/deny and
resumes automatically; otherwise it prints the pending action and exits,
leaving "approve"/"deny" plus "resume" to be run as separate commands.
`)
}

func runThreads(cfg config.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "graphctl: threads requires a subcommand (list, show)")
		return 2
	}

	switch args[0] {
	case "list":
		return threadsList(cfg)
	case "show":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "graphctl: threads show requires a thread id")
			return 2
		}
		store, err := checkpoint.Open(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graphctl: open checkpoint store: %v\n", err)
			return 1
		}
		defer store.Close()
		return threadsShow(store, args[1])
	default:
		fmt.Fprintf(os.Stderr, "graphctl: unknown threads subcommand %q\n", args[0])
		return 2
	}
}

func threadsList(cfg config.Config) int {
	hist, err := session.BuildHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: open history store: %v\n", err)
		return 1
	}
	defer hist.Close()

	threads, err := hist.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: list threads: %v\n", err)
		return 1
	}
	if len(threads) == 0 {
		fmt.Println("no threads yet")
		return 0
	}
	for _, t := range threads {
		fmt.Printf("%s\t%s\t%s\n", t.ID, t.UpdatedAt.Format("2006-01-02 15:04:05"), t.Title)
	}
	return 0
}

func threadsShow(store *checkpoint.Store, threadID string) int {
	ctx := context.Background()
	tuples, err := store.List(ctx, checkpoint.Config{ThreadID: threadID}, checkpoint.ListOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: list checkpoints: %v\n", err)
		return 1
	}
	if len(tuples) == 0 {
		fmt.Printf("thread %q has no checkpoints\n", threadID)
		return 0
	}
	for i, tuple := range tuples {
		state, err := graph.DecodeCheckpoint(tuple.Checkpoint)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graphctl: decode checkpoint %s: %v\n", tuple.Config.CheckpointID, err)
			continue
		}
		fmt.Printf("=== checkpoint %d: %s (%s) ===\n", i, tuple.Config.CheckpointID, tuple.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  next=%s iterations=%d worker_iterations=%d awaiting_approval=%v task_complete=%v\n",
			state.Next, state.IterationCount, state.WorkerIterationCount, state.AwaitingApproval, state.TaskComplete)
		if state.PendingAction != nil {
			fmt.Printf("  pending: worker=%s tool=%s sensitivity=%s\n",
				state.PendingAction.WorkerName, state.PendingAction.ToolName, state.PendingAction.Sensitivity)
		}
		for _, m := range state.Messages {
			content := m.Content
			if len(content) > 120 {
				content = content[:120] + "…"
			}
			fmt.Printf("  [%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, content)
		}
	}
	return 0
}

func runAsk(cfg config.Config, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "graphctl: ask requires a thread id and message text")
		return 2
	}
	threadID, text := args[0], strings.Join(args[1:], " ")

	return withSession(cfg, func(s *session.Session) int {
		return driveTurn(s, threadID, func(ctx context.Context, onEvent func(graphevent.Event)) error {
			return s.Ask(ctx, threadID, text, onEvent)
		})
	})
}

func runApprove(cfg config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "graphctl: approve requires a thread id")
		return 2
	}
	threadID := args[0]
	return withSession(cfg, func(s *session.Session) int {
		if err := s.ApproveAction(context.Background(), threadID); err != nil {
			fmt.Fprintf(os.Stderr, "graphctl: approve: %v\n", err)
			return 1
		}
		fmt.Println("approved; run \"graphctl resume\" to continue the turn")
		return 0
	})
}

func runDeny(cfg config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "graphctl: deny requires a thread id")
		return 2
	}
	threadID, reason := args[0], ""
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	return withSession(cfg, func(s *session.Session) int {
		if err := s.DenyAction(context.Background(), threadID, reason); err != nil {
			fmt.Fprintf(os.Stderr, "graphctl: deny: %v\n", err)
			return 1
		}
		fmt.Println("denied; run \"graphctl resume\" to continue the turn")
		return 0
	})
}

func runResume(cfg config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "graphctl: resume requires a thread id")
		return 2
	}
	threadID := args[0]
	return withSession(cfg, func(s *session.Session) int {
		return driveTurn(s, threadID, func(ctx context.Context, onEvent func(graphevent.Event)) error {
			return s.ResumeAgent(ctx, threadID, onEvent)
		})
	})
}

func withSession(cfg config.Config, fn func(*session.Session) int) int {
	s, err := session.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: build session: %v\n", err)
		return 1
	}
	defer s.Close()
	return fn(s)
}

// driveTurn runs one streaming call and, if it pauses on a sensitive
// action, prompts for approval interactively when stdin is a terminal
// (auto-resuming afterward) or else prints the pending action and
// leaves approve/deny/resume to separate invocations.
func driveTurn(s *session.Session, threadID string, call func(context.Context, func(graphevent.Event)) error) int {
	ctx := context.Background()
	var pending *graphevent.Event

	err := call(ctx, func(e graphevent.Event) {
		printEvent(e)
		if e.Kind == graphevent.ApprovalRequired {
			ev := e
			pending = &ev
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: %v\n", err)
		return 1
	}
	if pending == nil {
		return 0
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("approval required; run \"graphctl approve\" or \"graphctl deny\", then \"graphctl resume\"")
		return 0
	}
	return promptApproval(s, threadID)
}

// promptApproval asks the operator to approve or deny the thread's
// already-reported pending action, then resumes the run either way.
func promptApproval(s *session.Session, threadID string) int {
	ctx := context.Background()
	approved := confirm("approve this action?")

	var err error
	if approved {
		err = s.ApproveAction(ctx, threadID)
	} else {
		reason := ""
		fmt.Print("deny reason (optional): ")
		reader := bufio.NewReader(os.Stdin)
		if line, readErr := reader.ReadString('\n'); readErr == nil {
			reason = strings.TrimSpace(line)
		}
		err = s.DenyAction(ctx, threadID, reason)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: %v\n", err)
		return 1
	}

	return driveTurn(s, threadID, func(ctx context.Context, onEvent func(graphevent.Event)) error {
		return s.ResumeAgent(ctx, threadID, onEvent)
	})
}

func printEvent(e graphevent.Event) {
	switch e.Kind {
	case graphevent.WorkerStarted:
		fmt.Printf("→ worker %s started\n", e.Worker)
	case graphevent.Routing:
		fmt.Printf("→ routing to %s\n", e.Next)
	case graphevent.ToolCall:
		for _, t := range e.Tools {
			fmt.Printf("→ tool call: %s(%v)\n", t.Name, t.Args)
		}
	case graphevent.ToolResult:
		fmt.Printf("← tool result: %s\n", e.Result)
	case graphevent.ApprovalRequired:
		if e.Action != nil {
			fmt.Printf("⚠ approval required: %s wants to call %s (%s)\n", e.Action.WorkerName, e.Action.ToolName, e.Action.Description)
		}
	case graphevent.Token:
		fmt.Print(e.Token)
	case graphevent.Complete:
		fmt.Printf("\n✓ %s\n", e.Response)
	case graphevent.Error:
		fmt.Printf("✗ error: %s\n", e.Message)
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
