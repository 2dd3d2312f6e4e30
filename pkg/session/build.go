package session

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"graphcore/pkg/checkpoint"
	"graphcore/pkg/config"
	"graphcore/pkg/exec"
	"graphcore/pkg/graph"
	"graphcore/pkg/graphmetrics"
	"graphcore/pkg/graphstate"
	"graphcore/pkg/router"
	"graphcore/pkg/session/history"
	"graphcore/pkg/tools"
	"graphcore/pkg/worker"
)

// Build resolves cfg into a running Graph: one LLM client per worker role
// plus the supervisor, each worker's ToolProvider scoped to its role's
// tool set (roles.go), a shared local command executor, and a checkpoint
// store opened at cfg.DBPath. Metrics are wired against
// prometheus.DefaultRegisterer, matching the teacher's one-recorder-per-
// process convention.
func Build(cfg config.Config) (*graph.Graph, error) {
	store, err := checkpoint.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("session: open checkpoint store: %w", err)
	}

	supervisorClient, err := worker.NewClient(cfg.Supervisor)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("session: build supervisor client: %w", err)
	}

	executor := exec.NewLocalExec()

	workers := make(map[string]*worker.Worker, len(cfg.Workers))
	var workerInfos []router.WorkerInfo
	for name, binding := range cfg.Workers {
		r, ok := roles[name]
		if !ok {
			_ = store.Close()
			return nil, fmt.Errorf("session: worker %q has no known role tool set", name)
		}
		client, err := worker.NewClient(binding.Model)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("session: build client for worker %q: %w", name, err)
		}
		provider := tools.NewProvider(tools.AgentContext{
			Executor:      executor,
			WorkDir:       cfg.WorkDir,
			KnowledgeRoot: cfg.KnowledgeRoot,
		}, r.toolNames)
		workers[name] = worker.New(name, r.description, binding.SystemPrompt, provider, client)
		workerInfos = append(workerInfos, router.WorkerInfo{Name: name, Description: r.description})
	}
	// Stable ordering keeps the supervisor's prompt (and therefore its
	// routing behavior given the same model and state) deterministic
	// across process restarts with the same config.
	sort.Slice(workerInfos, func(i, j int) bool { return workerInfos[i].Name < workerInfos[j].Name })

	supervisor := router.New(workerInfos, supervisorClient, runtime.GOOS, userHome())
	supervisor.Tunables = router.Tunables{
		MaxMessages:      cfg.Tunables.MaxMessagesForSupervisor,
		MaxToolOutputLen: cfg.Tunables.MaxToolOutputLength,
	}

	g := graph.New(supervisor, workers, store, graphTunables(cfg.Tunables), cfg.Tunables.RecursionLimit)
	g.SetMetrics(graphmetrics.New(prometheus.DefaultRegisterer))
	return g, nil
}

// BuildHistory opens the chat-history store at cfg.DBPath, sharing the
// same on-disk file as the checkpoint store opened by Build.
func BuildHistory(cfg config.Config) (*history.Store, error) {
	return history.Open(cfg.DBPath)
}

// graphTunables narrows config.GraphTunables to the two ceilings
// graphstate itself enforces; the rest (context-window sizing, recursion
// limit) are consumed directly off cfg by the router and the graph.
func graphTunables(t config.GraphTunables) graphstate.Tunables {
	return graphstate.Tunables{MaxIterations: t.MaxIterations, MaxWorkerIterations: t.MaxWorkerIterations}
}

func userHome() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/"
}
