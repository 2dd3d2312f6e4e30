package graphstate

// SupervisorNext resolves the supervisor's conditional out-edge: End if the
// routing decision is End, otherwise the named worker. The caller is
// responsible for having already applied the iteration-ceiling and error
// checks (§4.1 rules 1-2) before reaching this point.
func SupervisorNext(s State) NodeName {
	if s.Next == End {
		return End
	}
	return s.Next
}

// WorkerNext resolves a worker's conditional out-edge for worker name w in
// state s, applying the rules in order: an approval pause always wins, then
// task completion, then the per-worker iteration ceiling, and only then the
// self-loop.
func WorkerNext(w string, s State, tunables Tunables) NodeName {
	switch {
	case s.AwaitingApproval:
		return NodeHumanApproval
	case s.TaskComplete:
		return NodeSupervisor
	case s.WorkerIterationCount >= tunables.MaxWorkerIterations:
		return NodeSupervisor
	default:
		return NodeName(w)
	}
}

// ShouldForceEnd implements the supervisor's rules 1-2: the graph must
// terminate without consulting the routing model once either ceiling or an
// unrecovered error is present.
func ShouldForceEnd(s State, tunables Tunables) (bool, string) {
	if s.IterationCount >= tunables.MaxIterations {
		return true, "Reached the maximum number of steps for this turn."
	}
	if s.Error != "" {
		return true, "Something went wrong while processing your request."
	}
	return false, ""
}
