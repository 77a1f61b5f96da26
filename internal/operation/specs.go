package operation

// Raw states reported by the control-plane APIs.
const (
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
	StateStopped   = "STOPPED"
	StateTimeout   = "TIMEOUT"
	StateError     = "ERROR"
	StateExpired   = "EXPIRED"
	StateReady     = "READY"
)

// JobSpec covers transform job runs.
var JobSpec = Spec{
	Name:      "ETL",
	Ready:     stateIn(StateSucceeded, StateFailed, StateStopped, StateTimeout, StateError, StateExpired),
	Succeeded: outcomeIs(StateSucceeded),
}

// CrawlerSpec covers both the raw and processed catalog crawlers. A crawler is
// ready once it is idle and has a last-crawl record to judge.
var CrawlerSpec = Spec{
	Name: "Crawler",
	Ready: func(o Observation) bool {
		return o.State == StateReady && o.Outcome != ""
	},
	Succeeded: outcomeIs(StateSucceeded),
}

// QuerySpec covers interactive query executions.
var QuerySpec = Spec{
	Name:      "Query",
	Ready:     stateIn(StateSucceeded, StateFailed, StateCancelled),
	Succeeded: outcomeIs(StateSucceeded),
}

func stateIn(states ...string) func(Observation) bool {
	set := make(map[string]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return func(o Observation) bool {
		_, ok := set[o.State]
		return ok
	}
}

func outcomeIs(state string) func(Observation) bool {
	return func(o Observation) bool {
		return o.Outcome == state
	}
}
