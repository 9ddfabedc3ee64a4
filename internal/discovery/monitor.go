package discovery

import (
	"sync"

	"github.com/moti-malka/gl2gh-sub000/internal/forgeclient"
)

// Snapshot is a point-in-time, race-free copy of the counters a status page
// wants from an in-progress discovery run.
type Snapshot struct {
	Mode              Mode   `json:"mode"`
	Done              bool   `json:"done"`
	APICallsUsed      int    `json:"api_calls_used"`
	MaxAPICalls       int    `json:"max_api_calls"`
	BudgetExceeded    bool   `json:"budget_exceeded"`
	GroupsDiscovered  int    `json:"groups_discovered"`
	ProjectsDiscovered int   `json:"projects_discovered"`
	ProjectsCompleted int    `json:"projects_completed"`
	PendingGroups     int    `json:"pending_groups"`
	Errors            int    `json:"errors"`
}

// StateMonitor lets Run publish progress snapshots for a goroutine other
// than the one driving the planner/executor loop to read safely —
// internal/statusapi's HTTP handler, specifically. Run owns the write side
// (Update); everything else only reads Snapshot.
type StateMonitor struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewStateMonitor() *StateMonitor {
	return &StateMonitor{}
}

// Update copies the counters of interest out of state/budget. Called from
// the same goroutine that owns state, once per planner/executor iteration.
func (m *StateMonitor) Update(state *AgentState, budget *forgeclient.Budget) {
	completed := 0
	for _, p := range state.Projects {
		if p.Completed {
			completed++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{
		Mode:               state.Mode,
		Done:               state.Done,
		APICallsUsed:       budget.Used(),
		MaxAPICalls:        budget.Max(),
		BudgetExceeded:     budget.Exceeded(),
		GroupsDiscovered:   len(state.Groups),
		ProjectsDiscovered: len(state.Projects),
		ProjectsCompleted:  completed,
		PendingGroups:      len(state.PendingGroupIDs),
		Errors:             state.Errors,
	}
}

// Snapshot returns the most recently published progress snapshot. The zero
// value (all fields unset) is returned before the first Update.
func (m *StateMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}
