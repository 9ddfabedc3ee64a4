package apply

import (
	"context"
	"encoding/json"
	"fmt"
)

// PlanEntry is one action description as loaded from an apply plan
// (produced by the SOW/export stage), decoded into a Build call.
type PlanEntry struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	IdempotencyKey string `json:"idempotency_key"`
	Parameters     Params `json:"parameters"`
}

// ErrorPolicy controls what Run does when an action fails after retries.
type ErrorPolicy int

const (
	// ContinueOnError runs every remaining action regardless of earlier
	// failures, matching export's per-component isolation policy.
	ContinueOnError ErrorPolicy = iota
	// AbortOnError stops at the first failed action, leaving later plan
	// entries unexecuted.
	AbortOnError
)

// RunReport is the outcome of applying a full plan: every action's Result
// in plan order, plus whether a rollback was triggered.
type RunReport struct {
	Results     []Result `json:"results"`
	Aborted     bool     `json:"aborted"`
	RolledBack  bool     `json:"rolled_back"`
}

// Run walks plan in order, calling ExecuteWithRetry for each entry. On a
// failed result it either continues (ContinueOnError) or stops
// (AbortOnError); when stopAndRollback is true an abort additionally
// replays every already-executed action's Rollback in reverse order.
func Run(ctx context.Context, plan []PlanEntry, ac *Context, policy RetryPolicy, errPolicy ErrorPolicy, stopAndRollback bool) (RunReport, error) {
	report := RunReport{Results: make([]Result, 0, len(plan))}
	var executedActions []Action
	var executedRollbackData []json.RawMessage

	for _, entry := range plan {
		action, err := Build(entry.Type, entry.ID, entry.IdempotencyKey, entry.Parameters)
		if err != nil {
			report.Results = append(report.Results, Result{
				Success:    false,
				ActionID:   entry.ID,
				ActionType: entry.Type,
				Outputs:    map[string]any{},
				Error:      err.Error(),
			})
			if errPolicy == AbortOnError {
				report.Aborted = true
				break
			}
			continue
		}

		res := ExecuteWithRetry(ctx, action, ac, policy)
		report.Results = append(report.Results, res)

		if res.Success {
			executedActions = append(executedActions, action)
			executedRollbackData = append(executedRollbackData, res.RollbackData)
			continue
		}

		if errPolicy == AbortOnError {
			report.Aborted = true
			if stopAndRollback {
				rollbackAll(ctx, executedActions, executedRollbackData, ac)
				report.RolledBack = true
			}
			break
		}
	}

	return report, nil
}

// rollbackAll replays Rollback on every successfully executed, reversible
// action in reverse order. Rollback errors are best-effort: a failure on
// one action does not stop the others from attempting to unwind.
func rollbackAll(ctx context.Context, actions []Action, data []json.RawMessage, ac *Context) {
	for i := len(actions) - 1; i >= 0; i-- {
		rev, ok := actions[i].(Reversible)
		if !ok {
			continue
		}
		_ = rev.Rollback(ctx, ac, data[i])
	}
}

// ValidatePlan checks every entry's type against the closed registry
// before any action runs: an unknown type is a validation error caught up
// front rather than a failure deep in execution.
func ValidatePlan(plan []PlanEntry) error {
	for _, entry := range plan {
		if _, ok := registry[entry.Type]; !ok {
			return fmt.Errorf("apply: plan entry %q has unknown action type %q", entry.ID, entry.Type)
		}
	}
	return nil
}
