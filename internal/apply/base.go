package apply

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds ExecuteWithRetry's attempt count and backoff base.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is 3 attempts with a 1s base delay.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}

// ExecuteWithRetry runs the action contract: dry-run short-circuits to
// Simulate, an idempotency-key hit short-circuits to the previously
// recorded Result, otherwise Execute is retried with exponential backoff
// on a non-blocking time.Timer (never time.Sleep on the calling goroutine)
// so a cancelled context is observed promptly even mid-backoff.
func ExecuteWithRetry(ctx context.Context, action Action, ac *Context, policy RetryPolicy) Result {
	start := time.Now()

	if ac.DryRun {
		res, err := action.Simulate(ctx, ac)
		if err != nil {
			res = newResult(action.ID(), action.Type(), false, nil, err.Error())
			res.Simulated = true
		}
		res.DurationSeconds = time.Since(start).Seconds()
		res.Timestamp = time.Now().UTC()
		return res
	}

	key := action.IdempotencyKey()
	if key != "" {
		if prev, ok := ac.ExecutedActions[key]; ok {
			return prev
		}
	}

	delay := policy.BaseDelay
	var lastErr string
	var attempt int
	for attempt < policy.MaxRetries {
		res, err := action.Execute(ctx, ac)
		if err != nil {
			lastErr = err.Error()
		} else {
			res.RetryCount = attempt
			res.DurationSeconds = time.Since(start).Seconds()
			res.Timestamp = time.Now().UTC()
			if res.Success {
				markExecuted(ac, key, res)
				return res
			}
			lastErr = res.Error
		}

		attempt++
		if attempt >= policy.MaxRetries {
			break
		}
		if !waitBackoff(ctx, delay) {
			break
		}
		delay *= 2
	}

	return Result{
		Success:         false,
		ActionID:        action.ID(),
		ActionType:      action.Type(),
		Outputs:         map[string]any{},
		Error:           fmt.Sprintf("failed after %d attempts: %s", policy.MaxRetries, lastErr),
		RetryCount:      attempt,
		DurationSeconds: time.Since(start).Seconds(),
		Timestamp:       time.Now().UTC(),
	}
}

// waitBackoff blocks for delay or until ctx is cancelled, reporting
// whether the caller should retry.
func waitBackoff(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func markExecuted(ac *Context, key string, res Result) {
	if key == "" {
		return
	}
	ac.ExecutedActions[key] = res
}
