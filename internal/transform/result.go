// Package transform implements the pure, deterministic GitLab→GitHub format
// converters: CI, users, content, protections, submodules and webhooks,
// plus a gap aggregator. Every exported function here is a pure function
// of its inputs — no network calls, no time.Now() inside the transform
// itself — so results are reproducible for identical input.
package transform

import "time"

// Result is a transformer's outcome: success flag, optional data payload,
// accumulated errors/warnings, free-form metadata, and a timestamp
// supplied by the caller rather than computed here, so two calls with the
// same input and the same caller-supplied timestamp produce byte-identical
// JSON.
type Result struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Errors    []Note         `json:"errors"`
	Warnings  []Note         `json:"warnings"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// Note is one error or warning entry: a message plus optional context. A
// Note carries no timestamp of its own; the Result's Timestamp covers it.
type Note struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// NewResult starts a successful result; callers fill Data/Metadata and call
// AddError/AddWarning as issues surface during conversion.
func NewResult(ts time.Time) *Result {
	return &Result{
		Success:   true,
		Data:      map[string]any{},
		Metadata:  map[string]any{},
		Timestamp: ts,
	}
}

// AddError records a failure and flips Success false, matching
// TransformationResult.add_error.
func (r *Result) AddError(message string, context map[string]any) {
	r.Errors = append(r.Errors, Note{Message: message, Context: context})
	r.Success = false
}

// AddWarning records a non-fatal issue without affecting Success, matching
// TransformationResult.add_warning.
func (r *Result) AddWarning(message string, context map[string]any) {
	r.Warnings = append(r.Warnings, Note{Message: message, Context: context})
}
