package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/moti-malka/gl2gh-sub000/internal/schema"
)

// LLMConfig configures the optional Azure OpenAI augmentation pass.
// A zero-value Endpoint disables it.
type LLMConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

func (c LLMConfig) Configured() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.Deployment != ""
}

// LLMClient is a minimal Azure OpenAI chat-completions client. There is no
// Azure OpenAI SDK in the retrieved dependency pack, and the nearest pack
// analog (itsneelabh-gomind/pkg/ai.OpenAIClient) targets the public OpenAI
// endpoint shape rather than Azure's deployment/api-version URL convention,
// so this follows that file's net/http+encoding/json idiom directly against
// Azure's endpoint instead.
type LLMClient struct {
	cfg        LLMConfig
	httpClient *http.Client
}

func NewLLMClient(cfg LLMConfig) *LLMClient {
	return &LLMClient{cfg: cfg, httpClient: &http.Client{Timeout: 60 * time.Second}}
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// llmEstimate is the strict JSON schema the model is instructed to return:
// {hours_low, hours_high, risk, breakdown{code,mrs,issues,ci},
// critical_notes, supported, not_supported}.
type llmEstimate struct {
	HoursLow      float64               `json:"hours_low"`
	HoursHigh     float64               `json:"hours_high"`
	Risk          string                `json:"risk"`
	Breakdown     map[string]llmHourBand `json:"breakdown"`
	CriticalNotes []string              `json:"critical_notes"`
	Supported     []string              `json:"supported"`
	NotSupported  []string              `json:"not_supported"`
}

type llmHourBand struct {
	HoursLow  float64 `json:"hours_low"`
	HoursHigh float64 `json:"hours_high"`
	Notes     string  `json:"notes"`
}

// Analyze sends prompt to the configured Azure OpenAI deployment and
// defensively parses the response. Callers fall back to the rule-based
// Estimate on any error.
func (c *LLMClient) Analyze(ctx context.Context, prompt string) (*llmEstimate, error) {
	content, err := c.chat(ctx, "You are a migration effort estimator. Respond with strict JSON only.", prompt, 0.2, 1200)
	if err != nil {
		return nil, err
	}
	return parseLLMResponse(content)
}

// CompleteText sends a free-form chat completion and returns the model's
// raw text, for callers that don't need the strict estimate JSON schema
// (internal/sow's narrative pass reuses this client rather than hand-rolling
// a second Azure OpenAI HTTP caller).
func (c *LLMClient) CompleteText(ctx context.Context, system, prompt string) (string, error) {
	return c.chat(ctx, system, prompt, 0.4, 1500)
}

func (c *LLMClient) chat(ctx context.Context, system, prompt string, temperature float64, maxTokens int) (string, error) {
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Deployment, c.cfg.APIVersion)

	payload := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure openai request: %w", err)
	}
	defer resp.Body.Close()

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode azure openai response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("azure openai returned status %d", resp.StatusCode)
	}
	if len(body.Choices) == 0 {
		return "", fmt.Errorf("azure openai response had no choices")
	}
	return body.Choices[0].Message.Content, nil
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// parseLLMResponse defensively extracts a JSON object from free-form model
// output: first a fenced code block, then a brace-matched scan for the
// first top-level {...} — tolerant of chatty models that wrap JSON in prose.
func parseLLMResponse(text string) (*llmEstimate, error) {
	candidate := ""
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if obj, ok := scanFirstBraceObject(text); ok {
		candidate = obj
	} else {
		return nil, fmt.Errorf("no JSON object found in LLM response")
	}

	var raw struct {
		HoursLow      float64                `json:"hours_low"`
		HoursHigh     float64                `json:"hours_high"`
		Risk          string                 `json:"risk"`
		Breakdown     map[string]llmHourBand `json:"breakdown"`
		CriticalNotes []string               `json:"critical_notes"`
		Supported     []string               `json:"supported"`
		NotSupported  []string               `json:"not_supported"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal LLM JSON: %w", err)
	}

	est := &llmEstimate{
		HoursLow:      raw.HoursLow,
		HoursHigh:     raw.HoursHigh,
		Risk:          raw.Risk,
		Breakdown:     raw.Breakdown,
		CriticalNotes: raw.CriticalNotes,
		Supported:     capList(raw.Supported, 5),
		NotSupported:  capList(raw.NotSupported, 5),
	}
	if est.Risk == "" {
		est.Risk = "medium"
	}
	return est, nil
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// scanFirstBraceObject finds the first balanced {...} span in text, tracking
// string literals so braces inside quoted strings don't confuse the count.
func scanFirstBraceObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// applyLLMResult converts a successfully parsed llmEstimate into a
// schema.Estimate, carrying the model's own breakdown when its bands sum to
// the model's top-level hours; a breakdown that does not sum is dropped
// rather than rederived.
func applyLLMResult(base *schema.Estimate, est *llmEstimate) *schema.Estimate {
	out := *base
	out.HoursLow = round1(est.HoursLow)
	out.HoursHigh = round1(est.HoursHigh)
	out.CriticalNotes = est.CriticalNotes
	out.Drivers = append(append([]string{}, est.Supported...), out.Drivers...)
	out.Confidence = confidenceFromRisk(est.Risk)

	if len(est.Breakdown) > 0 {
		bd := schema.Breakdown{
			Code:   toHourBand(est.Breakdown["code"]),
			MRs:    toHourBand(est.Breakdown["mrs"]),
			Issues: toHourBand(est.Breakdown["issues"]),
			CI:     toHourBand(est.Breakdown["ci"]),
		}
		sumLow := bd.Code.HoursLow + bd.MRs.HoursLow + bd.Issues.HoursLow + bd.CI.HoursLow
		sumHigh := bd.Code.HoursHigh + bd.MRs.HoursHigh + bd.Issues.HoursHigh + bd.CI.HoursHigh
		// Only attach a breakdown that actually sums to the top-level
		// estimate — schema.Validate rejects one that doesn't, and a
		// model can return numbers that don't quite add up.
		if closeEnough(sumLow, out.HoursLow) && closeEnough(sumHigh, out.HoursHigh) {
			out.Breakdown = &bd
		}
	}
	return &out
}

func closeEnough(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 0.05
}

func toHourBand(b llmHourBand) schema.HourBand {
	return schema.HourBand{HoursLow: b.HoursLow, HoursHigh: b.HoursHigh, Notes: b.Notes}
}

func confidenceFromRisk(risk string) schema.Confidence {
	switch risk {
	case "low":
		return schema.ConfidenceHigh
	case "high":
		return schema.ConfidenceLow
	default:
		return schema.ConfidenceMedium
	}
}
