package insight

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a request rejected before any upstream call.
	ErrInvalidRequest = errors.New("invalid insight request")
	// ErrUpstreamUnavailable marks a network or timeout failure reaching
	// the text-generation service.
	ErrUpstreamUnavailable = errors.New("insight service unavailable")
	// ErrMalformedResponse marks a reachable service that returned an
	// unexpected response shape.
	ErrMalformedResponse = errors.New("malformed insight response")
)

const promptTemplate = `Analyze the following security alert and provide a concise summary and a brief, actionable insight or recommendation.

Alert Title: %q
Alert Description: %q

Format your response as:
Summary: [Concise summary]
Insight: [Brief actionable insight/recommendation]`

// Requestor produces on-demand, per-alert commentary. Each request is
// independent: no retries, no shared state between alerts.
type Requestor struct {
	generator Generator
}

func NewRequestor(generator Generator) *Requestor {
	return &Requestor{generator: generator}
}

// Request builds the fixed-shape prompt and sends a single upstream call.
func (r *Requestor) Request(ctx context.Context, title, description string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("%w: missing title", ErrInvalidRequest)
	}
	if description == "" {
		return "", fmt.Errorf("%w: missing description", ErrInvalidRequest)
	}

	prompt := fmt.Sprintf(promptTemplate, title, description)
	return r.generator.Generate(ctx, prompt)
}
