// Package inference is the client for the remote reasoning capability that
// stages may call for natural-language extraction or judgment. Every call is
// bounded by the caller's context; failures (timeout, missing configuration,
// malformed response) surface as errors that the fallback policy absorbs.
package inference

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no inference endpoint is configured.
var ErrNotConfigured = errors.New("inference: endpoint not configured")

// Request is a single prompt with optional system instructions.
type Request struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// Response is the structured text returned by the capability.
type Response struct {
	Text string `json:"text"`
}

// Client sends prompts to a reasoning provider.
type Client interface {
	// Infer sends a prompt and returns the response text. The call honors
	// ctx cancellation and deadline.
	Infer(ctx context.Context, req Request) (*Response, error)
}
