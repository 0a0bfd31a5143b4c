// Package ai describes the contract of the external generative-language model.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrMissingCredential is reported when no API key was configured for the provider.
	ErrMissingCredential = errors.New("ai api key is missing")
	// ErrUnparseableScore is reported when a model answer carries no numeric score.
	ErrUnparseableScore = errors.New("model response contains no score")
	// ErrEmptyResponse is reported when the model answered with no text at all.
	ErrEmptyResponse = errors.New("model returned empty response")
)

// Generator sends a single prompt to a language model and returns its text answer.
type Generator interface {
	GenerateContent(ctx context.Context, systemInstruction, message string) (string, error)
	Model() string
}
