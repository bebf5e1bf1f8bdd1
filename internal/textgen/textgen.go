// Package textgen wraps the text-generation collaborator used for question
// generation, rubric scoring and feedback synthesis. The collaborator is
// treated as unreliable: every caller wraps Generate in a hard timeout and
// has a documented fallback for failures and malformed output.
package textgen

import "context"

// Generator produces text for a structured prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface. Used by tests.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
