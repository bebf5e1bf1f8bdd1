// Package sandbox defines the isolated execution boundary for
// candidate-submitted code. Implementations must enforce a wall-clock
// timeout, a memory cap and an output cap, and must never run code inside
// the server process.
package sandbox

import (
	"context"
	"errors"
)

// ErrUnsupportedLanguage is returned when no interpreter is configured for
// the requested language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// RunSpec describes one execution of candidate code against one input.
type RunSpec struct {
	Language string
	Code     string
	Stdin    string
}

// Result is the observable outcome of a single run.
type Result struct {
	Stdout   string
	Stderr   string
	TimedOut bool
	ExitCode int
}

// Runner executes untrusted code in isolation.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (Result, error)
}
