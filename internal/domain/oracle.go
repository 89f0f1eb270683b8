package domain

import "context"

// Oracle is the opaque decision oracle: prompt text in, free text out.
// Implementations are expected to try an ordered list of named model
// variants and return the first success; exhausting every variant yields
// ErrNoDecision.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
