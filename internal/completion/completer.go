// Package completion wraps the text completion service the orchestrator
// talks to on every turn. The service is opaque: a prompt goes in, text
// comes out, and it may time out.
package completion

import "context"

// Completer is the completion-service collaborator interface
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Echo is a keyless development completer: it answers every prompt with a
// fixed message. Lets the full pipeline run locally without an API key,
// in the same spirit as the disabled storage mode.
type Echo struct {
	Response string
}

// Complete returns the canned response
func (e *Echo) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.Response != "" {
		return e.Response, nil
	}
	return "Thanks for your question. A team member will follow up with the details.", nil
}
