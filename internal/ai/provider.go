// Package ai abstracts the conversational model providers behind a small
// chat interface so the orchestrator does not care which backend answers.
package ai

import "context"

// Message is one chat turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider answers a full conversation with a complete reply. The
// orchestrator inspects the whole reply for routing tags before emitting
// anything, so partial-token streaming buys nothing here.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
