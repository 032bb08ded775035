package models

import "context"

// Completer is implemented by provider clients that can run a single chat
// completion round. Implementations must not mutate the request.
type Completer interface {
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}
