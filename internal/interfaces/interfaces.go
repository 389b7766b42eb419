// Package interfaces holds the contracts between the pipeline and its
// collaborators, so the dispatcher and transport can be tested against
// fakes.
package interfaces

import (
	"context"

	"whatsapp-options-agent/internal/types"
)

// Broker is the narrow surface the pipeline consumes from the broker
// client. Every call blocks with a bounded timeout; implementations
// must re-authenticate transparently on session expiry, retrying the
// operation exactly once.
type Broker interface {
	PlaceOrder(ctx context.Context, params types.OrderParams) (types.OrderResponse, error)
	// Positions returns the current snapshot. Empty books yield an
	// empty slice, never an error.
	Positions(ctx context.Context) ([]types.Position, error)
	// ResolveToken maps a trading symbol to its instrument token, or
	// fails with an unresolved error. Callers must not fabricate tokens.
	ResolveToken(ctx context.Context, tradingSymbol string) (string, error)
}

// CommandHandler turns one inbound command into exactly one reply.
type CommandHandler interface {
	Handle(ctx context.Context, from, text string) string
}

// Replier delivers a plain-text reply to a sender.
type Replier interface {
	SendText(ctx context.Context, to, text string) error
}
