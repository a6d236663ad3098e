// Package channels defines the outbound delivery contract. Implementations
// send relay output to a destination (a chat, a terminal) on a best-effort,
// at-least-once basis; the relay never blocks on delivery guarantees.
package channels

import "context"

// Sender delivers a text message to a named destination.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// Func adapts a function to the Sender interface.
type Func func(ctx context.Context, destination, text string) error

func (f Func) Send(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}
