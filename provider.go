// Package messenger unifies postMessage-style channels (in-process message
// channels, shared scopes, valkey pub/sub) behind a single Provider
// interface with live, multicast subscriptions for inbound payloads.
package messenger

import "context"

// Provider is the transport-independent surface consumers talk to.
type Provider interface {
	// Messages subscribes to inbound payloads. Every call returns an
	// independent live view starting at the moment of the call; earlier
	// messages are not replayed. Cancelling ctx ends the subscription.
	Messages(ctx context.Context) (*Subscription, error)

	// Send dispatches one payload to the remote end. It does not wait for
	// delivery or acknowledgement.
	Send(ctx context.Context, payload any) error
}

// UnimplementedProvider can be embedded by providers that only implement
// part of the interface. Its operations fail with ErrNotImplemented.
type UnimplementedProvider struct{}

// Messages always fails with ErrNotImplemented.
func (UnimplementedProvider) Messages(context.Context) (*Subscription, error) {
	return nil, ErrNotImplemented
}

// Send always fails with ErrNotImplemented.
func (UnimplementedProvider) Send(context.Context, any) error {
	return ErrNotImplemented
}
