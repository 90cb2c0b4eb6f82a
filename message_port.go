package messenger

import "context"

// MessagePortMessage is a Provider over a single postMessage-style Target,
// such as one end of a message channel or a shared scope.
type MessagePortMessage struct {
	target  Target
	options Options
}

var _ Provider = (*MessagePortMessage)(nil)

// NewMessagePortMessage creates a provider bound to DefaultTarget unless
// WithTarget is given.
func NewMessagePortMessage(opts ...Option) *MessagePortMessage {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &MessagePortMessage{
		target:  options.Target,
		options: options,
	}
}

// Target returns the target the provider is bound to.
func (m *MessagePortMessage) Target() Target {
	return m.target
}

// Messages subscribes to payloads of message events raised on the target.
// A shared scope can carry traffic from unrelated channels, so only events
// whose origin is the bound target are delivered.
//
// Each subscription buffers up to BufferSize payloads. When a subscriber
// falls behind and its buffer is full, further payloads are dropped for
// that subscriber only and reported to the OnDrop handler.
func (m *MessagePortMessage) Messages(ctx context.Context) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(m.options.BufferSize, m.options.OnDrop)
	remove, err := m.target.AddEventListener(EventListener{
		OnMessage: func(ev MessageEvent) {
			if ev.Origin() != m.target {
				return
			}
			sub.push(ev.Data)
		},
		OnError: sub.finish,
		OnClose: sub.Unsubscribe,
	})
	if err != nil {
		return nil, err
	}

	sub.bind(ctx, remove)
	return sub, nil
}

// Send posts the payload to the target unchanged.
func (m *MessagePortMessage) Send(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.target.PostMessage(payload)
}
