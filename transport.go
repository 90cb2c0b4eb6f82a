package messenger

// Target is an endpoint of a postMessage-style channel.
// Implementations must be comparable (pointer types in this package) since
// providers match inbound events against the target they are bound to.
type Target interface {
	// PostMessage sends a payload to the counterpart of this endpoint.
	// It does not wait for delivery.
	PostMessage(payload any) error

	// AddEventListener registers a listener for message events raised on
	// this endpoint. The returned function removes the listener and is
	// safe to call more than once.
	AddEventListener(l EventListener) (remove func(), err error)
}

// MessageEvent is a message raised on a Target.
type MessageEvent struct {
	Data any
	// Source identifies the channel the message arrived over.
	// Some transports leave it nil.
	Source Target
	Target Target
}

// Origin returns the event's source, or its target when no source is set.
func (e MessageEvent) Origin() Target {
	if e.Source != nil {
		return e.Source
	}
	return e.Target
}

// EventListener receives events from a Target. OnError and OnClose are
// terminal: no further calls follow either of them.
type EventListener struct {
	OnMessage func(MessageEvent)
	OnError   func(error)
	OnClose   func()
}

func (l EventListener) message(ev MessageEvent) {
	if l.OnMessage != nil {
		l.OnMessage(ev)
	}
}

func (l EventListener) fail(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}

func (l EventListener) close() {
	if l.OnClose != nil {
		l.OnClose()
	}
}
