package messenger

import (
	"slices"
	"sync"
)

// Port is an in-process message endpoint. Ports created by
// NewMessageChannel are entangled: posting on one raises a message event on
// the other. An unpaired port acts as a scope that other ports can be
// attached to.
type Port struct {
	mu        sync.RWMutex
	peer      *Port
	scopes    []*Port
	closed    bool
	listeners *listenerSet
}

var _ Target = (*Port)(nil)

var defaultChannel = sync.OnceValues(func() (*Port, *Port) {
	self, host := NewMessageChannel()
	return self, host
})

func defaultTarget() *Port {
	self, _ := defaultChannel()
	return self
}

// DefaultTarget returns the process-wide scope providers bind to when no
// target is given. Its counterpart is DefaultCounterpart.
func DefaultTarget() Target {
	return defaultTarget()
}

// DefaultCounterpart returns the port entangled with DefaultTarget: posting
// on it reaches providers bound to the default target, and their sends
// arrive on it. Closing either end closes the default channel for the
// whole process.
func DefaultCounterpart() *Port {
	_, host := defaultChannel()
	return host
}

// NewPort creates an unpaired port.
func NewPort() *Port {
	return &Port{listeners: newListenerSet()}
}

// NewMessageChannel creates two entangled ports.
func NewMessageChannel() (*Port, *Port) {
	a, b := NewPort(), NewPort()
	a.peer = b
	b.peer = a
	return a, b
}

// PostMessage clones the payload and raises it on the counterpart.
func (p *Port) PostMessage(payload any) error {
	p.mu.RLock()
	closed, peer := p.closed, p.peer
	p.mu.RUnlock()

	if closed {
		return ErrPortClosed
	}
	if peer == nil {
		return ErrNoCounterpart
	}

	data, err := structuredClone(payload)
	if err != nil {
		return err
	}

	peer.receive(data)
	return nil
}

// receive raises a message from the counterpart. Message channel events
// carry no source.
func (p *Port) receive(data any) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	scopes := slices.Clone(p.scopes)
	p.mu.RUnlock()

	p.listeners.dispatch(MessageEvent{Data: data, Target: p})

	for _, scope := range scopes {
		scope.Dispatch(data, p)
	}
}

// Dispatch raises a message event on the port as if it arrived from
// source. source may be nil.
func (p *Port) Dispatch(data any, source Target) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return
	}

	p.listeners.dispatch(MessageEvent{Data: data, Source: source, Target: p})
}

// Attach makes every message arriving on p also appear on scope, with p as
// the event source. The returned function detaches it again.
func (p *Port) Attach(scope *Port) (detach func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scopes = append(p.scopes, scope)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if i := slices.Index(p.scopes, scope); i >= 0 {
				p.scopes = slices.Delete(p.scopes, i, i+1)
			}
		})
	}
}

// AddEventListener registers l for message events raised on the port.
func (p *Port) AddEventListener(l EventListener) (func(), error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPortClosed
	}
	return p.listeners.add(l), nil
}

// Fail terminates every current listener with err, as when the event
// source breaks. The port stays usable for new listeners.
func (p *Port) Fail(err error) {
	for _, l := range p.listeners.drain() {
		l.fail(err)
	}
}

// Close disentangles the port and its counterpart. Listeners on both ends
// are completed and further posts fail with ErrPortClosed.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	peer := p.peer
	p.peer = nil
	p.scopes = nil
	p.mu.Unlock()

	for _, l := range p.listeners.drain() {
		l.close()
	}

	if peer != nil {
		return peer.Close()
	}
	return nil
}

// IsClosed reports whether Close has been called on the port or its
// counterpart.
func (p *Port) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
