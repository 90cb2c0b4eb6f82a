package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valkey-io/valkey-go"
)

var errReceiveEnded = errors.New("subscription ended")

// ValkeyTarget is a Target backed by a pair of valkey pub/sub channels.
// Payloads posted on it are published to outbox; message events are raised
// for payloads published to inbox. The counterpart of a ValkeyTarget is one
// with inbox and outbox swapped.
type ValkeyTarget struct {
	client     valkey.Client
	ownsClient bool
	inbox      string
	outbox     string
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	connected  bool
	subscribed bool
	listeners  *listenerSet
	closedChan chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
	options    ValkeyOptions
}

var _ Target = (*ValkeyTarget)(nil)

// PostMessage publishes the payload to the outbox channel
func (v *ValkeyTarget) PostMessage(payload any) error {
	// Close cancels v.ctx, which aborts a publish already in flight
	if !v.IsConnected() {
		return ErrTransportNotConnected
	}

	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(v.ctx, v.options.PublishTimeout)
	defer cancel()

	cmd := v.client.B().Publish().Channel(v.outbox).Message(string(data)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return nil
}

// AddEventListener registers a listener and starts the inbox subscription
// on first use.
func (v *ValkeyTarget) AddEventListener(l EventListener) (func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil, ErrTransportNotConnected
	}

	remove := v.listeners.add(l)

	if !v.subscribed {
		v.subscribed = true
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			v.subscriptionLoop()
		}()
	}

	return remove, nil
}

// subscriptionLoop keeps the inbox subscription alive until Close
func (v *ValkeyTarget) subscriptionLoop() {
	logger := v.options.Logger.With("inbox", v.inbox)
	policy := v.newBackOff()

	receive := func() error {
		return v.receive(policy)
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("valkey subscription dropped, retrying", "error", err, "retry_in", next)
	}

	for !v.shouldStop() {
		_ = backoff.RetryNotify(receive, backoff.WithContext(policy, v.ctx), notify)
	}

	logger.Debug("valkey subscription stopped")
}

func (v *ValkeyTarget) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = v.options.InitialInterval
	policy.MaxInterval = v.options.MaxInterval
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// receive runs one subscription attempt. A subscription that ended cleanly
// or stayed up past the initial interval restarts the backoff.
func (v *ValkeyTarget) receive(policy backoff.BackOff) error {
	subscriber := v.client.B().Subscribe().Channel(v.inbox).Build()
	started := time.Now()

	// Blocks until the connection drops or the context is cancelled
	err := v.client.Receive(v.ctx, subscriber, v.handleMessage)
	if v.shouldStop() {
		return backoff.Permanent(v.ctx.Err())
	}

	if err == nil || time.Since(started) >= v.options.InitialInterval {
		policy.Reset()
	}
	if err != nil {
		return err
	}
	return errReceiveEnded
}

// handleMessage raises message events for payloads arriving on the inbox
func (v *ValkeyTarget) handleMessage(msg valkey.PubSubMessage) {
	// A client can carry subscriptions for other targets
	if msg.Channel != v.inbox {
		return
	}

	payload, err := decodePayload([]byte(msg.Message))
	if err != nil {
		v.options.Logger.Warn("dropping undecodable message", "inbox", v.inbox, "error", err)
		return
	}

	if v.shouldStop() {
		return
	}

	v.listeners.dispatch(MessageEvent{Data: payload, Target: v})
}

// Close stops the subscription and completes all listeners. A client
// created by NewValkeyTargetWithAddress is closed as well.
func (v *ValkeyTarget) Close() error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return nil
	}
	v.connected = false
	v.mu.Unlock()

	v.once.Do(func() {
		close(v.closedChan)
		v.cancel()
		v.wg.Wait()

		for _, l := range v.listeners.drain() {
			l.close()
		}

		if v.ownsClient {
			v.client.Close()
		}
	})

	return nil
}

// IsConnected returns true until Close is called
func (v *ValkeyTarget) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

func (v *ValkeyTarget) shouldStop() bool {
	select {
	case <-v.closedChan:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}

// NewValkeyClient creates a new valkey client with common configuration
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	var clientOption valkey.ClientOption
	if len(options) > 0 {
		clientOption = options[0]
	}
	if len(clientOption.InitAddress) == 0 {
		clientOption.InitAddress = []string{address}
	}

	return valkey.NewClient(clientOption)
}

// NewValkeyTarget creates a target over an existing client. The client is
// not closed by the target.
func NewValkeyTarget(client valkey.Client, inbox, outbox string, opts ...ValkeyOption) *ValkeyTarget {
	ctx, cancel := context.WithCancel(context.Background())

	options := defaultValkeyOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ValkeyTarget{
		client:     client,
		inbox:      inbox,
		outbox:     outbox,
		ctx:        ctx,
		cancel:     cancel,
		connected:  true,
		listeners:  newListenerSet(),
		closedChan: make(chan struct{}),
		options:    options,
	}
}

// NewValkeyTargetWithAddress connects to address and creates a target that
// owns the resulting client.
func NewValkeyTargetWithAddress(address, inbox, outbox string, opts ...ValkeyOption) (*ValkeyTarget, error) {
	client, err := NewValkeyClient(address)
	if err != nil {
		return nil, err
	}

	target := NewValkeyTarget(client, inbox, outbox, opts...)
	target.ownsClient = true
	return target, nil
}
