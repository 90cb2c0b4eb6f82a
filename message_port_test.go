package messenger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextPayload(t *testing.T, sub *Subscription) any {
	t.Helper()
	select {
	case payload, ok := <-sub.C():
		require.True(t, ok, "subscription ended before a payload arrived")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func assertNoPayload(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case payload, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected payload: %v", payload)
		}
	default:
	}
}

func waitDone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
}

// recordingTarget captures posted payloads without cloning them
type recordingTarget struct {
	mu     sync.Mutex
	posted []any
	err    error
}

func (r *recordingTarget) PostMessage(payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.posted = append(r.posted, payload)
	return nil
}

func (r *recordingTarget) AddEventListener(EventListener) (func(), error) {
	return func() {}, nil
}

func TestMessagePortMessageEndToEnd(t *testing.T) {
	x, y := NewMessageChannel()
	a := NewMessagePortMessage(WithTarget(x))
	b := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	sub, err := b.Messages(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, a.Send(ctx, map[string]any{"type": "ping", "id": 1}))

	// Payloads are cloned through JSON, so numbers arrive as float64
	assert.Equal(t, map[string]any{"type": "ping", "id": float64(1)}, nextPayload(t, sub))
	assertNoPayload(t, sub)
}

func TestMessagePortMessageBothDirections(t *testing.T) {
	x, y := NewMessageChannel()
	a := NewMessagePortMessage(WithTarget(x))
	b := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	subA, err := a.Messages(ctx)
	require.NoError(t, err)
	defer subA.Unsubscribe()

	require.NoError(t, b.Send(ctx, "pong"))
	assert.Equal(t, "pong", nextPayload(t, subA))
}

func TestMessagePortMessageFiltersForeignChannels(t *testing.T) {
	scope := NewPort()
	_, u := NewMessageChannel()
	remote, local := NewMessageChannel()
	u.Attach(scope)
	local.Attach(scope)

	provider := NewMessagePortMessage(WithTarget(scope))
	sub, err := provider.Messages(context.Background())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Arrives on the scope with the attached port as source
	require.NoError(t, remote.PostMessage("foreign"))
	scope.Dispatch("from-other", u)
	assertNoPayload(t, sub)

	scope.Dispatch("own", scope)
	assert.Equal(t, "own", nextPayload(t, sub))
}

func TestMessagePortMessageSourceFallback(t *testing.T) {
	scope := NewPort()
	provider := NewMessagePortMessage(WithTarget(scope))

	sub, err := provider.Messages(context.Background())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	scope.Dispatch("no-source", nil)
	assert.Equal(t, "no-source", nextPayload(t, sub))
}

func TestMessagePortMessageMulticast(t *testing.T) {
	x, y := NewMessageChannel()
	sender := NewMessagePortMessage(WithTarget(x))
	receiver := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	first, err := receiver.Messages(ctx)
	require.NoError(t, err)
	defer first.Unsubscribe()

	second, err := receiver.Messages(ctx)
	require.NoError(t, err)
	defer second.Unsubscribe()

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Send(ctx, i))
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, float64(i), nextPayload(t, first))
		assert.Equal(t, float64(i), nextPayload(t, second))
	}
}

func TestMessagePortMessageNoReplay(t *testing.T) {
	x, y := NewMessageChannel()
	sender := NewMessagePortMessage(WithTarget(x))
	receiver := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	require.NoError(t, sender.Send(ctx, "before"))

	sub, err := receiver.Messages(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, sender.Send(ctx, "after"))
	assert.Equal(t, "after", nextPayload(t, sub))
	assertNoPayload(t, sub)
}

func TestMessagePortMessageUnsubscribeStopsDelivery(t *testing.T) {
	x, y := NewMessageChannel()
	sender := NewMessagePortMessage(WithTarget(x))
	receiver := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	kept, err := receiver.Messages(ctx)
	require.NoError(t, err)
	defer kept.Unsubscribe()

	dropped, err := receiver.Messages(ctx)
	require.NoError(t, err)

	dropped.Unsubscribe()
	dropped.Unsubscribe()
	assert.NoError(t, dropped.Err())
	assert.Equal(t, 1, y.listeners.len())

	require.NoError(t, sender.Send(ctx, "late"))

	_, ok := <-dropped.C()
	assert.False(t, ok)
	assert.Equal(t, "late", nextPayload(t, kept))
}

func TestMessagePortMessageResubscribe(t *testing.T) {
	x, y := NewMessageChannel()
	sender := NewMessagePortMessage(WithTarget(x))
	receiver := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	sub, err := receiver.Messages(ctx)
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, sender.Send(ctx, "missed"))

	sub, err = receiver.Messages(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, sender.Send(ctx, "fresh"))
	assert.Equal(t, "fresh", nextPayload(t, sub))
	assertNoPayload(t, sub)
}

func TestMessagePortMessageContextCancel(t *testing.T) {
	_, y := NewMessageChannel()
	provider := NewMessagePortMessage(WithTarget(y))

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := provider.Messages(ctx)
	require.NoError(t, err)

	cancel()
	waitDone(t, sub)

	assert.ErrorIs(t, sub.Err(), context.Canceled)
	assert.Equal(t, 0, y.listeners.len())

	_, err = provider.Messages(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, provider.Send(ctx, "x"), context.Canceled)
}

func TestMessagePortMessageStreamFailure(t *testing.T) {
	_, y := NewMessageChannel()
	provider := NewMessagePortMessage(WithTarget(y))

	sub, err := provider.Messages(context.Background())
	require.NoError(t, err)

	boom := errors.New("event source broke")
	y.Fail(boom)

	waitDone(t, sub)
	assert.ErrorIs(t, sub.Err(), boom)

	// A new subscription is a new attempt
	again, err := provider.Messages(context.Background())
	require.NoError(t, err)
	defer again.Unsubscribe()

	y.Dispatch("ok", nil)
	assert.Equal(t, "ok", nextPayload(t, again))
}

func TestMessagePortMessageTargetClosed(t *testing.T) {
	x, y := NewMessageChannel()
	sender := NewMessagePortMessage(WithTarget(x))
	receiver := NewMessagePortMessage(WithTarget(y))
	ctx := context.Background()

	sub, err := receiver.Messages(ctx)
	require.NoError(t, err)

	require.NoError(t, x.Close())

	waitDone(t, sub)
	assert.NoError(t, sub.Err())

	assert.ErrorIs(t, sender.Send(ctx, "x"), ErrPortClosed)

	_, err = receiver.Messages(ctx)
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestMessagePortMessageSendPassesPayloadThrough(t *testing.T) {
	target := &recordingTarget{}
	provider := NewMessagePortMessage(WithTarget(target))

	payload := &struct{ Name string }{Name: "opaque"}
	require.NoError(t, provider.Send(context.Background(), payload))

	require.Len(t, target.posted, 1)
	assert.Same(t, payload, target.posted[0])
}

func TestMessagePortMessageSendError(t *testing.T) {
	boom := errors.New("channel rejected payload")
	provider := NewMessagePortMessage(WithTarget(&recordingTarget{err: boom}))

	assert.ErrorIs(t, provider.Send(context.Background(), "x"), boom)
}

func TestMessagePortMessageDefaultTarget(t *testing.T) {
	provider := NewMessagePortMessage()
	assert.Equal(t, DefaultTarget(), provider.Target())
	assert.Same(t, DefaultTarget(), NewMessagePortMessage().Target())

	explicit := NewMessagePortMessage(WithTarget(DefaultTarget()))
	assert.Equal(t, provider.Target(), explicit.Target())

	// nil never replaces the default
	assert.Equal(t, DefaultTarget(), NewMessagePortMessage(WithTarget(nil)).Target())
}

func TestMessagePortMessageDefaultTargetReceives(t *testing.T) {
	provider := NewMessagePortMessage()
	sub, err := provider.Messages(context.Background())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	defaultTarget().Dispatch("ambient", nil)
	assert.Equal(t, "ambient", nextPayload(t, sub))
}

func TestMessagePortMessageDefaultTargetTalksToCounterpart(t *testing.T) {
	self := NewMessagePortMessage()
	host := NewMessagePortMessage(WithTarget(DefaultCounterpart()))
	ctx := context.Background()

	fromSelf, err := host.Messages(ctx)
	require.NoError(t, err)
	defer fromSelf.Unsubscribe()

	fromHost, err := self.Messages(ctx)
	require.NoError(t, err)
	defer fromHost.Unsubscribe()

	require.NoError(t, self.Send(ctx, "to-host"))
	assert.Equal(t, "to-host", nextPayload(t, fromSelf))

	require.NoError(t, host.Send(ctx, "to-self"))
	assert.Equal(t, "to-self", nextPayload(t, fromHost))

	assertNoPayload(t, fromSelf)
	assertNoPayload(t, fromHost)
}

func TestMessagePortMessageDropsWhenBufferFull(t *testing.T) {
	x, y := NewMessageChannel()

	var mu sync.Mutex
	var drops []any
	receiver := NewMessagePortMessage(
		WithTarget(y),
		WithBufferSize(1),
		WithOnDrop(func(payload any) {
			mu.Lock()
			defer mu.Unlock()
			drops = append(drops, payload)
		}),
	)

	sub, err := receiver.Messages(context.Background())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, x.PostMessage("kept"))
	require.NoError(t, x.PostMessage("dropped"))

	assert.Equal(t, "kept", nextPayload(t, sub))
	mu.Lock()
	assert.Equal(t, []any{"dropped"}, drops)
	mu.Unlock()
}

func TestUnimplementedProvider(t *testing.T) {
	var provider Provider = UnimplementedProvider{}

	sub, err := provider.Messages(context.Background())
	assert.Nil(t, sub)
	assert.ErrorIs(t, err, ErrNotImplemented)

	assert.ErrorIs(t, provider.Send(context.Background(), "x"), ErrNotImplemented)
}
