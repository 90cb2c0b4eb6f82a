package messenger

import (
	"log/slog"
	"time"
)

// DropHandler is called when a subscriber's buffer is full and a payload
// is discarded.
type DropHandler func(payload any)

type Option func(*Options)

// Options configure a MessagePortMessage.
type Options struct {
	Target     Target
	BufferSize int
	OnDrop     DropHandler
}

func defaultOptions() Options {
	return Options{
		Target:     DefaultTarget(),
		BufferSize: 100,
		OnDrop: func(payload any) {
			// Default: no-op
		},
	}
}

// WithTarget binds the provider to t instead of DefaultTarget.
func WithTarget(t Target) Option {
	return func(o *Options) {
		if t != nil {
			o.Target = t
		}
	}
}

func WithBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}

func WithOnDrop(handler DropHandler) Option {
	return func(o *Options) {
		o.OnDrop = handler
	}
}

type ValkeyOption func(*ValkeyOptions)

// ValkeyOptions configure a ValkeyTarget.
type ValkeyOptions struct {
	Logger          *slog.Logger
	PublishTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func defaultValkeyOptions() ValkeyOptions {
	return ValkeyOptions{
		Logger:          slog.New(slog.DiscardHandler),
		PublishTimeout:  5 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

func WithLogger(logger *slog.Logger) ValkeyOption {
	return func(o *ValkeyOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func WithPublishTimeout(d time.Duration) ValkeyOption {
	return func(o *ValkeyOptions) {
		if d > 0 {
			o.PublishTimeout = d
		}
	}
}

// WithRetryInterval sets the bounds of the exponential backoff used when
// the subscription to the inbox channel drops.
func WithRetryInterval(initial, max time.Duration) ValkeyOption {
	return func(o *ValkeyOptions) {
		if initial > 0 {
			o.InitialInterval = initial
		}
		if max >= o.InitialInterval {
			o.MaxInterval = max
		}
	}
}
