// Package bus carries chat messages between channels and the command handler.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

const DefaultBufferSize = 100

type Option func(*MessageBus)

// WithBufferSize sets the capacity of both queues.
func WithBufferSize(n int) Option {
	return func(mb *MessageBus) {
		if n > 0 {
			mb.size = n
		}
	}
}

type MessageBus struct {
	size     int
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	done     chan struct{}
	closed   atomic.Bool
}

func NewMessageBus(opts ...Option) *MessageBus {
	mb := &MessageBus{size: DefaultBufferSize, done: make(chan struct{})}
	for _, opt := range opts {
		opt(mb)
	}
	mb.inbound = make(chan InboundMessage, mb.size)
	mb.outbound = make(chan OutboundMessage, mb.size)
	return mb
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	return publish(ctx, mb, mb.inbound, msg)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return consume(ctx, mb, mb.inbound)
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	return publish(ctx, mb, mb.outbound, msg)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return consume(ctx, mb, mb.outbound)
}

// Close stops every pending and future publish. Messages still queued are
// dropped.
func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}

func (mb *MessageBus) Closed() bool {
	return mb.closed.Load()
}

func publish[T any](ctx context.Context, mb *MessageBus, ch chan T, msg T) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case ch <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func consume[T any](ctx context.Context, mb *MessageBus, ch chan T) (T, bool) {
	var zero T
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-mb.done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}
