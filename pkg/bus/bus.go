package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

// MessageBus carries messages between channel adapters and the agent runtime.
// Publishing is safe for concurrent producers; consuming is intended for a
// single logical consumer per direction.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	done      chan struct{}
	closeOnce sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultBufferSize),
		outbound: make(chan OutboundMessage, defaultBufferSize),
		done:     make(chan struct{}),
	}
}

// PublishInbound enqueues a message decoded from a channel. It returns false
// when the bus is closed or the context expires before the message is queued.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

// ConsumeInbound blocks until an inbound message is available, the context
// expires, or the bus is closed.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a reply destined for a channel adapter.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- msg:
		return true
	}
}

// SubscribeOutbound blocks until an outbound message is available, the
// context expires, or the bus is closed.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

// Close shuts the bus down. Pending and future publish/consume calls return
// false. Close is idempotent.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}
