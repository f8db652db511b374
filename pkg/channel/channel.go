package channel

import (
	"context"
	"errors"

	"talkbridge/pkg/bus"
)

// ErrNotConfigured reports an adapter whose required settings are missing.
// The caller should treat the channel as disabled rather than retry Run.
var ErrNotConfigured = errors.New("channel is not configured")

// Adapter bridges one external chat transport into the bridge.
//
// Run owns the adapter's inbound side: it blocks until the context is
// canceled or the adapter fails terminally. Send delivers one outbound
// message; it must only be called while Run is active.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}
