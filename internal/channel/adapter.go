package channel

import (
	"context"
	"fmt"
)

// Adapter is the minimum surface a channel integration provides.
type Adapter interface {
	Type() Type
}

// Sender delivers outbound messages. Adapters that cannot send (for
// example a webhook-only surface) simply do not implement it.
type Sender interface {
	Adapter
	Send(ctx context.Context, msg OutboundMessage) error
}

// DeliveryError reports a failed outbound send with enough context to
// decide whether a retry is worthwhile.
type DeliveryError struct {
	Channel    Type
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed (status %d): %v", e.Channel, e.StatusCode, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
