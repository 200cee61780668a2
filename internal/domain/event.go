package domain

import (
	"encoding/json"
	"time"
)

// SourceType identifies the class of upstream system an event came from.
// Each source has its own signature scheme, payload shape, and downstream
// integration.
type SourceType string

const (
	SourceRepositoryPush SourceType = "repository-push"
	SourceCommerceOrder  SourceType = "commerce-order"
	SourcePaymentEvent   SourceType = "payment-event"
	SourceGeneric        SourceType = "generic"
)

// KnownSources lists every source type the pipeline accepts.
var KnownSources = []SourceType{
	SourceRepositoryPush,
	SourceCommerceOrder,
	SourcePaymentEvent,
	SourceGeneric,
}

// ParseSourceType maps a URL path segment to a SourceType.
func ParseSourceType(s string) (SourceType, bool) {
	for _, src := range KnownSources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// InboundEvent is a received webhook delivery. Payload is the exact raw body
// the signature was computed over and is never mutated after receipt.
type InboundEvent struct {
	ID         string          `json:"id"`
	SourceType SourceType      `json:"source_type"`
	EventType  string          `json:"event_type"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
