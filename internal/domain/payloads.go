package domain

import (
	"encoding/json"
	"fmt"
)

// Payloads are decoded into a tagged variant per source type at the ingestion
// boundary. Components downstream of ingestion always see validated data, not
// an untyped map.

type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author,omitempty"`
}

type RepositoryPushPayload struct {
	Repository string   `json:"repository"`
	Ref        string   `json:"ref"`
	Pusher     string   `json:"pusher,omitempty"`
	Commits    []Commit `json:"commits"`
}

type OrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type CommerceOrderPayload struct {
	OrderID    string      `json:"order_id"`
	Status     string      `json:"status"`
	Currency   string      `json:"currency"`
	TotalCents int64       `json:"total_cents"`
	Items      []OrderItem `json:"items,omitempty"`
}

type PaymentEventPayload struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amount_cents"`
}

// ParsePayload decodes and validates a raw payload for the given source type.
// Generic payloads only need to be valid JSON. The raw bytes are still what
// gets stored and forwarded; the typed variant exists for validation and for
// callers that need structured fields.
func ParsePayload(source SourceType, raw []byte) (any, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}

	switch source {
	case SourceRepositoryPush:
		var p RepositoryPushPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding repository-push payload: %w", err)
		}
		if p.Repository == "" {
			return nil, fmt.Errorf("repository-push payload: repository is required")
		}
		if p.Ref == "" {
			return nil, fmt.Errorf("repository-push payload: ref is required")
		}
		return p, nil

	case SourceCommerceOrder:
		var p CommerceOrderPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding commerce-order payload: %w", err)
		}
		if p.OrderID == "" {
			return nil, fmt.Errorf("commerce-order payload: order_id is required")
		}
		if p.TotalCents < 0 {
			return nil, fmt.Errorf("commerce-order payload: total_cents must not be negative")
		}
		return p, nil

	case SourcePaymentEvent:
		var p PaymentEventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding payment-event payload: %w", err)
		}
		if p.PaymentID == "" {
			return nil, fmt.Errorf("payment-event payload: payment_id is required")
		}
		if p.Currency == "" {
			return nil, fmt.Errorf("payment-event payload: currency is required")
		}
		return p, nil

	case SourceGeneric:
		return json.RawMessage(raw), nil

	default:
		return nil, fmt.Errorf("unknown source type %q", source)
	}
}
