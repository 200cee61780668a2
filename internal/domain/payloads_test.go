package domain

import (
	"encoding/json"
	"testing"
)

func TestParsePayloadRepositoryPush(t *testing.T) {
	raw := []byte(`{
		"repository": "acme/widgets",
		"ref": "refs/heads/main",
		"pusher": "dev1",
		"commits": [{"sha": "abc123", "message": "fix build"}]
	}`)

	v, err := ParsePayload(SourceRepositoryPush, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p, ok := v.(RepositoryPushPayload)
	if !ok {
		t.Fatalf("expected RepositoryPushPayload, got %T", v)
	}
	if p.Repository != "acme/widgets" || len(p.Commits) != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestParsePayloadValidation(t *testing.T) {
	tests := []struct {
		name   string
		source SourceType
		raw    string
	}{
		{"push missing repository", SourceRepositoryPush, `{"ref":"refs/heads/main"}`},
		{"push missing ref", SourceRepositoryPush, `{"repository":"acme/widgets"}`},
		{"order missing id", SourceCommerceOrder, `{"status":"paid","total_cents":100}`},
		{"order negative total", SourceCommerceOrder, `{"order_id":"o-1","total_cents":-5}`},
		{"payment missing id", SourcePaymentEvent, `{"status":"captured","currency":"USD"}`},
		{"payment missing currency", SourcePaymentEvent, `{"payment_id":"p-1","status":"captured"}`},
		{"not json", SourceGeneric, `{broken`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePayload(tt.source, []byte(tt.raw)); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestParsePayloadGenericPassesThrough(t *testing.T) {
	raw := []byte(`{"anything":["goes",1,true]}`)

	v, err := ParsePayload(SourceGeneric, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := v.(json.RawMessage); !ok {
		t.Errorf("expected raw JSON for generic source, got %T", v)
	}
}

func TestParseSourceType(t *testing.T) {
	if src, ok := ParseSourceType("payment-event"); !ok || src != SourcePaymentEvent {
		t.Errorf("expected payment-event source, got %v %v", src, ok)
	}
	if _, ok := ParseSourceType("unknown"); ok {
		t.Error("expected unknown source rejected")
	}
}
