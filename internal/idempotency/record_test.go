package idempotency

import (
	"encoding/json"
	"testing"
)

func TestCanonicalHash_IgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := CanonicalHash(json.RawMessage(`{"currency":"EUR","amount_cents":1500,"items":[{"sku":"SKU1","quantity":2}]}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := CanonicalHash([]byte("{\n  \"items\": [{\"quantity\": 2, \"sku\": \"SKU1\"}],\n  \"amount_cents\": 1500,\n  \"currency\": \"EUR\"\n}"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal hashes, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}

func TestCanonicalHash_StructsMatchRawJSON(t *testing.T) {
	type item struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	}
	structured, err := CanonicalHash(map[string]any{
		"items":        []item{{SKU: "SKU1", Quantity: 2}},
		"amount_cents": 1500,
		"currency":     "EUR",
	})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	raw, err := CanonicalHash(json.RawMessage(`{"amount_cents":1500,"currency":"EUR","items":[{"quantity":2,"sku":"SKU1"}]}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if structured != raw {
		t.Fatalf("expected struct and raw payloads to hash equally")
	}
}

func TestCanonicalHash_DifferentPayloads(t *testing.T) {
	a, _ := CanonicalHash(json.RawMessage(`{"amount_cents":1500}`))
	b, _ := CanonicalHash(json.RawMessage(`{"amount_cents":1501}`))
	if a == b {
		t.Fatalf("expected different hashes")
	}
}

func TestCanonicalHash_InvalidJSON(t *testing.T) {
	if _, err := CanonicalHash(json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}
