// Package idempotency de-duplicates requests by client-supplied key and caches
// their terminal responses.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict indicates the key was already used with a different payload.
	ErrConflict = errors.New("idempotency key reused with different payload")
	// ErrNotFound indicates an unknown key.
	ErrNotFound = errors.New("idempotency key not found")
)

// Record is the stored state of one idempotency key. ResponseStatus 0 means
// the owning request has not finished yet.
type Record struct {
	Key            string    `json:"key"`
	RequestHash    string    `json:"request_hash"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Completed reports whether a terminal response is stored.
func (r Record) Completed() bool {
	return r.ResponseStatus != 0
}

// Store persists idempotency records.
type Store interface {
	// GetOrCreate claims key for payload. existing is true when the key was
	// already claimed; ErrConflict is returned when the stored hash differs.
	GetOrCreate(ctx context.Context, key string, payload any) (rec Record, existing bool, err error)
	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (Record, error)
	// Finalize stores the terminal response for key.
	Finalize(ctx context.Context, key string, status int, body []byte, orderID string) error
}

// CanonicalHash returns the SHA-256 hex digest of payload encoded as compact
// JSON with lexicographically sorted object keys. Raw JSON input is decoded
// first so key order and whitespace in the input do not matter.
func CanonicalHash(payload any) (string, error) {
	raw, ok := rawJSON(payload)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return "", fmt.Errorf("canonicalize payload: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}

func rawJSON(payload any) ([]byte, bool) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
