package httpapi

import (
	"encoding/json"
	"net/http"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeInProgress          = "IDEMPOTENCY_IN_PROGRESS"
	CodeUpstream            = "UPSTREAM_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeTooLarge            = "PAYLOAD_TOO_LARGE"
	CodeRateLimited         = "RATE_LIMITED"

	HeaderReplayed = "Idempotent-Replayed"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Detail string       `json:"detail"`
	Errors []fieldError `json:"errors,omitempty"`
}

// encode returns the exact bytes written for v. Stored idempotent responses
// use the same encoding so replays match byte for byte.
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"detail":"` + CodeInternal + `"}`)
	}
	return data
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeRaw(w, status, encode(v))
}

func writeDetail(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Detail: code})
}

func writeValidation(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, errorBody{Detail: CodeValidation, Errors: errs})
}
