package httpapi

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

type componentHealth struct {
	OK    *bool  `json:"ok,omitempty"`
	Mode  string `json:"mode,omitempty"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	OK         bool                       `json:"ok"`
	Components map[string]componentHealth `json:"components"`
}

// health reports database reachability and each dependency's breaker state.
// Only a failed database ping makes the service unhealthy.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{OK: true, Components: map[string]componentHealth{}}

	dbOK := true
	db := componentHealth{OK: &dbOK}
	if err := h.repo.Ping(ctx); err != nil {
		dbOK = false
		db.Error = err.Error()
		resp.OK = false
	}
	resp.Components["db"] = db

	for name, breaker := range h.dependencies {
		if breaker == nil {
			resp.Components[name] = componentHealth{Mode: "stub", State: "CLOSED"}
			continue
		}
		resp.Components[name] = componentHealth{Mode: "http", State: string(breaker.State())}
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
