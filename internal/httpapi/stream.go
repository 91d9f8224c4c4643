package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"autopark.kz/internal/rbac"
)

// Stream handles Server-Sent Events for the live change feed.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, kindUnavailable, "streaming disabled")
		return
	}
	actor, ok := actorFor(w, r)
	if !ok {
		return
	}
	if err := a.rbac.RequirePermission(r.Context(), actor.ID, rbac.PermViewHistory); err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, kindInternal, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for record := range ch {
		payload, err := json.Marshal(record)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
