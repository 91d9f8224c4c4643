package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"autopark.kz/internal/files"
	"autopark.kz/internal/fleet"
	"autopark.kz/internal/rbac"
)

// Error kinds of the response envelope. Clients branch on kind, not on the
// message text.
const (
	kindInvalidInput = "invalid_input"
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindBlocked      = "blocked"
	kindNotFound     = "not_found"
	kindConflict     = "conflict"
	kindRoleInUse    = "role_in_use"
	kindRateLimited  = "rate_limited"
	kindUnavailable  = "unavailable"
	kindInternal     = "internal"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respond wraps the payload in the success envelope.
func respond(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"success": false,
		"error": map[string]string{
			"kind":    kind,
			"message": msg,
		},
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, kindInvalidInput, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

// handleDomainError maps service sentinel errors onto the error envelope.
// The blocked case surfaces the expiry in the message.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *rbac.BlockedError
	switch {
	case errors.As(err, &blocked):
		writeError(w, r, http.StatusForbidden, kindBlocked, blocked.Error())
	case errors.Is(err, rbac.ErrBlocked):
		writeError(w, r, http.StatusForbidden, kindBlocked, err.Error())
	case errors.Is(err, rbac.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, kindUnauthorized, "unauthorized")
	case errors.Is(err, rbac.ErrForbidden):
		writeError(w, r, http.StatusForbidden, kindForbidden, err.Error())
	case errors.Is(err, rbac.ErrRoleInUse):
		writeError(w, r, http.StatusConflict, kindRoleInUse, err.Error())
	case errors.Is(err, rbac.ErrNotFound), errors.Is(err, fleet.ErrNotFound), errors.Is(err, files.ErrNotFound):
		writeError(w, r, http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, fleet.ErrConflict), errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, kindConflict, err.Error())
	case errors.Is(err, rbac.ErrInvalidInput), errors.Is(err, fleet.ErrInvalidInput), errors.Is(err, files.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, kindInvalidInput, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, kindInternal, "internal error")
	}
}
