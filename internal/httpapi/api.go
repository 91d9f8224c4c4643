package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"autopark.kz/internal/audit"
	"autopark.kz/internal/files"
	"autopark.kz/internal/fleet"
	"autopark.kz/internal/obs"
	"autopark.kz/internal/rbac"
	"autopark.kz/internal/stream"
)

// ReadyProbe reports whether downstream dependencies can serve traffic.
type ReadyProbe struct {
	DB    *sql.DB
	Blobs files.BlobStore
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Blobs != nil {
		if err := rp.Blobs.Health(ctx); err != nil {
			return err
		}
	}
	return nil
}

// API is the HTTP layer of the fleet admin panel.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	rbac   *rbac.Service
	fleet  *fleet.Service
	files  *files.Service
	stream *stream.Stream
}

// Option configures the API.
type Option func(*API)

// WithFiles enables the attachment endpoints.
func WithFiles(svc *files.Service) Option {
	return func(a *API) { a.files = svc }
}

// WithStream enables the live change feed.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.stream = s }
}

func New(rp ReadyProbe, version string, rbacSvc *rbac.Service, fleetSvc *fleet.Service, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		rbac:       rbacSvc,
		fleet:      fleetSvc,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// fleet assets, their history and attachments
	a.mux.HandleFunc("/v1/assets", a.handleAssetsCollection)
	a.mux.HandleFunc("/v1/assets/", a.handleAssetResource)

	// roles and users
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// live change feed
	a.mux.HandleFunc("/v1/changes/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler with authentication applied.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "autopark-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "autopark-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// audit records an admin action in the operational audit log. Failures are
// swallowed; the audit log is advisory, the change log is authoritative.
func (a *API) audit(ctx context.Context, event, entity, entityID string, meta map[string]string) {
	fields := map[string]any{
		"entity":    entity,
		"entity_id": entityID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}
