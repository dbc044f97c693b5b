package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"keygate.org/internal/catalog"
	"keygate.org/internal/credential"
	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
	"keygate.org/internal/token"
)

// RoleAdmin is required for mutating administrative endpoints.
const RoleAdmin = "Admin"

// ReadyProbe checks readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the identity core.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	dir      *identity.Directory
	verifier *credential.Verifier
	tokens   *token.Authority
	resolver *catalog.Resolver
}

// New wires routes over the provided collaborators.
func New(rp ReadyProbe, version string, dir *identity.Directory, verifier *credential.Verifier,
	tokens *token.Authority, resolver *catalog.Resolver) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		dir:        dir,
		verifier:   verifier,
		tokens:     tokens,
		resolver:   resolver,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/tokens", a.handleTokens)
	a.mux.HandleFunc("/v1/tokens/", a.handleTokenResource)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/tenants", a.handleTenants)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantResource)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/services", a.handleServices)
	a.mux.HandleFunc("/v1/endpoint-templates", a.handleEndpointTemplates)
	a.mux.HandleFunc("/v1/endpoints", a.handleEndpoints)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keygate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "keygate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// handleError maps core errors to HTTP responses.
func handleError(w http.ResponseWriter, err error) {
	var tplErr *catalog.TemplateError
	switch {
	case errors.Is(err, identity.ErrNotFound):
		respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, identity.ErrConflict):
		respondError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, identity.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, token.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, token.ErrPrincipalDisabled):
		respondError(w, http.StatusForbidden, "principal disabled")
	case errors.Is(err, token.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "invalid token")
	case errors.As(err, &tplErr):
		respondError(w, http.StatusInternalServerError, tplErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
