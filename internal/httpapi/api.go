package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"linkdesk.org/internal/blob"
	"linkdesk.org/internal/catalog"
	"linkdesk.org/internal/gate"
	"linkdesk.org/internal/imaging"
	"linkdesk.org/internal/obs"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Every route composes the same chain: resolve the
// caller's identity, apply the policy check, invoke the store or the image
// pipeline, serialize the result. No business logic lives here beyond that
// composition.
type API struct {
	mux      *http.ServeMux
	resolver gate.Resolver
	store    catalog.Store
	images   *imaging.Pipeline
	blobs    blob.Store
	probe    ReadyProbe
	version  string

	rateBurst  int
	ratePerSec int
}

func New(resolver gate.Resolver, store catalog.Store, blobs blob.Store, probe ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		resolver:   resolver,
		store:      store,
		images:     imaging.New(blobs),
		blobs:      blobs,
		probe:      probe,
		version:    version,
		rateBurst:  100,
		ratePerSec: 50,
	}

	a.mux.HandleFunc("/whoami", a.handleWhoami)
	a.mux.HandleFunc("/user-ids", a.handleUserIDs)

	a.mux.HandleFunc("/services", a.handleServices)
	a.mux.HandleFunc("/add-service", a.handleAddService)
	a.mux.HandleFunc("/update-service/", a.handleUpdateService)
	a.mux.HandleFunc("/delete-service/", a.handleDeleteService)
	a.mux.HandleFunc("/images/", a.handleImage)

	a.mux.HandleFunc("/add-message", a.handleAddMessage)
	a.mux.HandleFunc("/messages", a.handleMessages)
	a.mux.HandleFunc("/all-messages", a.handleAllMessages)
	a.mux.HandleFunc("/update-message/", a.handleUpdateMessage)
	a.mux.HandleFunc("/delete-message/", a.handleDeleteMessage)

	a.mux.HandleFunc("/add-favorite", a.handleAddFavorite)
	a.mux.HandleFunc("/favorites", a.handleFavorites)
	a.mux.HandleFunc("/delete-favorite/", a.handleDeleteFavorite)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, 16<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "linkdesk-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- identity composition ---

// identify resolves the caller or terminates the request. Failure is
// terminal: no handler runs without a resolved identity.
func (a *API) identify(w http.ResponseWriter, r *http.Request) (catalog.Identity, bool) {
	ident, err := a.resolver.Resolve(r.Context(), r)
	if err != nil {
		a.fail(w, r, err)
		return catalog.Identity{}, false
	}
	return ident, true
}

// requireAdmin resolves the caller and rejects non-admins with 403.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (catalog.Identity, bool) {
	ident, ok := a.identify(w, r)
	if !ok {
		return catalog.Identity{}, false
	}
	if !gate.IsAdmin(ident) {
		writeError(w, r, http.StatusForbidden, "forbidden", "admin group required")
		return catalog.Identity{}, false
	}
	return ident, true
}

// --- error mapping ---

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, gate.ErrUnavailable):
		writeError(w, r, http.StatusInternalServerError, "unavailable", "identity provider unavailable")
	case errors.Is(err, catalog.ErrInvalidInput), errors.Is(err, catalog.ErrAlreadyExists):
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, imaging.ErrUnreadable):
		writeError(w, r, http.StatusInternalServerError, "processing", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"kind":  kind,
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
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

// resourceID extracts the trailing path segment after prefix.
func resourceID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	id = strings.Trim(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
