package httpapi

import "net/http"

func (a *API) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// handleUserIDs lists every cached identity, primarily so admins can
// address messages.
func (a *API) handleUserIDs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	identities, err := a.store.Identities().List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identities)
}
