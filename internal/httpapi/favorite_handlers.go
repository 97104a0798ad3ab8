package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"linkdesk.org/internal/catalog"
)

type addFavoriteRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (a *API) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	var req addFavoriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	fav := catalog.Favorite{
		Owner: ident.Key,
		URL:   req.URL,
		Title: req.Title,
	}
	if err := a.store.Favorites().Create(r.Context(), &fav); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (a *API) handleFavorites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	favorites, err := a.store.Favorites().List(r.Context(), ident.Key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favorites)
}

// handleDeleteFavorite removes one of the caller's own favorites. The URL
// arrives percent-encoded as the trailing path segment, so the raw path is
// decoded here instead of relying on the router's normalization.
func (a *API) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	encoded := strings.TrimPrefix(r.URL.EscapedPath(), "/delete-favorite/")
	target, err := url.PathUnescape(encoded)
	if err != nil || strings.TrimSpace(target) == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	fav, err := a.store.Favorites().Delete(r.Context(), ident.Key, target)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fav)
}
