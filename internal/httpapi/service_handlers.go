package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"linkdesk.org/internal/catalog"
)

func (a *API) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	services, err := a.store.Services().List(r.Context(), ident.Groups)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (a *API) handleAddService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	if err := parseServiceForm(r); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	svc := catalog.Service{
		Name:   r.FormValue("name"),
		Target: r.FormValue("url"),
		Groups: formGroups(r),
	}

	raw, baseName, hasImage, err := imagePart(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if hasImage {
		res, err := a.images.Ingest(r.Context(), raw, baseName)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		svc.ImageKey = res.Key
		svc.ImageWidth = res.Width
		svc.ImageHeight = res.Height
		svc.DisplayWidth = res.DisplayWidth
		svc.DisplayHeight = res.DisplayHeight
	}

	if err := a.store.Services().Create(r.Context(), &svc); err != nil {
		// The blob was written first; don't leave it orphaned.
		a.images.Remove(r.Context(), svc.ImageKey)
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (a *API) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	id, ok := resourceID(r, "/update-service/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	if err := parseServiceForm(r); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	patch := catalog.ServicePatch{Groups: formGroups(r)}
	if v := strings.TrimSpace(r.FormValue("name")); v != "" {
		patch.Name = &v
	}
	if v := strings.TrimSpace(r.FormValue("url")); v != "" {
		patch.Target = &v
	}

	raw, baseName, hasImage, err := imagePart(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	var oldKey string
	if hasImage {
		current, err := a.store.Services().Get(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		oldKey = current.ImageKey
		res, err := a.images.Ingest(r.Context(), raw, baseName)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		patch.Image = &catalog.ImagePatch{
			Key:           res.Key,
			Width:         res.Width,
			Height:        res.Height,
			DisplayWidth:  res.DisplayWidth,
			DisplayHeight: res.DisplayHeight,
		}
	}

	svc, err := a.store.Services().Update(r.Context(), id, patch)
	if err != nil {
		if patch.Image != nil {
			a.images.Remove(r.Context(), patch.Image.Key)
		}
		a.fail(w, r, err)
		return
	}
	// New blob is in place and referenced; retiring the old one is
	// best-effort and never blocks the update.
	if patch.Image != nil {
		a.images.Remove(r.Context(), oldKey)
	}
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	id, ok := resourceID(r, "/delete-service/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	svc, err := a.store.Services().Delete(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.images.Remove(r.Context(), svc.ImageKey)
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	key, ok := resourceID(r, "/images/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	data, contentType, err := a.blobs.Get(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	_, _ = w.Write(data)
}

// --- form helpers ---

func parseServiceForm(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return r.ParseMultipartForm(16 << 20)
	}
	return r.ParseForm()
}

// formGroups accepts repeated "groups" values as well as a single delimited
// string, mirroring the shapes the provider emits for claims.
func formGroups(r *http.Request) []string {
	var out []string
	for _, v := range r.Form["groups"] {
		out = append(out, strings.Split(v, ",")...)
	}
	return catalog.NormalizeGroups(out)
}

func imagePart(r *http.Request) (raw []byte, baseName string, ok bool, err error) {
	if r.MultipartForm == nil {
		return nil, "", false, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	defer file.Close()
	raw, err = io.ReadAll(file)
	if err != nil {
		return nil, "", false, err
	}
	return raw, header.Filename, true, nil
}
