package httpapi

import (
	"encoding/json"
	"net/http"

	"linkdesk.org/internal/catalog"
)

// stringList accepts both a single string and an array of strings, the two
// shapes clients send for recipient lists.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type addMessageRequest struct {
	Recipients stringList `json:"user_id"`
	Severity   string     `json:"type"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
}

type updateMessageRequest struct {
	Severity  *string `json:"type"`
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	Dismissed *bool   `json:"dismissed"`
}

// handleAddMessage fans out one record per recipient: a message always
// addresses exactly one identity.
func (a *API) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req addMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	recipients := catalog.NormalizeGroups(req.Recipients)
	if len(recipients) == 0 {
		writeError(w, r, http.StatusBadRequest, "validation", "at least one recipient is required")
		return
	}

	created := make([]catalog.Message, 0, len(recipients))
	for _, recipient := range recipients {
		m := catalog.Message{
			Recipient: recipient,
			Severity:  catalog.Severity(req.Severity),
			Title:     req.Title,
			Body:      req.Body,
		}
		if err := a.store.Messages().Create(r.Context(), &m); err != nil {
			a.fail(w, r, err)
			return
		}
		created = append(created, m)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident, ok := a.identify(w, r)
	if !ok {
		return
	}
	messages, err := a.store.Messages().List(r.Context(), ident.Key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleAllMessages lists every non-dismissed message, including those
// addressed to the calling admin.
func (a *API) handleAllMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	messages, err := a.store.Messages().ListAll(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut)
		return
	}
	id, ok := resourceID(r, "/update-message/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req updateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	patch := catalog.MessagePatch{
		Title:     req.Title,
		Body:      req.Body,
		Dismissed: req.Dismissed,
	}
	if req.Severity != nil {
		severity := catalog.Severity(*req.Severity)
		patch.Severity = &severity
	}
	m, err := a.store.Messages().Update(r.Context(), id, patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	id, ok := resourceID(r, "/delete-message/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	m, err := a.store.Messages().Delete(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
