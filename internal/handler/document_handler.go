package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docregistry/internal/domain"
	"docregistry/internal/lock"
	"docregistry/internal/query"
	"docregistry/internal/storage"
)

type lockRequest struct {
	Lock string `json:"lock"`
}

type lockResponse struct {
	Lock string `json:"lock"`
}

func (h *Registry) ListDocuments(w http.ResponseWriter, r *http.Request) {
	criteria := criteriaFrom(r.URL.Query())

	var (
		q   query.DocumentQuery
		err error
	)
	if len(criteria) == 0 {
		q, err = h.registry.Documents().All(r.Context())
	} else {
		q, err = h.registry.Documents().Filter(r.Context(), criteria)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	seq, err := q.Iterate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	docs := []*domain.DocumentVersion{}
	for doc := range seq {
		docs = append(docs, doc)
	}
	writeJSON(w, http.StatusOK, docs)
}

// document loads the document named by the {uuid} route parameter. The
// versie and registratie_op query parameters select an older version.
func (h *Registry) document(r *http.Request) (*domain.DocumentVersion, error) {
	criteria := query.Criteria{"uuid": chi.URLParam(r, "uuid")}
	params := r.URL.Query()
	if versie := params.Get("versie"); versie != "" {
		n, err := strconv.Atoi(versie)
		if err != nil {
			return nil, fmt.Errorf("%w: versie %q", domain.ErrUnknownField, versie)
		}
		criteria["versie"] = n
	}
	if instant := params.Get("registratie_op"); instant != "" {
		criteria["registratie_op"] = instant
	}
	return h.registry.Documents().Get(r.Context(), criteria)
}

func (h *Registry) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.document(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Registry) CreateDocument(w http.ResponseWriter, r *http.Request) {
	values, err := decodeValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	doc, err := h.registry.Documents().Create(r.Context(), values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Infow("document stored", "uuid", doc.UUID, "versie", doc.Versie)
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Registry) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	values, err := decodeValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	q, err := h.registry.Documents().Filter(r.Context(), query.Criteria{"uuid": id})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := q.Update(r.Context(), values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if n == 0 {
		h.fail(w, r, fmt.Errorf("document %s: %w", id, domain.ErrDoesNotExist))
		return
	}

	doc, err := h.registry.Documents().Get(r.Context(), query.Criteria{"uuid": id})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Registry) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.document(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if doc.Locked() {
		h.fail(w, r, fmt.Errorf("document %s: %w", doc.UUID, domain.ErrConflict))
		return
	}

	q, err := h.registry.Documents().Filter(r.Context(), query.Criteria{"uuid": doc.UUID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, counts, err := q.Delete(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if n == 0 {
		h.fail(w, r, fmt.Errorf("document %s: %w", doc.UUID, domain.ErrConflict))
		return
	}
	h.logger.Infow("document deleted", "uuid", doc.UUID, "deleted", counts)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Registry) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.document(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.content == nil || doc.Inhoud == "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "document has no content"})
		return
	}

	obj, err := h.content.GetObject(r.Context(), storage.ContentKey(doc.Inhoud))
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "document has no content"})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", obj.ContentType())
	if size := obj.ContentLength(); size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if doc.Bestandsnaam != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Bestandsnaam))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Warnw("content stream interrupted", "uuid", doc.UUID, "error", err)
	}
}

func (h *Registry) LockDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.document(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	token, err := lock.Acquire(r.Context(), h.registry.Locks(), doc.Canonical)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lockResponse{Lock: token})
}

func (h *Registry) UnlockDocument(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	doc, err := h.document(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := lock.Release(r.Context(), h.registry.Locks(), doc.Canonical, req.Lock); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
