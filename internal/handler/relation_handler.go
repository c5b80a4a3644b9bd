package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docregistry/internal/domain"
	"docregistry/internal/query"
)

func (h *Registry) ListUsageRights(w http.ResponseWriter, r *http.Request) {
	criteria := criteriaFrom(r.URL.Query())

	var (
		q   query.UsageRightsQuery
		err error
	)
	if len(criteria) == 0 {
		q, err = h.registry.UsageRights().All(r.Context())
	} else {
		q, err = h.registry.UsageRights().Filter(r.Context(), criteria)
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
	rights := []*domain.UsageRights{}
	for item := range seq {
		rights = append(rights, item)
	}
	writeJSON(w, http.StatusOK, rights)
}

func (h *Registry) GetUsageRights(w http.ResponseWriter, r *http.Request) {
	rights, err := h.registry.UsageRights().Get(r.Context(), query.Criteria{"uuid": chi.URLParam(r, "uuid")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rights)
}

func (h *Registry) CreateUsageRights(w http.ResponseWriter, r *http.Request) {
	values, err := decodeValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rights, err := h.registry.UsageRights().Create(r.Context(), values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rights)
}

func (h *Registry) ListRelations(w http.ResponseWriter, r *http.Request) {
	criteria := criteriaFrom(r.URL.Query())

	var (
		q   query.RelationQuery
		err error
	)
	if len(criteria) == 0 {
		q, err = h.registry.Relations().All(r.Context())
	} else {
		q, err = h.registry.Relations().Filter(r.Context(), criteria)
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
	relations := []*domain.ObjectRelation{}
	for rel := range seq {
		relations = append(relations, rel)
	}
	writeJSON(w, http.StatusOK, relations)
}

func (h *Registry) GetRelation(w http.ResponseWriter, r *http.Request) {
	rel, err := h.registry.Relations().Get(r.Context(), query.Criteria{"uuid": chi.URLParam(r, "uuid")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (h *Registry) CreateRelation(w http.ResponseWriter, r *http.Request) {
	values, err := decodeValues(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rel, err := h.registry.Relations().Create(r.Context(), values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (h *Registry) DeleteRelation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	q, err := h.registry.Relations().Filter(r.Context(), query.Criteria{"uuid": id})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	n, _, err := q.Delete(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if n == 0 {
		h.fail(w, r, fmt.Errorf("relation %s: %w", id, domain.ErrDoesNotExist))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
