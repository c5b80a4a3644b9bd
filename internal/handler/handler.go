package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"docregistry/internal/domain"
	"docregistry/internal/query"
	"docregistry/internal/storage"
)

// Registry serves the document registry over HTTP. Content is optional;
// without it downloads answer 404.
type Registry struct {
	registry *query.Dispatcher
	content  storage.Storage
	logger   *zap.SugaredLogger
}

func NewRegistry(registry *query.Dispatcher, content storage.Storage, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		registry: registry,
		content:  content,
		logger:   logger.Named("handler"),
	}
}

// Mount registers every registry route on r.
func (h *Registry) Mount(r chi.Router) {
	r.Route("/enkelvoudiginformatieobjecten", func(r chi.Router) {
		r.Get("/", h.ListDocuments)
		r.Post("/", h.CreateDocument)

		r.Route("/{uuid}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Patch("/", h.UpdateDocument)
			r.Delete("/", h.DeleteDocument)
			r.Get("/download", h.DownloadDocument)
			r.Post("/lock", h.LockDocument)
			r.Post("/unlock", h.UnlockDocument)
		})
	})

	r.Route("/gebruiksrechten", func(r chi.Router) {
		r.Get("/", h.ListUsageRights)
		r.Post("/", h.CreateUsageRights)
		r.Get("/{uuid}", h.GetUsageRights)
	})

	r.Route("/objectinformatieobjecten", func(r chi.Router) {
		r.Get("/", h.ListRelations)
		r.Post("/", h.CreateRelation)
		r.Get("/{uuid}", h.GetRelation)
		r.Delete("/{uuid}", h.DeleteRelation)
	})

	r.Get("/backend", h.Backend)
}

func (h *Registry) Backend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"backend": h.registry.Backend()})
}

// criteriaFrom turns query parameters into filter criteria. Values of
// "__in" lookups are comma separated.
func criteriaFrom(params url.Values) query.Criteria {
	criteria := make(query.Criteria, len(params))
	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		if _, lookup := query.ParseLookup(key); lookup == "in" {
			criteria[key] = strings.Split(values[0], ",")
			continue
		}
		criteria[key] = values[0]
	}
	return criteria
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func decodeValues(r *http.Request) (query.Values, error) {
	var values query.Values
	if err := decodeJSON(r, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMultipleObjectsReturned),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidLock),
		errors.Is(err, domain.ErrNotLocked),
		errors.Is(err, domain.ErrUnsupportedLookup),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, query.ErrUnresolvable):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Registry) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	h.logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
