package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"docregistry/internal/coerce"
	"docregistry/internal/domain"
	"docregistry/internal/lock"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
	"docregistry/internal/remote"
)

const documentCollection = "document"

// DocumentQuery is a remote query over document versions. It is not safe
// for concurrent use.
type DocumentQuery struct {
	backend *Backend
	cache   cache[*domain.DocumentVersion]
}

func (q *DocumentQuery) All(ctx context.Context) (query.DocumentQuery, error) {
	res, err := q.backend.client.ListDocuments(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	q.cache.replace(mapRecords(res.Results, mapper.Document))
	q.backend.logger.Debugf("[RemoteDocuments] Fetched %d documents", len(q.cache.items))
	return q, nil
}

// Filter supports exact lookups only. A document the repository does not
// know yields an empty result.
func (q *DocumentQuery) Filter(ctx context.Context, criteria query.Criteria) (query.DocumentQuery, error) {
	filters, err := query.ExactOnly(criteria)
	if err != nil {
		return nil, err
	}

	docs, err := q.lookup(ctx, filters)
	if err != nil && !errors.Is(err, remote.ErrDocumentNotFound) {
		return nil, err
	}

	q.cache.replace(docs)
	return q, nil
}

func (q *DocumentQuery) lookup(ctx context.Context, filters map[string]any) ([]*domain.DocumentVersion, error) {
	client := q.backend.client
	uuid, hasUUID := present(filters, "uuid")

	if identificatie, ok := present(filters, "identificatie"); ok {
		rec, err := client.GetDocument(ctx, fmt.Sprint(identificatie), true, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get document %v: %w", identificatie, err)
		}
		return []*domain.DocumentVersion{mapper.Document(rec)}, nil
	}

	if versie, ok := present(filters, "versie"); ok && hasUUID {
		versions, err := client.GetAllVersions(ctx, fmt.Sprint(uuid))
		if err != nil {
			return nil, fmt.Errorf("failed to get versions of %v: %w", uuid, err)
		}
		var docs []*domain.DocumentVersion
		label := fmt.Sprint(versie)
		for _, v := range versions {
			if v.Label == label {
				docs = append(docs, mapper.Document(v.Record))
			}
		}
		return docs, nil
	}

	if at, ok := present(filters, "registratie_op"); ok && hasUUID {
		instant, err := instantOf(at)
		if err != nil {
			return nil, err
		}
		versions, err := client.GetAllVersions(ctx, fmt.Sprint(uuid))
		if err != nil {
			return nil, fmt.Errorf("failed to get versions of %v: %w", uuid, err)
		}
		// The first qualifying version in repository order wins.
		for _, v := range versions {
			doc := mapper.Document(v.Record)
			if doc.BeginRegistratie.IsZero() {
				continue
			}
			if !doc.BeginRegistratie.After(instant) {
				return []*domain.DocumentVersion{doc}, nil
			}
		}
		return nil, nil
	}

	if hasUUID {
		rec, err := client.GetDocument(ctx, fmt.Sprint(uuid), false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get document %v: %w", uuid, err)
		}
		return []*domain.DocumentVersion{mapper.Document(rec)}, nil
	}

	res, err := client.ListDocuments(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return mapRecords(res.Results, mapper.Document), nil
}

// Get returns the only cached document. On a query that was never filtered
// the criteria are applied first.
func (q *DocumentQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.DocumentVersion, error) {
	if !q.cache.filtered {
		if _, err := q.Filter(ctx, criteria); err != nil {
			return nil, err
		}
	}
	return q.cache.sole(documentCollection)
}

// Create stores a document. The repository creates and updates through the
// same call, so an update is tried first and an explicit create only
// follows when the uuid is unknown.
func (q *DocumentQuery) Create(ctx context.Context, values query.Values) (*domain.DocumentVersion, error) {
	client := q.backend.client
	data := copyValues(values)

	if iot, ok := present(data, "informatieobjecttype"); ok {
		url, err := q.backend.opts.Resolver.Resolve(iot)
		if err != nil {
			return nil, fmt.Errorf("informatieobjecttype: %w", err)
		}
		data["informatieobjecttype"] = url
	}
	data["begin_registratie"] = time.Now().UTC()

	content := contentOf(data["inhoud"])
	uuid, _ := data["uuid"].(string)
	token, _ := data["lock"].(string)
	delete(data, "inhoud")
	delete(data, "lock")

	rec, err := client.UpdateDocument(ctx, uuid, token, data, content)
	if errors.Is(err, remote.ErrDocumentNotFound) {
		identificatie, _ := data["identificatie"].(string)
		rec, err = client.CreateDocument(ctx, identificatie, data, content)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	doc := mapper.Document(rec)
	q.cache.replace([]*domain.DocumentVersion{doc})
	q.backend.logger.Infof("[RemoteDocuments] Stored document %s version %d", doc.UUID, doc.Versie)
	return doc, nil
}

// Update pushes values to every cached document, each under its own lock
// unless values carries the token of a lock the caller already holds.
// An empty inhoud leaves the content alone. The cache is dropped afterwards
// since it no longer reflects the repository.
func (q *DocumentQuery) Update(ctx context.Context, values query.Values) (int, error) {
	data := copyValues(values)
	content := contentOf(data["inhoud"])
	held, _ := data["lock"].(string)
	delete(data, "inhoud")
	delete(data, "lock")

	updated := 0
	for _, doc := range q.cache.items {
		err := lock.WithToken(ctx, q.backend.locks, doc.Canonical, held, func(token string) error {
			_, err := q.backend.client.UpdateDocument(ctx, doc.UUID, token, data, content)
			return err
		})
		if err != nil {
			return updated, fmt.Errorf("failed to update document %s: %w", doc.UUID, err)
		}
		updated++
	}

	q.cache = cache[*domain.DocumentVersion]{}
	return updated, nil
}

// Delete removes every cached document. Documents the repository refuses
// to delete are logged and stay in the cache.
func (q *DocumentQuery) Delete(ctx context.Context) (int, map[string]int, error) {
	client := q.backend.client
	deleted := 0
	var remaining []*domain.DocumentVersion

	for i, doc := range q.cache.items {
		var err error
		if q.backend.opts.DeleteIsObliterate {
			err = client.ObliterateDocument(ctx, doc.UUID)
		} else {
			err = client.DeleteDocument(ctx, doc.UUID)
		}

		switch {
		case err == nil:
			deleted++
		case errors.Is(err, remote.ErrDocumentConflict):
			q.backend.logger.Warnf("[RemoteDocuments] Document %s (%s) could not be marked deleted: %v",
				doc.UUID, doc.Identificatie, err)
			remaining = append(remaining, doc)
		default:
			remaining = append(remaining, q.cache.items[i:]...)
			q.cache.items = remaining
			return deleted, map[string]int{documentCollection: deleted}, fmt.Errorf("failed to delete document %s: %w", doc.UUID, err)
		}
	}

	q.cache.items = remaining
	return deleted, map[string]int{documentCollection: deleted}, nil
}

func (q *DocumentQuery) Clone() query.DocumentQuery {
	return &DocumentQuery{backend: q.backend, cache: q.cache.clone()}
}

func (q *DocumentQuery) Iterate(context.Context) (iter.Seq[*domain.DocumentVersion], error) {
	return q.cache.seq(), nil
}

func (q *DocumentQuery) Len(context.Context) (int, error) {
	return len(q.cache.items), nil
}

// present reports whether key holds a usable value.
func present(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func contentOf(v any) []byte {
	switch c := v.(type) {
	case []byte:
		if len(c) == 0 {
			return nil
		}
		return c
	case string:
		if c == "" {
			return nil
		}
		return []byte(c)
	}
	return nil
}

func instantOf(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid registratie_op %q: %w", t, err)
		}
		return parsed, nil
	default:
		if ts, ok := coerce.Timestamp(v); ok {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid registratie_op %v", v)
}
