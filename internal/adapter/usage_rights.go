package adapter

import (
	"context"
	"fmt"
	"iter"

	"docregistry/internal/domain"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
)

const usageRightsCollection = "usage_rights"

type UsageRightsQuery struct {
	backend *Backend
	cache   cache[*domain.UsageRights]
}

func (q *UsageRightsQuery) All(ctx context.Context) (query.UsageRightsQuery, error) {
	res, err := q.backend.client.ListUsageRights(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage rights: %w", err)
	}
	q.cache.replace(mapRecords(res.Results, mapper.UsageRights))
	return q, nil
}

// Filter always runs a full repository query with criteria as given.
func (q *UsageRightsQuery) Filter(ctx context.Context, criteria query.Criteria) (query.UsageRightsQuery, error) {
	res, err := q.backend.client.ListUsageRights(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage rights: %w", err)
	}
	q.cache.replace(mapRecords(res.Results, mapper.UsageRights))
	return q, nil
}

func (q *UsageRightsQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.UsageRights, error) {
	if !q.cache.filtered {
		if _, err := q.Filter(ctx, criteria); err != nil {
			return nil, err
		}
	}
	return q.cache.sole(usageRightsCollection)
}

// Create stores the usage rights and marks the referenced document as
// having them. The document must exist.
func (q *UsageRightsQuery) Create(ctx context.Context, values query.Values) (*domain.UsageRights, error) {
	document, _ := values["informatieobject"].(string)
	uuid := mapper.LastSegment(document)

	docs, err := q.backend.Documents().Filter(ctx, query.Criteria{"uuid": uuid})
	if err != nil {
		return nil, err
	}
	if n, _ := docs.Len(ctx); n == 0 {
		return nil, fmt.Errorf("informatieobject %s: %w", document, domain.ErrDoesNotExist)
	}

	rec, err := q.backend.client.CreateUsageRights(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage rights: %w", err)
	}

	if _, err := docs.Update(ctx, query.Values{"indicatie_gebruiksrecht": true}); err != nil {
		return nil, fmt.Errorf("failed to flag document %s: %w", uuid, err)
	}

	rights := mapper.UsageRights(rec)
	q.cache.replace([]*domain.UsageRights{rights})
	return rights, nil
}

func (q *UsageRightsQuery) Clone() query.UsageRightsQuery {
	return &UsageRightsQuery{backend: q.backend, cache: q.cache.clone()}
}

func (q *UsageRightsQuery) Iterate(context.Context) (iter.Seq[*domain.UsageRights], error) {
	return q.cache.seq(), nil
}

func (q *UsageRightsQuery) Len(context.Context) (int, error) {
	return len(q.cache.items), nil
}
