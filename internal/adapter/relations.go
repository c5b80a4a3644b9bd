package adapter

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"docregistry/internal/domain"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
	"docregistry/internal/remote"
)

const relationCollection = "object_relation"

// RelationQuery is a remote query over document relations. Field names are
// translated to the repository's attributes on the way in.
type RelationQuery struct {
	backend *Backend
	cache   cache[*domain.ObjectRelation]
}

func (q *RelationQuery) All(ctx context.Context) (query.RelationQuery, error) {
	res, err := q.backend.client.ListAllObjectRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	q.cache.replace(mapRecords(res.Results, mapper.Relation))
	return q, nil
}

func (q *RelationQuery) Filter(ctx context.Context, criteria query.Criteria) (query.RelationQuery, error) {
	filters, err := query.TranslateRelation(criteria, q.backend.opts.Resolver)
	if err != nil {
		return nil, err
	}
	// the repository filters on the url fields alone
	delete(filters, mapper.AttrObjectType)

	res, err := q.backend.client.ListObjectRelations(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations: %w", err)
	}
	q.cache.replace(mapRecords(res.Results, mapper.Relation))
	return q, nil
}

func (q *RelationQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.ObjectRelation, error) {
	if !q.cache.filtered {
		if _, err := q.Filter(ctx, criteria); err != nil {
			return nil, err
		}
	}
	return q.cache.sole(relationCollection)
}

func (q *RelationQuery) Create(ctx context.Context, values query.Values) (*domain.ObjectRelation, error) {
	data, err := query.TranslateRelation(values, q.backend.opts.Resolver)
	if err != nil {
		return nil, err
	}

	rec, err := q.backend.client.CreateObjectRelation(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation: %w", err)
	}

	rel := mapper.Relation(rec)
	q.cache.replace([]*domain.ObjectRelation{rel})
	return rel, nil
}

// Delete removes every cached relation. Relations the repository refuses
// to delete are logged and stay in the cache.
func (q *RelationQuery) Delete(ctx context.Context) (int, map[string]int, error) {
	deleted := 0
	var remaining []*domain.ObjectRelation

	for i, rel := range q.cache.items {
		err := q.backend.client.DeleteObjectRelation(ctx, rel.UUID)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, remote.ErrDocumentConflict):
			q.backend.logger.Warnf("[RemoteRelations] Relation %s could not be deleted: %v", rel.UUID, err)
			remaining = append(remaining, rel)
		default:
			q.cache.items = append(remaining, q.cache.items[i:]...)
			return deleted, map[string]int{relationCollection: deleted}, fmt.Errorf("failed to delete relation %s: %w", rel.UUID, err)
		}
	}

	q.cache.items = remaining
	return deleted, map[string]int{relationCollection: deleted}, nil
}

// CreateFrom stores the document side of a case or decision relation.
func (q *RelationQuery) CreateFrom(ctx context.Context, relation any) (*domain.ObjectRelation, error) {
	objectType, document, object, err := query.RelationTarget(relation)
	if err != nil {
		return nil, err
	}
	return q.Create(ctx, query.Values{
		"informatieobject": document,
		"object_type":      objectType,
		objectType:         object,
	})
}

// DeleteFor removes the relation matching a case or decision relation.
func (q *RelationQuery) DeleteFor(ctx context.Context, relation any) (int, error) {
	objectType, document, object, err := query.RelationTarget(relation)
	if err != nil {
		return 0, err
	}

	if _, err := q.Filter(ctx, query.Criteria{
		"informatieobject": document,
		"object_type":      objectType,
		"object":           object,
	}); err != nil {
		return 0, err
	}
	rel, err := q.cache.sole(relationCollection)
	if err != nil {
		return 0, err
	}

	if err := q.backend.client.DeleteObjectRelation(ctx, rel.UUID); err != nil {
		return 0, fmt.Errorf("failed to delete relation %s: %w", rel.UUID, err)
	}
	q.cache.items = nil
	return 1, nil
}

func (q *RelationQuery) Clone() query.RelationQuery {
	return &RelationQuery{backend: q.backend, cache: q.cache.clone()}
}

func (q *RelationQuery) Iterate(context.Context) (iter.Seq[*domain.ObjectRelation], error) {
	return q.cache.seq(), nil
}

func (q *RelationQuery) Len(context.Context) (int, error) {
	return len(q.cache.items), nil
}
