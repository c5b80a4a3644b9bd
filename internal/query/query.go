// Package query defines the backend-agnostic query/command surface of the
// registry. Both the relational and the remote backend implement it, so
// callers never need to know which one serves a collection.
package query

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"docregistry/internal/domain"
)

// Criteria are filter arguments keyed by field name, optionally suffixed
// with a lookup ("versie__exact", "begin_registratie__lte").
type Criteria map[string]any

// Values are field values for create and update commands.
type Values map[string]any

// LookupExact is the default lookup when a key carries no suffix.
const LookupExact = "exact"

// ParseLookup splits "field__lookup" into its parts.
func ParseLookup(key string) (field, lookup string) {
	field, lookup, found := strings.Cut(key, "__")
	if !found || lookup == "" {
		return field, LookupExact
	}
	return field, lookup
}

// ExactOnly strips "__exact" suffixes and rejects every other lookup.
func ExactOnly(criteria Criteria) (map[string]any, error) {
	out := make(map[string]any, len(criteria))
	for key, value := range criteria {
		field, lookup := ParseLookup(key)
		if lookup != LookupExact {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLookup, key)
		}
		out[field] = value
	}
	return out, nil
}

// DocumentQuery is a request-scoped query builder over document versions.
// Instances are not safe for concurrent use.
type DocumentQuery interface {
	All(ctx context.Context) (DocumentQuery, error)
	Filter(ctx context.Context, criteria Criteria) (DocumentQuery, error)
	Get(ctx context.Context, criteria Criteria) (*domain.DocumentVersion, error)
	Create(ctx context.Context, values Values) (*domain.DocumentVersion, error)
	Update(ctx context.Context, values Values) (int, error)
	Delete(ctx context.Context) (int, map[string]int, error)
	Clone() DocumentQuery
	Iterate(ctx context.Context) (iter.Seq[*domain.DocumentVersion], error)
	Len(ctx context.Context) (int, error)
}

// UsageRightsQuery is the usage-rights counterpart of DocumentQuery.
type UsageRightsQuery interface {
	All(ctx context.Context) (UsageRightsQuery, error)
	Filter(ctx context.Context, criteria Criteria) (UsageRightsQuery, error)
	Get(ctx context.Context, criteria Criteria) (*domain.UsageRights, error)
	Create(ctx context.Context, values Values) (*domain.UsageRights, error)
	Clone() UsageRightsQuery
	Iterate(ctx context.Context) (iter.Seq[*domain.UsageRights], error)
	Len(ctx context.Context) (int, error)
}

// RelationQuery is the object-relation counterpart of DocumentQuery.
// CreateFrom and DeleteFor accept a domain.ZaakRelation or
// domain.BesluitRelation (or pointers to them).
type RelationQuery interface {
	All(ctx context.Context) (RelationQuery, error)
	Filter(ctx context.Context, criteria Criteria) (RelationQuery, error)
	Get(ctx context.Context, criteria Criteria) (*domain.ObjectRelation, error)
	Create(ctx context.Context, values Values) (*domain.ObjectRelation, error)
	Delete(ctx context.Context) (int, map[string]int, error)
	CreateFrom(ctx context.Context, relation any) (*domain.ObjectRelation, error)
	DeleteFor(ctx context.Context, relation any) (int, error)
	Clone() RelationQuery
	Iterate(ctx context.Context) (iter.Seq[*domain.ObjectRelation], error)
	Len(ctx context.Context) (int, error)
}
