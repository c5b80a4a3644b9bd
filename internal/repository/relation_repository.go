package repository

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"docregistry/internal/domain"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
)

const relationCollection = "object_relation"

const selectRelations = `SELECT o.*, c.lock FROM object_relations o JOIN canonicals c ON c.id = o.canonical_id`

var relationColumns = map[string]string{
	"uuid":             "o.uuid",
	"informatieobject": "o.informatieobject",
	"object_type":      "o.object_type",
	"zaak":             "o.zaak",
	"besluit":          "o.besluit",
}

// The relation translator speaks the repository's attribute names; these
// map them back onto columns.
var relationFields = map[string]string{
	mapper.AttrDocumentRef: "informatieobject",
	mapper.AttrObjectType:  "object_type",
	"zaak_url":             "zaak",
	"besluit_url":          "besluit",
}

type relationRow struct {
	domain.ObjectRelation
	Lock string `db:"lock"`
}

type RelationQuery struct {
	backend  *Backend
	criteria map[string]any
}

func (q *RelationQuery) columns(data map[string]any) (map[string]any, error) {
	translated, err := query.TranslateRelation(data, q.backend.opts.Resolver)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(translated))
	for key, value := range translated {
		if field, ok := relationFields[key]; ok {
			key = field
		}
		out[key] = value
	}
	return out, nil
}

func (q *RelationQuery) All(context.Context) (query.RelationQuery, error) {
	q.criteria = map[string]any{}
	return q, nil
}

func (q *RelationQuery) Filter(_ context.Context, criteria query.Criteria) (query.RelationQuery, error) {
	filters, err := q.columns(criteria)
	if err != nil {
		return nil, err
	}
	merged := merge(q.criteria, filters)
	if _, _, err := compile(merged, relationColumns, nil); err != nil {
		return nil, err
	}
	q.criteria = merged
	return q, nil
}

func (q *RelationQuery) fetch(ctx context.Context) ([]*domain.ObjectRelation, error) {
	conds, args, err := compile(q.criteria, relationColumns, nil)
	if err != nil {
		return nil, err
	}

	rows, err := selectRows[relationRow](ctx, q.backend.db, selectRelations, conds, args, "ORDER BY o.uuid")
	if err != nil {
		return nil, fmt.Errorf("failed to select relations: %w", err)
	}

	out := make([]*domain.ObjectRelation, 0, len(rows))
	for _, row := range rows {
		rel := row.ObjectRelation
		rel.Canonical = &domain.CanonicalIdentity{ID: rel.CanonicalID, Lock: row.Lock}
		out = append(out, &rel)
	}
	return out, nil
}

func (q *RelationQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.ObjectRelation, error) {
	narrowed, err := q.Clone().Filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	items, err := narrowed.(*RelationQuery).fetch(ctx)
	if err != nil {
		return nil, err
	}
	return sole(items, relationCollection)
}

func (q *RelationQuery) Create(ctx context.Context, values query.Values) (*domain.ObjectRelation, error) {
	data, err := q.columns(values)
	if err != nil {
		return nil, err
	}

	rel := domain.ObjectRelation{UUID: uuid.NewString()}
	rel.Informatieobject, _ = data["informatieobject"].(string)
	rel.ObjectType, _ = data["object_type"].(string)
	rel.Zaak, _ = data["zaak"].(string)
	rel.Besluit, _ = data["besluit"].(string)
	rel.CanonicalID = mapper.LastSegment(rel.Informatieobject)

	if rel.Object() == "" {
		return nil, fmt.Errorf("relation needs an object of type %q", rel.ObjectType)
	}

	_, err = q.backend.db.NamedExecContext(ctx, `
        INSERT INTO object_relations (uuid, canonical_id, informatieobject, object_type, zaak, besluit)
        VALUES (:uuid, :canonical_id, :informatieobject, :object_type, :zaak, :besluit)`, &rel)
	if err != nil {
		return nil, fmt.Errorf("failed to insert relation: %w", err)
	}

	rel.Canonical = &domain.CanonicalIdentity{ID: rel.CanonicalID}
	return &rel, nil
}

func (q *RelationQuery) Delete(ctx context.Context) (int, map[string]int, error) {
	items, err := q.fetch(ctx)
	if err != nil {
		return 0, nil, err
	}

	tx, err := q.backend.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rel := range items {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM object_relations WHERE uuid = ?`), rel.UUID); err != nil {
			return 0, nil, fmt.Errorf("failed to delete relation %s: %w", rel.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	return len(items), map[string]int{relationCollection: len(items)}, nil
}

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

func (q *RelationQuery) DeleteFor(ctx context.Context, relation any) (int, error) {
	objectType, document, object, err := query.RelationTarget(relation)
	if err != nil {
		return 0, err
	}

	rel, err := q.Get(ctx, query.Criteria{
		"informatieobject": document,
		"object_type":      objectType,
		"object":           object,
	})
	if err != nil {
		return 0, err
	}

	_, err = q.backend.db.ExecContext(ctx, q.backend.db.Rebind(`DELETE FROM object_relations WHERE uuid = ?`), rel.UUID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relation %s: %w", rel.UUID, err)
	}
	return 1, nil
}

func (q *RelationQuery) Clone() query.RelationQuery {
	return &RelationQuery{backend: q.backend, criteria: merge(q.criteria, nil)}
}

func (q *RelationQuery) Iterate(ctx context.Context) (iter.Seq[*domain.ObjectRelation], error) {
	items, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return seqOf(items), nil
}

func (q *RelationQuery) Len(ctx context.Context) (int, error) {
	items, err := q.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
