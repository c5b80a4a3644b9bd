package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"docregistry/internal/domain"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
)

const usageRightsCollection = "usage_rights"

const selectUsageRights = `SELECT u.*, c.lock FROM usage_rights u JOIN canonicals c ON c.id = u.canonical_id`

var usageRightsColumns = map[string]string{
	"uuid":                     "u.uuid",
	"informatieobject":         "u.informatieobject",
	"omschrijving_voorwaarden": "u.omschrijving_voorwaarden",
	"startdatum":               "u.startdatum",
	"einddatum":                "u.einddatum",
}

type usageRightsRow struct {
	domain.UsageRights
	Lock string `db:"lock"`
}

type UsageRightsQuery struct {
	backend  *Backend
	criteria map[string]any
}

func (q *UsageRightsQuery) All(context.Context) (query.UsageRightsQuery, error) {
	q.criteria = map[string]any{}
	return q, nil
}

func (q *UsageRightsQuery) Filter(_ context.Context, criteria query.Criteria) (query.UsageRightsQuery, error) {
	merged := merge(q.criteria, criteria)
	if _, _, err := compile(merged, usageRightsColumns, nil); err != nil {
		return nil, err
	}
	q.criteria = merged
	return q, nil
}

func (q *UsageRightsQuery) fetch(ctx context.Context) ([]*domain.UsageRights, error) {
	conds, args, err := compile(q.criteria, usageRightsColumns, nil)
	if err != nil {
		return nil, err
	}

	rows, err := selectRows[usageRightsRow](ctx, q.backend.db, selectUsageRights, conds, args, "ORDER BY u.uuid")
	if err != nil {
		return nil, fmt.Errorf("failed to select usage rights: %w", err)
	}

	out := make([]*domain.UsageRights, 0, len(rows))
	for _, row := range rows {
		rights := row.UsageRights
		rights.Canonical = &domain.CanonicalIdentity{ID: rights.CanonicalID, Lock: row.Lock}
		out = append(out, &rights)
	}
	return out, nil
}

func (q *UsageRightsQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.UsageRights, error) {
	narrowed, err := q.Clone().Filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	items, err := narrowed.(*UsageRightsQuery).fetch(ctx)
	if err != nil {
		return nil, err
	}
	return sole(items, usageRightsCollection)
}

// Create stores usage rights for an existing document and marks the
// document as having them.
func (q *UsageRightsQuery) Create(ctx context.Context, values query.Values) (*domain.UsageRights, error) {
	document, _ := values["informatieobject"].(string)
	canonical := mapper.LastSegment(document)

	var exists bool
	err := q.backend.db.GetContext(ctx, &exists, q.backend.db.Rebind(`SELECT EXISTS(SELECT 1 FROM canonicals WHERE id = ?)`), canonical)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check document: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("informatieobject %s: %w", document, domain.ErrDoesNotExist)
	}

	rights := domain.UsageRights{
		UUID:             uuid.NewString(),
		CanonicalID:      canonical,
		Informatieobject: document,
	}
	for key, value := range values {
		switch key {
		case "omschrijving_voorwaarden":
			if value != nil {
				rights.OmschrijvingVoorwaarden = fmt.Sprint(value)
			}
		case "startdatum", "einddatum":
			t, err := timeValue(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if key == "startdatum" {
				rights.Startdatum = t
			} else {
				rights.Einddatum = t
			}
		case "informatieobject", "uuid":
		default:
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, key)
		}
	}

	_, err = q.backend.db.NamedExecContext(ctx, `
        INSERT INTO usage_rights (uuid, canonical_id, informatieobject, omschrijving_voorwaarden, startdatum, einddatum)
        VALUES (:uuid, :canonical_id, :informatieobject, :omschrijving_voorwaarden, :startdatum, :einddatum)`, &rights)
	if err != nil {
		return nil, fmt.Errorf("failed to insert usage rights: %w", err)
	}

	docs, err := q.backend.Documents().Filter(ctx, query.Criteria{"uuid": canonical})
	if err != nil {
		return nil, err
	}
	if _, err := docs.Update(ctx, query.Values{"indicatie_gebruiksrecht": true}); err != nil {
		return nil, fmt.Errorf("failed to flag document %s: %w", canonical, err)
	}

	rights.Canonical = &domain.CanonicalIdentity{ID: canonical}
	return &rights, nil
}

func (q *UsageRightsQuery) Clone() query.UsageRightsQuery {
	return &UsageRightsQuery{backend: q.backend, criteria: merge(q.criteria, nil)}
}

func (q *UsageRightsQuery) Iterate(ctx context.Context) (iter.Seq[*domain.UsageRights], error) {
	items, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return seqOf(items), nil
}

func (q *UsageRightsQuery) Len(ctx context.Context) (int, error) {
	items, err := q.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
