package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docregistry/internal/domain"
	"docregistry/internal/query"
)

type zaak struct{ id string }

func (z zaak) ResourcePath() string { return "/zaken/api/v1/zaken/" + z.id }

func documentURL(id string) string {
	return "http://testserver/documenten/api/v1/enkelvoudiginformatieobjecten/" + id
}

func TestUsageRightsCreate(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()
	doc := createDocument(t, b, query.Values{"identificatie": "foo"})

	rights, err := b.UsageRights().Create(ctx, query.Values{
		"informatieobject":         documentURL(doc.UUID),
		"omschrijving_voorwaarden": "alleen intern",
		"startdatum":               time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, doc.UUID, rights.Canonical.ID)

	flagged, err := b.Documents().Get(ctx, query.Criteria{"uuid": doc.UUID})
	require.NoError(t, err)
	require.NotNil(t, flagged.IndicatieGebruiksrecht)
	assert.True(t, *flagged.IndicatieGebruiksrecht)

	stored, err := b.UsageRights().Get(ctx, query.Criteria{"informatieobject": documentURL(doc.UUID)})
	require.NoError(t, err)
	assert.Equal(t, rights.UUID, stored.UUID)
	assert.Equal(t, "alleen intern", stored.OmschrijvingVoorwaarden)
	require.NotNil(t, stored.Startdatum)
	assert.Equal(t, 2019, stored.Startdatum.Year())
}

func TestUsageRightsForMissingDocument(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.UsageRights().Create(context.Background(), query.Values{"informatieobject": documentURL("missing")})
	assert.True(t, errors.Is(err, domain.ErrDoesNotExist))
}

func TestRelations(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()
	doc := createDocument(t, b, query.Values{"identificatie": "foo"})

	link := domain.ZaakRelation{InformatieobjectURL: documentURL(doc.UUID), Zaak: zaak{id: "1"}}
	rel, err := b.Relations().CreateFrom(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "zaak", rel.ObjectType)
	assert.Equal(t, "http://testserver/zaken/api/v1/zaken/1", rel.Zaak)
	assert.Empty(t, rel.Besluit)

	_, err = b.Relations().Create(ctx, query.Values{
		"informatieobject": documentURL(doc.UUID),
		"object_type":      "besluit",
		"object":           "http://elsewhere/besluiten/9",
	})
	require.NoError(t, err)

	q, err := b.Relations().Filter(ctx, query.Criteria{"informatieobject": documentURL(doc.UUID)})
	require.NoError(t, err)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := b.Relations().Get(ctx, query.Criteria{"zaak": zaak{id: "1"}})
	require.NoError(t, err)
	assert.Equal(t, rel.UUID, found.UUID)

	deleted, err := b.Relations().DeleteFor(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = b.Relations().DeleteFor(ctx, link)
	assert.True(t, errors.Is(err, domain.ErrDoesNotExist))

	all, err := b.Relations().All(ctx)
	require.NoError(t, err)
	n, _, err = all.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelationNeedsObject(t *testing.T) {
	b, _ := newTestBackend(t)

	_, err := b.Relations().Create(context.Background(), query.Values{
		"informatieobject": documentURL("x"),
		"object_type":      "zaak",
		"object":           "",
	})
	assert.Error(t, err)
}

func TestLockRepository(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()
	doc := createDocument(t, b, query.Values{"identificatie": "foo"})
	locks := b.locks

	require.NoError(t, locks.LockDocument(ctx, doc.UUID, "a"))
	require.NoError(t, locks.LockDocument(ctx, doc.UUID, "a"))
	assert.True(t, errors.Is(locks.LockDocument(ctx, doc.UUID, "b"), domain.ErrConflict))

	assert.True(t, errors.Is(locks.UnlockDocument(ctx, doc.UUID, "b"), domain.ErrInvalidLock))
	require.NoError(t, locks.UnlockDocument(ctx, doc.UUID, "a"))
	assert.True(t, errors.Is(locks.UnlockDocument(ctx, doc.UUID, "a"), domain.ErrNotLocked))

	assert.True(t, errors.Is(locks.LockDocument(ctx, "missing", "a"), domain.ErrDoesNotExist))
}
