package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docregistry/internal/domain"
	"docregistry/internal/query"
)

type zaak struct{ id string }

func (z zaak) ResourcePath() string { return "/zaken/api/v1/zaken/" + z.id }

type besluit struct{ id string }

func (b besluit) ResourcePath() string { return "/besluiten/api/v1/besluiten/" + b.id }

func TestUsageRightsCreateFlagsDocument(t *testing.T) {
	repo := newFakeRepository()
	seed(repo)
	ctx := context.Background()
	backend := newTestBackend(repo, false)

	rights, err := backend.UsageRights().Create(ctx, query.Values{
		"informatieobject":         documentURL("uuid-foo"),
		"omschrijving_voorwaarden": "alleen intern",
	})
	require.NoError(t, err)

	assert.Equal(t, "ur-1", rights.UUID)
	assert.Equal(t, "uuid-foo", rights.Canonical.ID)
	assert.Equal(t, "alleen intern", rights.OmschrijvingVoorwaarden)

	require.Len(t, repo.updates, 1)
	assert.Equal(t, "uuid-foo", repo.updates[0].uuid)
	assert.Equal(t, true, repo.updates[0].data["indicatie_gebruiksrecht"])

	doc, err := backend.Documents().Get(ctx, query.Criteria{"uuid": "uuid-foo"})
	require.NoError(t, err)
	require.NotNil(t, doc.IndicatieGebruiksrecht)
	assert.True(t, *doc.IndicatieGebruiksrecht)
}

func TestUsageRightsForMissingDocument(t *testing.T) {
	repo := newFakeRepository()
	seed(repo)
	backend := newTestBackend(repo, false)

	_, err := backend.UsageRights().Create(context.Background(), query.Values{"informatieobject": documentURL("missing")})
	assert.True(t, errors.Is(err, domain.ErrDoesNotExist))
	assert.Zero(t, repo.count("createUsageRights"))
	assert.Empty(t, repo.rights)
	assert.Empty(t, repo.updates)
}

func TestUsageRightsTrailingSlash(t *testing.T) {
	repo := newFakeRepository()
	seed(repo)
	backend := newTestBackend(repo, false)

	rights, err := backend.UsageRights().Create(context.Background(), query.Values{"informatieobject": documentURL("uuid-foo") + "/"})
	require.NoError(t, err)
	assert.NotNil(t, rights)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, "uuid-foo", repo.updates[0].uuid)
}

func TestUsageRightsFilter(t *testing.T) {
	repo := newFakeRepository()
	seed(repo)
	ctx := context.Background()
	backend := newTestBackend(repo, false)

	for _, uuid := range []string{"uuid-foo", "uuid-bar"} {
		_, err := backend.UsageRights().Create(ctx, query.Values{"informatieobject": documentURL(uuid)})
		require.NoError(t, err)
	}

	filtered, err := backend.UsageRights().Filter(ctx, query.Criteria{"informatieobject": documentURL("uuid-bar")})
	require.NoError(t, err)
	n, err := filtered.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := backend.UsageRights().All(ctx)
	require.NoError(t, err)
	_, err = all.Get(ctx, nil)
	assert.True(t, errors.Is(err, domain.ErrMultipleObjectsReturned))

	clone := all.Clone()
	n, err = clone.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelationCreate(t *testing.T) {
	repo := newFakeRepository()
	q := newTestBackend(repo, false).Relations()

	rel, err := q.Create(context.Background(), query.Values{
		"informatieobject": documentURL("uuid-foo"),
		"object_type":      "zaak",
		"zaak":             zaak{id: "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "zaak", rel.ObjectType)
	assert.Equal(t, "http://testserver/zaken/api/v1/zaken/1", rel.Zaak)
	assert.Equal(t, "uuid-foo", rel.Canonical.ID)

	require.Len(t, repo.relations, 1)
	stored := repo.relations[0]
	assert.Equal(t, "zaak", stored["related_object_type"])
	assert.Equal(t, documentURL("uuid-foo"), stored["enkelvoudiginformatieobject"])
	assert.NotContains(t, stored, "object")
	assert.NotContains(t, stored, "object_type")
}

func TestRelationCreateFromAndDeleteFor(t *testing.T) {
	repo := newFakeRepository()
	backend := newTestBackend(repo, false)
	ctx := context.Background()

	zaakRelation := domain.ZaakRelation{InformatieobjectURL: documentURL("uuid-foo"), Zaak: zaak{id: "1"}}
	besluitRelation := &domain.BesluitRelation{InformatieobjectURL: documentURL("uuid-foo"), Besluit: besluit{id: "2"}}

	_, err := backend.Relations().CreateFrom(ctx, zaakRelation)
	require.NoError(t, err)
	rel, err := backend.Relations().CreateFrom(ctx, besluitRelation)
	require.NoError(t, err)
	assert.Equal(t, "http://testserver/besluiten/api/v1/besluiten/2", rel.Object())

	all, err := backend.Relations().All(ctx)
	require.NoError(t, err)
	n, err := all.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := backend.Relations().DeleteFor(ctx, zaakRelation)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	require.Len(t, repo.relations, 1)
	assert.Equal(t, "besluit", repo.relations[0]["related_object_type"])

	_, err = backend.Relations().DeleteFor(ctx, zaakRelation)
	assert.True(t, errors.Is(err, domain.ErrDoesNotExist))
}

func TestRelationDelete(t *testing.T) {
	repo := newFakeRepository()
	backend := newTestBackend(repo, false)
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		_, err := backend.Relations().CreateFrom(ctx, domain.ZaakRelation{InformatieobjectURL: documentURL("uuid-foo"), Zaak: zaak{id: id}})
		require.NoError(t, err)
	}

	filtered, err := backend.Relations().Filter(ctx, query.Criteria{"informatieobject": documentURL("uuid-foo")})
	require.NoError(t, err)

	n, counts, err := filtered.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]int{"object_relation": 2}, counts)
	assert.Empty(t, repo.relations)
}

func TestRelationFilterRejectsLookups(t *testing.T) {
	q := newTestBackend(newFakeRepository(), false).Relations()

	_, err := q.Filter(context.Background(), query.Criteria{"zaak__in": []string{"a"}})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedLookup))
}
