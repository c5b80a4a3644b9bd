package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docregistry/internal/domain"
	"docregistry/internal/lock"
	"docregistry/internal/mapper"
	"docregistry/internal/query"
	"docregistry/internal/storage"
)

const documentCollection = "document"

// versionStep is one whole version in the Versie encoding.
const versionStep = 100

const selectDocuments = `SELECT v.*, c.lock FROM document_versions v JOIN canonicals c ON c.id = v.canonical_id`

const latestVersion = `v.versie = (SELECT MAX(m.versie) FROM document_versions m WHERE m.uuid = v.uuid)`

const insertDocument = `
        INSERT INTO document_versions (
            uuid, canonical_id, identificatie, bronorganisatie, creatiedatum, titel,
            vertrouwelijkheidaanduiding, auteur, status, formaat, taal, bestandsnaam,
            inhoud, link, beschrijving, ontvangstdatum, verzenddatum,
            indicatie_gebruiksrecht, integriteit_algoritme, integriteit_waarde,
            integriteit_datum, informatieobjecttype, begin_registratie, versie
        ) VALUES (
            :uuid, :canonical_id, :identificatie, :bronorganisatie, :creatiedatum, :titel,
            :vertrouwelijkheidaanduiding, :auteur, :status, :formaat, :taal, :bestandsnaam,
            :inhoud, :link, :beschrijving, :ontvangstdatum, :verzenddatum,
            :indicatie_gebruiksrecht, :integriteit_algoritme, :integriteit_waarde,
            :integriteit_datum, :informatieobjecttype, :begin_registratie, :versie
        )`

const updateDocument = `
        UPDATE document_versions SET
            identificatie = :identificatie,
            bronorganisatie = :bronorganisatie,
            creatiedatum = :creatiedatum,
            titel = :titel,
            vertrouwelijkheidaanduiding = :vertrouwelijkheidaanduiding,
            auteur = :auteur,
            status = :status,
            formaat = :formaat,
            taal = :taal,
            bestandsnaam = :bestandsnaam,
            inhoud = :inhoud,
            link = :link,
            beschrijving = :beschrijving,
            ontvangstdatum = :ontvangstdatum,
            verzenddatum = :verzenddatum,
            indicatie_gebruiksrecht = :indicatie_gebruiksrecht,
            integriteit_algoritme = :integriteit_algoritme,
            integriteit_waarde = :integriteit_waarde,
            integriteit_datum = :integriteit_datum,
            informatieobjecttype = :informatieobjecttype
        WHERE uuid = :uuid AND versie = :versie`

var documentColumns = map[string]string{
	"uuid":                        "v.uuid",
	"identificatie":               "v.identificatie",
	"bronorganisatie":             "v.bronorganisatie",
	"creatiedatum":                "v.creatiedatum",
	"titel":                       "v.titel",
	"vertrouwelijkheidaanduiding": "v.vertrouwelijkheidaanduiding",
	"auteur":                      "v.auteur",
	"status":                      "v.status",
	"formaat":                     "v.formaat",
	"taal":                        "v.taal",
	"bestandsnaam":                "v.bestandsnaam",
	"link":                        "v.link",
	"beschrijving":                "v.beschrijving",
	"ontvangstdatum":              "v.ontvangstdatum",
	"verzenddatum":                "v.verzenddatum",
	"indicatie_gebruiksrecht":     "v.indicatie_gebruiksrecht",
	"integriteit_algoritme":       "v.integriteit_algoritme",
	"integriteit_waarde":          "v.integriteit_waarde",
	"integriteit_datum":           "v.integriteit_datum",
	"informatieobjecttype":        "v.informatieobjecttype",
	"begin_registratie":           "v.begin_registratie",
	"versie":                      "v.versie",
}

type documentRow struct {
	domain.DocumentVersion
	Lock string `db:"lock"`
}

func (r documentRow) entity() *domain.DocumentVersion {
	doc := r.DocumentVersion
	doc.Canonical = &domain.CanonicalIdentity{ID: doc.CanonicalID, Lock: r.Lock}
	return &doc
}

// DocumentQuery is a lazy relational query over document versions. Unless
// a specific version is asked for, only the latest version of each document
// matches.
type DocumentQuery struct {
	backend  *Backend
	criteria map[string]any
}

func (q *DocumentQuery) All(context.Context) (query.DocumentQuery, error) {
	q.criteria = map[string]any{}
	return q, nil
}

func (q *DocumentQuery) Filter(_ context.Context, criteria query.Criteria) (query.DocumentQuery, error) {
	merged := merge(q.criteria, criteria)
	if _, _, _, err := documentSQL(merged); err != nil {
		return nil, err
	}
	q.criteria = merged
	return q, nil
}

// documentSQL picks the version rule first: an exact version, the version
// registered at an instant, or else the latest version.
func documentSQL(criteria map[string]any) ([]string, []any, string, error) {
	rest := make(map[string]any, len(criteria))
	for key, value := range criteria {
		field, lookup := query.ParseLookup(key)
		if lookup == query.LookupExact {
			key = field
		}
		rest[key] = value
	}

	var conds []string
	var args []any
	suffix := "ORDER BY v.uuid, v.versie"

	id, hasUUID := rest["uuid"]
	versie, hasVersie := rest["versie"]
	at, hasInstant := rest["registratie_op"]

	switch {
	case hasUUID && hasVersie:
		delete(rest, "uuid")
		delete(rest, "versie")
		conds = append(conds, "v.uuid = ?", "v.versie = ?")
		args = append(args, id, mapper.DecodeVersion(fmt.Sprint(versie)))
	case hasUUID && hasInstant:
		instant, err := timeValue(at)
		if err != nil || instant == nil {
			return nil, nil, "", fmt.Errorf("invalid registratie_op %v", at)
		}
		delete(rest, "uuid")
		delete(rest, "registratie_op")
		conds = append(conds, "v.uuid = ?", "v.begin_registratie <= ?")
		args = append(args, id, *instant)
		suffix = "ORDER BY v.versie LIMIT 1"
	default:
		conds = append(conds, latestVersion)
	}

	more, moreArgs, err := compile(rest, documentColumns, convertDocumentValue)
	if err != nil {
		return nil, nil, "", err
	}
	return append(conds, more...), append(args, moreArgs...), suffix, nil
}

func convertDocumentValue(field string, v any) any {
	if field == "versie" {
		return mapper.DecodeVersion(fmt.Sprint(v))
	}
	return v
}

func (q *DocumentQuery) fetch(ctx context.Context) ([]*domain.DocumentVersion, error) {
	conds, args, suffix, err := documentSQL(q.criteria)
	if err != nil {
		return nil, err
	}

	rows, err := selectRows[documentRow](ctx, q.backend.db, selectDocuments, conds, args, suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}

	docs := make([]*domain.DocumentVersion, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.entity())
	}
	return docs, nil
}

func (q *DocumentQuery) Get(ctx context.Context, criteria query.Criteria) (*domain.DocumentVersion, error) {
	narrowed, err := q.Clone().Filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	docs, err := narrowed.(*DocumentQuery).fetch(ctx)
	if err != nil {
		return nil, err
	}
	return sole(docs, documentCollection)
}

// Create stores a new document, or a new version when values name the uuid
// of an existing one. Fields not given are carried over from the previous
// version.
func (q *DocumentQuery) Create(ctx context.Context, values query.Values) (*domain.DocumentVersion, error) {
	db := q.backend.db

	id, _ := values["uuid"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO canonicals (id, lock) VALUES (?, '') ON CONFLICT (id) DO NOTHING`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to create canonical: %w", err)
	}

	var held string
	if err := tx.GetContext(ctx, &held, tx.Rebind(`SELECT lock FROM canonicals WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	if token, _ := values["lock"].(string); held != "" && held != token {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrConflict)
	}

	var doc domain.DocumentVersion
	var prev documentRow
	err = tx.GetContext(ctx, &prev, tx.Rebind(selectDocuments+` WHERE v.uuid = ? ORDER BY v.versie DESC LIMIT 1`), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc = domain.DocumentVersion{UUID: id, CanonicalID: id}
	case err != nil:
		return nil, fmt.Errorf("failed to read previous version: %w", err)
	default:
		doc = prev.DocumentVersion
	}

	if err := q.apply(&doc, values); err != nil {
		return nil, err
	}
	doc.Versie += versionStep
	doc.BeginRegistratie = time.Now().UTC()

	if content := contentOf(values["inhoud"]); len(content) > 0 {
		if err := q.upload(ctx, &doc, content); err != nil {
			return nil, err
		}
	}

	if _, err := tx.NamedExecContext(ctx, insertDocument, &doc); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}

	doc.Canonical = &domain.CanonicalIdentity{ID: id, Lock: held}
	q.backend.logger.Infof("[Documents] Stored document %s version %d", doc.UUID, doc.Versie)
	return &doc, nil
}

func (q *DocumentQuery) upload(ctx context.Context, doc *domain.DocumentVersion, content []byte) error {
	if q.backend.content == nil {
		return errors.New("no content storage configured")
	}
	reference := doc.UUID + ";" + mapper.EncodeVersion(doc.Versie)
	if err := q.backend.content.UploadBytes(ctx, storage.ContentKey(reference), content); err != nil {
		return fmt.Errorf("failed to store content of %s: %w", doc.UUID, err)
	}
	doc.Inhoud = reference
	return nil
}

// Update changes every matching version in place, each under its own lock
// unless values carries the token of a lock the caller already holds.
func (q *DocumentQuery) Update(ctx context.Context, values query.Values) (int, error) {
	docs, err := q.fetch(ctx)
	if err != nil {
		return 0, err
	}
	held, _ := values["lock"].(string)

	updated := 0
	for _, doc := range docs {
		err := lock.WithToken(ctx, q.backend.locks, doc.Canonical, held, func(string) error {
			changed := *doc
			if err := q.apply(&changed, values); err != nil {
				return err
			}
			if content := contentOf(values["inhoud"]); len(content) > 0 {
				if err := q.upload(ctx, &changed, content); err != nil {
					return err
				}
			}
			if _, err := q.backend.db.NamedExecContext(ctx, updateDocument, &changed); err != nil {
				return fmt.Errorf("failed to update document: %w", err)
			}
			return nil
		})
		if err != nil {
			return updated, fmt.Errorf("document %s: %w", doc.UUID, err)
		}
		updated++
	}

	return updated, nil
}

// Delete removes every matching version. Checked-out documents are logged
// and skipped. Content no longer referenced is removed after commit.
func (q *DocumentQuery) Delete(ctx context.Context) (int, map[string]int, error) {
	docs, err := q.fetch(ctx)
	if err != nil {
		return 0, nil, err
	}

	tx, err := q.backend.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	var orphans []string
	for _, doc := range docs {
		if doc.Locked() {
			q.backend.logger.Warnf("[Documents] Document %s (%s) is checked out, not deleting", doc.UUID, doc.Identificatie)
			continue
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM document_versions WHERE uuid = ? AND versie = ?`), doc.UUID, doc.Versie)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to delete document %s: %w", doc.UUID, err)
		}
		if err := dropOrphanCanonical(ctx, tx, doc.CanonicalID); err != nil {
			return 0, nil, err
		}
		if doc.Inhoud != "" {
			orphans = append(orphans, doc.Inhoud)
		}
		deleted++
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	q.removeContent(ctx, orphans)
	return deleted, map[string]int{documentCollection: deleted}, nil
}

// dropOrphanCanonical removes a canonical, and everything hanging off it,
// once its last version is gone.
func dropOrphanCanonical(ctx context.Context, tx *sqlx.Tx, id string) error {
	var remaining int
	if err := tx.GetContext(ctx, &remaining, tx.Rebind(`SELECT COUNT(*) FROM document_versions WHERE canonical_id = ?`), id); err != nil {
		return fmt.Errorf("failed to count versions: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	for _, stmt := range []string{
		`DELETE FROM usage_rights WHERE canonical_id = ?`,
		`DELETE FROM object_relations WHERE canonical_id = ?`,
		`DELETE FROM canonicals WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), id); err != nil {
			return fmt.Errorf("failed to remove canonical %s: %w", id, err)
		}
	}
	return nil
}

func (q *DocumentQuery) removeContent(ctx context.Context, references []string) {
	if q.backend.content == nil {
		return
	}
	for _, reference := range references {
		var users int
		err := q.backend.db.GetContext(ctx, &users, q.backend.db.Rebind(`SELECT COUNT(*) FROM document_versions WHERE inhoud = ?`), reference)
		if err != nil || users > 0 {
			continue
		}
		if err := q.backend.content.DeleteObject(ctx, storage.ContentKey(reference)); err != nil {
			q.backend.logger.Errorf("[Documents] Failed to remove content %s: %v", reference, err)
		}
	}
}

func (q *DocumentQuery) Clone() query.DocumentQuery {
	return &DocumentQuery{backend: q.backend, criteria: merge(q.criteria, nil)}
}

func (q *DocumentQuery) Iterate(ctx context.Context) (iter.Seq[*domain.DocumentVersion], error) {
	docs, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return seqOf(docs), nil
}

func (q *DocumentQuery) Len(ctx context.Context) (int, error) {
	docs, err := q.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// apply copies command values onto doc. Keys the store manages itself are
// ignored.
func (q *DocumentQuery) apply(doc *domain.DocumentVersion, values query.Values) error {
	text := map[string]*string{
		"identificatie":               &doc.Identificatie,
		"bronorganisatie":             &doc.Bronorganisatie,
		"titel":                       &doc.Titel,
		"vertrouwelijkheidaanduiding": &doc.Vertrouwelijkheidaanduiding,
		"auteur":                      &doc.Auteur,
		"status":                      &doc.Status,
		"formaat":                     &doc.Formaat,
		"taal":                        &doc.Taal,
		"bestandsnaam":                &doc.Bestandsnaam,
		"link":                        &doc.Link,
		"beschrijving":                &doc.Beschrijving,
		"integriteit_algoritme":       &doc.IntegriteitAlgoritme,
		"integriteit_waarde":          &doc.IntegriteitWaarde,
	}
	dates := map[string]**time.Time{
		"creatiedatum":      &doc.Creatiedatum,
		"ontvangstdatum":    &doc.Ontvangstdatum,
		"verzenddatum":      &doc.Verzenddatum,
		"integriteit_datum": &doc.IntegriteitDatum,
	}

	for key, value := range values {
		if target, ok := text[key]; ok {
			if value == nil {
				*target = ""
			} else {
				*target = fmt.Sprint(value)
			}
			continue
		}
		if target, ok := dates[key]; ok {
			t, err := timeValue(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*target = t
			continue
		}

		switch key {
		case "indicatie_gebruiksrecht":
			switch b := value.(type) {
			case nil:
				doc.IndicatieGebruiksrecht = nil
			case bool:
				doc.IndicatieGebruiksrecht = &b
			default:
				return fmt.Errorf("indicatie_gebruiksrecht: invalid value %v", value)
			}
		case "informatieobjecttype":
			url, err := q.backend.opts.Resolver.Resolve(value)
			if err != nil {
				return fmt.Errorf("informatieobjecttype: %w", err)
			}
			doc.Informatieobjecttype = url
		case "uuid", "lock", "inhoud", "versie", "begin_registratie":
		default:
			return fmt.Errorf("%w: %s", domain.ErrUnknownField, key)
		}
	}
	return nil
}
