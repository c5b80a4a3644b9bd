// Package mapper turns repository records into domain entities.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"docregistry/internal/coerce"
	"docregistry/internal/domain"
	"docregistry/internal/remote"
)

// Repository attribute names that differ from the domain field names.
const (
	AttrUUID         = "versionSeriesId"
	AttrCheckedOutID = "versionSeriesCheckedOutId"
	AttrDocumentRef  = "enkelvoudiginformatieobject"
	AttrObjectType   = "related_object_type"
)

var documentFields = coerce.Fields{
	"identificatie":               coerce.Text,
	"bronorganisatie":             coerce.Text,
	"creatiedatum":                coerce.Date,
	"titel":                       coerce.Text,
	"vertrouwelijkheidaanduiding": coerce.Text,
	"auteur":                      coerce.Text,
	"status":                      coerce.Text,
	"formaat":                     coerce.Text,
	"taal":                        coerce.Text,
	"bestandsnaam":                coerce.Text,
	"link":                        coerce.Text,
	"beschrijving":                coerce.Text,
	"ontvangstdatum":              coerce.Date,
	"verzenddatum":                coerce.Date,
	"integriteit_algoritme":       coerce.Text,
	"integriteit_waarde":          coerce.Text,
	"integriteit_datum":           coerce.Date,
	"informatieobjecttype":        coerce.Text,
	"begin_registratie":           coerce.DateTime,
	"versie":                      coerce.Numeric,
}

var usageRightsFields = coerce.Fields{
	"informatieobject":         coerce.Text,
	"omschrijving_voorwaarden": coerce.Text,
	"startdatum":               coerce.DateTime,
	"einddatum":                coerce.DateTime,
}

var relationFields = coerce.Fields{
	AttrDocumentRef: coerce.Text,
	AttrObjectType:  coerce.Text,
	"zaak_url":      coerce.Text,
	"besluit_url":   coerce.Text,
}

// NewCanonical builds a transient identity for a mapped record. The entity
// that receives it owns it exclusively until it is persisted.
func NewCanonical(id, checkedOutID string) *domain.CanonicalIdentity {
	return &domain.CanonicalIdentity{ID: id, Lock: checkedOutID}
}

// DecodeVersion turns a decimal label into the integer encoding used by
// DocumentVersion.Versie. Anything unparsable decodes to 0.
func DecodeVersion(label string) int {
	d, err := decimal.NewFromString(strings.TrimSpace(label))
	if err != nil {
		return 0
	}
	return int(d.Mul(decimal.NewFromInt(100)).IntPart())
}

// EncodeVersion is the inverse of DecodeVersion: 200 -> "2.00".
func EncodeVersion(versie int) string {
	return decimal.New(int64(versie), -2).StringFixed(2)
}

// Document maps a document record.
func Document(rec remote.Record) *domain.DocumentVersion {
	uuid := rec.String(AttrUUID)
	canonical := NewCanonical(uuid, rec.String(AttrCheckedOutID))

	label := stringOf(rec["versie"])
	r := remote.Record(coerce.Apply(rec, documentFields))

	return &domain.DocumentVersion{
		UUID:                        uuid,
		CanonicalID:                 canonical.ID,
		Identificatie:               r.String("identificatie"),
		Bronorganisatie:             r.String("bronorganisatie"),
		Creatiedatum:                timeOf(r["creatiedatum"]),
		Titel:                       r.String("titel"),
		Vertrouwelijkheidaanduiding: r.String("vertrouwelijkheidaanduiding"),
		Auteur:                      r.String("auteur"),
		Status:                      r.String("status"),
		Formaat:                     r.String("formaat"),
		Taal:                        r.String("taal"),
		Bestandsnaam:                r.String("bestandsnaam"),
		Inhoud:                      uuid + ";" + label,
		Link:                        r.String("link"),
		Beschrijving:                r.String("beschrijving"),
		Ontvangstdatum:              timeOf(r["ontvangstdatum"]),
		Verzenddatum:                timeOf(r["verzenddatum"]),
		IndicatieGebruiksrecht:      boolOf(r["indicatie_gebruiksrecht"]),
		IntegriteitAlgoritme:        r.String("integriteit_algoritme"),
		IntegriteitWaarde:           r.String("integriteit_waarde"),
		IntegriteitDatum:            timeOf(r["integriteit_datum"]),
		Informatieobjecttype:        r.String("informatieobjecttype"),
		BeginRegistratie:            valueOf(timeOf(r["begin_registratie"])),
		Versie:                      DecodeVersion(label),
		Canonical:                   canonical,
	}
}

// UsageRights maps a usage-rights record.
func UsageRights(rec remote.Record) *domain.UsageRights {
	r := remote.Record(coerce.Apply(rec, usageRightsFields))
	document := r.String("informatieobject")
	canonical := NewCanonical(LastSegment(document), r.String(AttrCheckedOutID))

	return &domain.UsageRights{
		UUID:                    r.String(AttrUUID),
		CanonicalID:             canonical.ID,
		Informatieobject:        document,
		OmschrijvingVoorwaarden: r.String("omschrijving_voorwaarden"),
		Startdatum:              timeOf(r["startdatum"]),
		Einddatum:               timeOf(r["einddatum"]),
		Canonical:               canonical,
	}
}

// Relation maps an object-relation record.
func Relation(rec remote.Record) *domain.ObjectRelation {
	r := remote.Record(coerce.Apply(rec, relationFields))
	document := r.String(AttrDocumentRef)
	canonical := NewCanonical(LastSegment(document), r.String(AttrCheckedOutID))

	return &domain.ObjectRelation{
		UUID:             r.String(AttrUUID),
		CanonicalID:      canonical.ID,
		Informatieobject: document,
		ObjectType:       r.String(AttrObjectType),
		Zaak:             r.String("zaak_url"),
		Besluit:          r.String("besluit_url"),
		Canonical:        canonical,
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// timeOf accepts decoded timestamps as well as ISO strings the repository
// sends for fields it stores as text.
func timeOf(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

func valueOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func boolOf(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

// LastSegment returns the final path element of url, ignoring a trailing
// slash.
func LastSegment(url string) string {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
