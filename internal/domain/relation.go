package domain

import "time"

// UsageRights describes the conditions under which a document may be used.
type UsageRights struct {
	UUID                    string     `json:"uuid" db:"uuid"`
	CanonicalID             string     `json:"-" db:"canonical_id"`
	Informatieobject        string     `json:"informatieobject" db:"informatieobject"`
	OmschrijvingVoorwaarden string     `json:"omschrijvingVoorwaarden" db:"omschrijving_voorwaarden"`
	Startdatum              *time.Time `json:"startdatum" db:"startdatum"`
	Einddatum               *time.Time `json:"einddatum" db:"einddatum"`

	Canonical *CanonicalIdentity `json:"-" db:"-"`
}

// Object types a document can be related to.
const (
	ObjectTypeZaak    = "zaak"
	ObjectTypeBesluit = "besluit"
)

// ObjectRelation links a document to exactly one case or decision record.
// ObjectType selects which of Zaak / Besluit is populated.
type ObjectRelation struct {
	UUID             string `json:"uuid" db:"uuid"`
	CanonicalID      string `json:"-" db:"canonical_id"`
	Informatieobject string `json:"informatieobject" db:"informatieobject"`
	ObjectType       string `json:"objectType" db:"object_type"`
	Zaak             string `json:"zaak,omitempty" db:"zaak"`
	Besluit          string `json:"besluit,omitempty" db:"besluit"`

	Canonical *CanonicalIdentity `json:"-" db:"-"`
}

// Object returns the URL of the related record selected by ObjectType.
func (o *ObjectRelation) Object() string {
	switch o.ObjectType {
	case ObjectTypeZaak:
		return o.Zaak
	case ObjectTypeBesluit:
		return o.Besluit
	}
	return ""
}

// ZaakRelation and BesluitRelation are the case/decision side of a document
// link. They are handed to the relation query by the record that owns them.
type ZaakRelation struct {
	InformatieobjectURL string
	Zaak                Resource
}

type BesluitRelation struct {
	InformatieobjectURL string
	Besluit             Resource
}

// Resource is a record that lives in this registry and can be addressed by
// a path relative to the configured host URL.
type Resource interface {
	ResourcePath() string
}

// RemoteResource is a record owned by another registry; it already knows
// its absolute URL.
type RemoteResource interface {
	RemoteURL() string
}
