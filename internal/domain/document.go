package domain

import (
	"time"
)

// CanonicalIdentity is the version-independent identity of a document.
// Lock is empty while the document is not checked out.
type CanonicalIdentity struct {
	ID   string `json:"id" db:"id"`
	Lock string `json:"-" db:"lock"`
}

// Locked reports whether a lock token is currently held.
func (c *CanonicalIdentity) Locked() bool {
	return c != nil && c.Lock != ""
}

// DocumentVersion is one revision of a document. Versie encodes the decimal
// version label times 100 ("2.00" -> 200).
type DocumentVersion struct {
	UUID                        string     `json:"uuid" db:"uuid"`
	CanonicalID                 string     `json:"-" db:"canonical_id"`
	Identificatie               string     `json:"identificatie" db:"identificatie"`
	Bronorganisatie             string     `json:"bronorganisatie" db:"bronorganisatie"`
	Creatiedatum                *time.Time `json:"creatiedatum" db:"creatiedatum"`
	Titel                       string     `json:"titel" db:"titel"`
	Vertrouwelijkheidaanduiding string     `json:"vertrouwelijkheidaanduiding" db:"vertrouwelijkheidaanduiding"`
	Auteur                      string     `json:"auteur" db:"auteur"`
	Status                      string     `json:"status" db:"status"`
	Formaat                     string     `json:"formaat" db:"formaat"`
	Taal                        string     `json:"taal" db:"taal"`
	Bestandsnaam                string     `json:"bestandsnaam" db:"bestandsnaam"`
	Inhoud                      string     `json:"inhoud" db:"inhoud"`
	Link                        string     `json:"link" db:"link"`
	Beschrijving                string     `json:"beschrijving" db:"beschrijving"`
	Ontvangstdatum              *time.Time `json:"ontvangstdatum" db:"ontvangstdatum"`
	Verzenddatum                *time.Time `json:"verzenddatum" db:"verzenddatum"`
	IndicatieGebruiksrecht      *bool      `json:"indicatieGebruiksrecht" db:"indicatie_gebruiksrecht"`
	IntegriteitAlgoritme        string     `json:"integriteitAlgoritme" db:"integriteit_algoritme"`
	IntegriteitWaarde           string     `json:"integriteitWaarde" db:"integriteit_waarde"`
	IntegriteitDatum            *time.Time `json:"integriteitDatum" db:"integriteit_datum"`
	Informatieobjecttype        string     `json:"informatieobjecttype" db:"informatieobjecttype"`
	BeginRegistratie            time.Time  `json:"beginRegistratie" db:"begin_registratie"`
	Versie                      int        `json:"versie" db:"versie"`

	Canonical *CanonicalIdentity `json:"-" db:"-"`
}

// Locked mirrors the lock state of the owning identity.
func (d *DocumentVersion) Locked() bool {
	return d.Canonical.Locked()
}
