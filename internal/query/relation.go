package query

import (
	"errors"
	"fmt"
	"strings"

	"docregistry/internal/domain"
	"docregistry/internal/mapper"
)

var ErrUnresolvable = errors.New("cannot resolve object url")

// URLResolver builds absolute URLs for objects referenced in commands.
type URLResolver struct {
	HostURL string
}

// Resolve accepts an absolute URL, a record owned by another registry or a
// local Resource.
func (r URLResolver) Resolve(object any) (string, error) {
	switch v := object.(type) {
	case string:
		return v, nil
	case domain.RemoteResource:
		return v.RemoteURL(), nil
	case domain.Resource:
		return strings.TrimRight(r.HostURL, "/") + v.ResourcePath(), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnresolvable, object)
}

// relationTargets lists the record kinds a document can be related to.
var relationTargets = map[string]bool{
	domain.ObjectTypeZaak:    true,
	domain.ObjectTypeBesluit: true,
}

// TranslateRelation renames relation fields and filters to the attribute
// names the repository uses. data is not modified.
func TranslateRelation(data map[string]any, resolver URLResolver) (map[string]any, error) {
	rest := make(map[string]any, len(data))
	for k, v := range data {
		rest[k] = v
	}
	out := make(map[string]any, len(data))

	if objectType, _ := rest["object_type"].(string); objectType != "" {
		delete(rest, "object_type")
		if !relationTargets[objectType] {
			return nil, fmt.Errorf("%w: object type %q", domain.ErrUnknownField, objectType)
		}

		object, ok := rest[objectType]
		if ok && object != nil && object != "" {
			delete(rest, objectType)
		} else {
			object = rest["object"]
		}
		delete(rest, "object")

		url, err := resolver.Resolve(object)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", objectType, err)
		}
		out[mapper.AttrObjectType] = objectType
		out[objectType+"_url"] = url
	}

	for key, value := range rest {
		field, lookup := ParseLookup(key)
		field = strings.Trim(field, "_")
		if lookup != LookupExact {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLookup, key)
		}

		switch {
		case field == "informatieobject":
			out[mapper.AttrDocumentRef] = value
		case relationTargets[field]:
			url, err := resolver.Resolve(value)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", field, err)
			}
			out[field+"_url"] = url
		default:
			out[field] = value
		}
	}

	return out, nil
}

// RelationTarget resolves the fixed relation-type table: which object type
// a relation record links to, the document it links and the linked record.
func RelationTarget(relation any) (objectType, document string, object domain.Resource, err error) {
	switch r := relation.(type) {
	case domain.ZaakRelation:
		return domain.ObjectTypeZaak, r.InformatieobjectURL, r.Zaak, nil
	case *domain.ZaakRelation:
		return domain.ObjectTypeZaak, r.InformatieobjectURL, r.Zaak, nil
	case domain.BesluitRelation:
		return domain.ObjectTypeBesluit, r.InformatieobjectURL, r.Besluit, nil
	case *domain.BesluitRelation:
		return domain.ObjectTypeBesluit, r.InformatieobjectURL, r.Besluit, nil
	}
	return "", "", nil, fmt.Errorf("unsupported relation type %T", relation)
}
