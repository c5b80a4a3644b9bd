package query

import "docregistry/internal/lock"

// Backend serves the three logical collections of the registry.
type Backend interface {
	Name() string
	Documents() DocumentQuery
	UsageRights() UsageRightsQuery
	Relations() RelationQuery
	Locks() lock.Store
}

// Dispatcher hands out request-scoped queries from the backend chosen at
// construction. Nothing else in the registry looks at the backend switch.
type Dispatcher struct {
	backend Backend
}

// NewDispatcher picks remote when remoteEnabled is set, relational
// otherwise.
func NewDispatcher(remoteEnabled bool, relational, remote Backend) *Dispatcher {
	if remoteEnabled {
		return &Dispatcher{backend: remote}
	}
	return &Dispatcher{backend: relational}
}

// Backend returns the name of the selected backend.
func (d *Dispatcher) Backend() string {
	return d.backend.Name()
}

func (d *Dispatcher) Documents() DocumentQuery {
	return d.backend.Documents()
}

func (d *Dispatcher) UsageRights() UsageRightsQuery {
	return d.backend.UsageRights()
}

func (d *Dispatcher) Relations() RelationQuery {
	return d.backend.Relations()
}

func (d *Dispatcher) Locks() lock.Store {
	return d.backend.Locks()
}
