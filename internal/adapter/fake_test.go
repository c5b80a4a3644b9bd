package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"docregistry/internal/remote"
)

// fakeRepository is an in-memory remote.Client. Documents are stored as
// their version history, oldest first.
type fakeRepository struct {
	mu sync.Mutex

	versions  map[string][]remote.Version
	locks     map[string]string
	rights    []remote.Record
	relations []remote.Record

	conflicts map[string]bool
	calls     map[string]int
	updates   []fakeUpdate
	seq       int
}

type fakeUpdate struct {
	uuid    string
	lock    string
	data    map[string]any
	content []byte
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		versions:  make(map[string][]remote.Version),
		locks:     make(map[string]string),
		conflicts: make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func notFound(uuid string) error {
	return fmt.Errorf("getDocument: %w", &remote.RPCError{Code: remote.CodeDocumentNotFound, Message: uuid})
}

// addVersion appends a version with label and begin_registratie given as
// epoch milliseconds.
func (f *fakeRepository) addVersion(uuid, identificatie, label string, registered int64) {
	f.versions[uuid] = append(f.versions[uuid], remote.Version{
		Label: label,
		Record: remote.Record{
			"versionSeriesId":   uuid,
			"identificatie":     identificatie,
			"versie":            label,
			"begin_registratie": json.Number(fmt.Sprint(registered)),
			"titel":             identificatie + " v" + label,
		},
	})
}

func (f *fakeRepository) latest(uuid string) remote.Record {
	history := f.versions[uuid]
	rec := remote.Record{}
	for k, v := range history[len(history)-1].Record {
		rec[k] = v
	}
	if token := f.locks[uuid]; token != "" {
		rec["versionSeriesCheckedOutId"] = token
	}
	return rec
}

func (f *fakeRepository) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRepository) called(method string) {
	f.calls[method]++
}

func (f *fakeRepository) ListDocuments(_ context.Context, filters map[string]any) (*remote.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("listDocuments")

	res := &remote.ListResult{}
	for uuid := range f.versions {
		rec := f.latest(uuid)
		if matches(rec, filters) {
			res.Results = append(res.Results, rec)
		}
	}
	return res, nil
}

func (f *fakeRepository) GetDocument(_ context.Context, identification string, viaIdentification bool, _ map[string]any) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("getDocument")

	for uuid := range f.versions {
		rec := f.latest(uuid)
		if (viaIdentification && rec["identificatie"] == identification) || (!viaIdentification && uuid == identification) {
			return rec, nil
		}
	}
	return nil, notFound(identification)
}

func (f *fakeRepository) GetAllVersions(_ context.Context, uuid string) ([]remote.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("getAllVersions")

	history, ok := f.versions[uuid]
	if !ok {
		return nil, notFound(uuid)
	}
	return history, nil
}

func (f *fakeRepository) CreateDocument(_ context.Context, identification string, data map[string]any, content []byte) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("createDocument")

	f.seq++
	uuid := fmt.Sprintf("doc-%d", f.seq)
	rec := remote.Record{"versionSeriesId": uuid, "versie": "1.0", "identificatie": identification}
	for k, v := range data {
		if k != "uuid" && k != "identificatie" {
			rec[k] = v
		}
	}
	f.versions[uuid] = []remote.Version{{Label: "1.0", Record: rec}}
	return rec, nil
}

func (f *fakeRepository) UpdateDocument(_ context.Context, uuid, lock string, data map[string]any, content []byte) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("updateDocument")

	if _, ok := f.versions[uuid]; !ok {
		return nil, notFound(uuid)
	}
	if held := f.locks[uuid]; held != "" && held != lock {
		return nil, &remote.RPCError{Code: remote.CodeDocumentLocked, Message: uuid}
	}

	f.updates = append(f.updates, fakeUpdate{uuid: uuid, lock: lock, data: data, content: content})
	rec := f.latest(uuid)
	delete(rec, "versionSeriesCheckedOutId")
	for k, v := range data {
		rec[k] = v
	}
	label := fmt.Sprintf("%d.0", len(f.versions[uuid])+1)
	rec["versie"] = label
	f.versions[uuid] = append(f.versions[uuid], remote.Version{Label: label, Record: rec})
	return rec, nil
}

func (f *fakeRepository) remove(method, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called(method)

	if f.conflicts[uuid] {
		return fmt.Errorf("%s: %w", method, &remote.RPCError{Code: remote.CodeDocumentConflict, Message: uuid})
	}
	if _, ok := f.versions[uuid]; !ok {
		return notFound(uuid)
	}
	delete(f.versions, uuid)
	return nil
}

func (f *fakeRepository) DeleteDocument(_ context.Context, uuid string) error {
	return f.remove("deleteDocument", uuid)
}

func (f *fakeRepository) ObliterateDocument(_ context.Context, uuid string) error {
	return f.remove("obliterateDocument", uuid)
}

func (f *fakeRepository) LockDocument(_ context.Context, uuid, lock string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("lockDocument")

	if held := f.locks[uuid]; held != "" && held != lock {
		return &remote.RPCError{Code: remote.CodeDocumentLocked, Message: uuid}
	}
	f.locks[uuid] = lock
	return nil
}

func (f *fakeRepository) UnlockDocument(_ context.Context, uuid, lock string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("unlockDocument")

	if f.locks[uuid] != lock {
		return &remote.RPCError{Code: remote.CodeDocumentLocked, Message: uuid}
	}
	delete(f.locks, uuid)
	return nil
}

func (f *fakeRepository) CreateUsageRights(_ context.Context, data map[string]any) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("createUsageRights")

	f.seq++
	rec := remote.Record{"versionSeriesId": fmt.Sprintf("ur-%d", f.seq)}
	for k, v := range data {
		rec[k] = v
	}
	f.rights = append(f.rights, rec)
	return rec, nil
}

func (f *fakeRepository) ListUsageRights(_ context.Context, filters map[string]any) (*remote.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("listUsageRights")

	res := &remote.ListResult{}
	for _, rec := range f.rights {
		if matches(rec, filters) {
			res.Results = append(res.Results, rec)
		}
	}
	return res, nil
}

func (f *fakeRepository) CreateObjectRelation(_ context.Context, data map[string]any) (remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("createObjectRelation")

	f.seq++
	rec := remote.Record{"versionSeriesId": fmt.Sprintf("oio-%d", f.seq)}
	for k, v := range data {
		rec[k] = v
	}
	f.relations = append(f.relations, rec)
	return rec, nil
}

func (f *fakeRepository) ListObjectRelations(_ context.Context, filters map[string]any) (*remote.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("listObjectRelations")

	res := &remote.ListResult{}
	for _, rec := range f.relations {
		if matches(rec, filters) {
			res.Results = append(res.Results, rec)
		}
	}
	return res, nil
}

func (f *fakeRepository) ListAllObjectRelations(_ context.Context) (*remote.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("listAllObjectRelations")

	return &remote.ListResult{Results: append([]remote.Record(nil), f.relations...)}, nil
}

func (f *fakeRepository) DeleteObjectRelation(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("deleteObjectRelation")

	for i, rec := range f.relations {
		if rec.String("versionSeriesId") == uuid {
			f.relations = append(f.relations[:i], f.relations[i+1:]...)
			return nil
		}
	}
	return notFound(uuid)
}

func matches(rec remote.Record, filters map[string]any) bool {
	for k, v := range filters {
		if fmt.Sprint(rec[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func documentURL(uuid string) string {
	return "http://testserver/documenten/api/v1/enkelvoudiginformatieobjecten/" + uuid
}

var _ remote.Client = (*fakeRepository)(nil)
