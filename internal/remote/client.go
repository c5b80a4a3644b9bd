// Package remote talks to the content-management repository that can back
// the document registry instead of the relational database.
package remote

import (
	"context"
	"errors"
)

var (
	ErrDocumentNotFound = errors.New("document does not exist")
	ErrDocumentConflict = errors.New("document conflict")
	ErrDocumentLocked   = errors.New("document is checked out")
)

// Record is a raw object as returned by the repository.
type Record map[string]any

// String returns the value under key when it is a string, "" otherwise.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// ListResult is the envelope of every list call.
type ListResult struct {
	Results []Record `json:"results"`
}

// Version is one entry of a document's version history, in repository order.
type Version struct {
	Label  string `json:"label"`
	Record Record `json:"record"`
}

// Client is the RPC surface of the repository. All calls block until the
// repository answers or ctx is done.
type Client interface {
	ListDocuments(ctx context.Context, filters map[string]any) (*ListResult, error)
	GetDocument(ctx context.Context, identification string, viaIdentification bool, filters map[string]any) (Record, error)
	GetAllVersions(ctx context.Context, uuid string) ([]Version, error)
	CreateDocument(ctx context.Context, identification string, data map[string]any, content []byte) (Record, error)
	UpdateDocument(ctx context.Context, uuid, lock string, data map[string]any, content []byte) (Record, error)
	DeleteDocument(ctx context.Context, uuid string) error
	ObliterateDocument(ctx context.Context, uuid string) error
	LockDocument(ctx context.Context, uuid, lock string) error
	UnlockDocument(ctx context.Context, uuid, lock string) error

	CreateUsageRights(ctx context.Context, data map[string]any) (Record, error)
	ListUsageRights(ctx context.Context, filters map[string]any) (*ListResult, error)

	CreateObjectRelation(ctx context.Context, data map[string]any) (Record, error)
	ListObjectRelations(ctx context.Context, filters map[string]any) (*ListResult, error)
	ListAllObjectRelations(ctx context.Context) (*ListResult, error)
	DeleteObjectRelation(ctx context.Context, uuid string) error
}
