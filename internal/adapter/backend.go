// Package adapter serves the registry collections from the remote
// content repository. The repository has no query language, so every query
// materializes its result into an in-memory cache that later calls work on.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docregistry/internal/domain"
	"docregistry/internal/lock"
	"docregistry/internal/query"
	"docregistry/internal/remote"
)

// Name is the backend name reported by the dispatcher.
const Name = "remote"

type Options struct {
	// DeleteIsObliterate removes documents physically instead of marking
	// them deleted.
	DeleteIsObliterate bool
	Resolver           query.URLResolver
	Logger             *zap.SugaredLogger
}

// Backend hands out request-scoped remote queries sharing one client.
type Backend struct {
	client remote.Client
	locks  lockStore
	opts   Options
	logger *zap.SugaredLogger
}

func NewBackend(client remote.Client, opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Backend{
		client: client,
		locks:  lockStore{client: client},
		opts:   opts,
		logger: logger,
	}
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Documents() query.DocumentQuery {
	return &DocumentQuery{backend: b}
}

func (b *Backend) UsageRights() query.UsageRightsQuery {
	return &UsageRightsQuery{backend: b}
}

func (b *Backend) Relations() query.RelationQuery {
	return &RelationQuery{backend: b}
}

func (b *Backend) Locks() lock.Store {
	return b.locks
}

// lockStore translates repository check-out errors into the lock package's
// vocabulary.
type lockStore struct {
	client remote.Client
}

func (s lockStore) LockDocument(ctx context.Context, id, token string) error {
	err := s.client.LockDocument(ctx, id, token)
	if errors.Is(err, remote.ErrDocumentLocked) || errors.Is(err, remote.ErrDocumentConflict) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func (s lockStore) UnlockDocument(ctx context.Context, id, token string) error {
	err := s.client.UnlockDocument(ctx, id, token)
	if errors.Is(err, remote.ErrDocumentLocked) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidLock, err)
	}
	return err
}
