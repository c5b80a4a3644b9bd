// Package lock implements check-out / check-in of canonical identities.
// A document may only be mutated by the holder of its lock token.
package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docregistry/internal/domain"
)

// Store persists lock tokens. Implementations report a lock held by another
// token as domain.ErrConflict, a token mismatch on unlock as
// domain.ErrInvalidLock and unlocking a free identity as domain.ErrNotLocked.
type Store interface {
	LockDocument(ctx context.Context, id, token string) error
	UnlockDocument(ctx context.Context, id, token string) error
}

// Acquire checks out canonical with a fresh token and records the token on
// canonical.
func Acquire(ctx context.Context, store Store, canonical *domain.CanonicalIdentity) (string, error) {
	if canonical == nil {
		return "", errors.New("lock: nil canonical identity")
	}
	if canonical.Locked() {
		return "", fmt.Errorf("lock %s: %w", canonical.ID, domain.ErrConflict)
	}

	token := uuid.NewString()
	if err := store.LockDocument(ctx, canonical.ID, token); err != nil {
		return "", fmt.Errorf("lock %s: %w", canonical.ID, err)
	}

	canonical.Lock = token
	return token, nil
}

// Release checks canonical back in. token must be the one Acquire returned.
func Release(ctx context.Context, store Store, canonical *domain.CanonicalIdentity, token string) error {
	if canonical == nil {
		return errors.New("lock: nil canonical identity")
	}
	if !canonical.Locked() {
		return fmt.Errorf("unlock %s: %w", canonical.ID, domain.ErrNotLocked)
	}
	if canonical.Lock != token {
		return fmt.Errorf("unlock %s: %w", canonical.ID, domain.ErrInvalidLock)
	}

	if err := store.UnlockDocument(ctx, canonical.ID, token); err != nil {
		return fmt.Errorf("unlock %s: %w", canonical.ID, err)
	}

	canonical.Lock = ""
	return nil
}

// With runs fn while holding the lock on canonical. The lock is released
// on every return path; a release failure is reported only when fn itself
// succeeded.
func With(ctx context.Context, store Store, canonical *domain.CanonicalIdentity, fn func(token string) error) (err error) {
	token, err := Acquire(ctx, store, canonical)
	if err != nil {
		return err
	}

	defer func() {
		if rerr := Release(context.WithoutCancel(ctx), store, canonical, token); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(token)
}

// WithToken runs fn on behalf of a caller that may already hold the lock.
// A token matching the held lock is used as is and stays held afterwards;
// any other token on a locked identity is a conflict. Without a token, or
// on an unlocked identity, it behaves like With.
func WithToken(ctx context.Context, store Store, canonical *domain.CanonicalIdentity, token string, fn func(token string) error) error {
	if canonical == nil {
		return errors.New("lock: nil canonical identity")
	}
	if canonical.Locked() {
		if token == "" || token != canonical.Lock {
			return fmt.Errorf("lock %s: %w", canonical.ID, domain.ErrConflict)
		}
		return fn(token)
	}
	return With(ctx, store, canonical, fn)
}
