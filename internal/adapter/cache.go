package adapter

import (
	"fmt"
	"iter"
	"slices"

	"docregistry/internal/domain"
	"docregistry/internal/remote"
)

// cache is the materialized result of the last query. Once filled the query
// is filtered and stays that way; later calls only read or replace it.
type cache[T any] struct {
	items    []T
	filtered bool
}

func (c *cache[T]) replace(items []T) {
	c.items = items
	c.filtered = true
}

// clone copies the item slice; the entities themselves are shared.
func (c *cache[T]) clone() cache[T] {
	return cache[T]{items: slices.Clone(c.items), filtered: c.filtered}
}

func (c *cache[T]) sole(kind string) (T, error) {
	var zero T
	switch n := len(c.items); n {
	case 1:
		return c.items[0], nil
	case 0:
		return zero, fmt.Errorf("%s: %w", kind, domain.ErrDoesNotExist)
	default:
		return zero, fmt.Errorf("%s: %w (got %d)", kind, domain.ErrMultipleObjectsReturned, n)
	}
}

// seq replays a snapshot of the cache. It never fetches.
func (c *cache[T]) seq() iter.Seq[T] {
	items := slices.Clone(c.items)
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

func mapRecords[T any](records []remote.Record, fn func(remote.Record) T) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		out = append(out, fn(rec))
	}
	return out
}
