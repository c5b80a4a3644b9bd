// Package repository serves the registry collections from the relational
// database. Queries are lazy: Filter only records criteria and SQL runs
// when results are read or changed.
package repository

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"docregistry/internal/domain"
	"docregistry/internal/lock"
	"docregistry/internal/query"
	"docregistry/internal/storage"
)

// Name is the backend name reported by the dispatcher.
const Name = "relational"

type Options struct {
	Resolver query.URLResolver
	Logger   *zap.SugaredLogger
}

// Backend hands out request-scoped relational queries.
type Backend struct {
	db      *sqlx.DB
	content storage.Storage
	locks   *LockRepository
	opts    Options
	logger  *zap.SugaredLogger
}

func NewBackend(db *sqlx.DB, content storage.Storage, opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Backend{
		db:      db,
		content: content,
		locks:   NewLockRepository(db),
		opts:    opts,
		logger:  logger,
	}
}

func (b *Backend) Name() string {
	return Name
}

func (b *Backend) Documents() query.DocumentQuery {
	return &DocumentQuery{backend: b, criteria: map[string]any{}}
}

func (b *Backend) UsageRights() query.UsageRightsQuery {
	return &UsageRightsQuery{backend: b, criteria: map[string]any{}}
}

func (b *Backend) Relations() query.RelationQuery {
	return &RelationQuery{backend: b, criteria: map[string]any{}}
}

func (b *Backend) Locks() lock.Store {
	return b.locks
}

// Content is the object store holding document bodies.
func (b *Backend) Content() storage.Storage {
	return b.content
}

var operators = map[string]string{
	query.LookupExact: "=",
	"lt":              "<",
	"lte":             "<=",
	"gt":              ">",
	"gte":             ">=",
}

// compile turns criteria into SQL conditions. columns maps a field name to
// its qualified column; convert, when set, rewrites values before binding.
func compile(criteria map[string]any, columns map[string]string, convert func(field string, v any) any) ([]string, []any, error) {
	var conds []string
	var args []any

	for key, value := range criteria {
		field, lookup := query.ParseLookup(key)
		column, ok := columns[field]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
		}

		if lookup == "in" {
			values := listOf(value)
			if len(values) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			for i := range values {
				values[i] = bindValue(field, values[i], convert)
			}
			conds = append(conds, column+" IN (?)")
			args = append(args, values)
			continue
		}

		op, ok := operators[lookup]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLookup, key)
		}
		conds = append(conds, fmt.Sprintf("%s %s ?", column, op))
		args = append(args, bindValue(field, value, convert))
	}

	return conds, args, nil
}

func bindValue(field string, v any, convert func(string, any) any) any {
	if convert != nil {
		v = convert(field, v)
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC()
	}
	return v
}

func listOf(v any) []any {
	switch list := v.(type) {
	case []any:
		return append([]any(nil), list...)
	case []string:
		return anySlice(list)
	case []int:
		return anySlice(list)
	case []int64:
		return anySlice(list)
	case []time.Time:
		return anySlice(list)
	}
	return []any{v}
}

func anySlice[T any](list []T) []any {
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = item
	}
	return out
}

// selectRows runs base with conds and suffix appended, expanding IN lists.
func selectRows[T any](ctx context.Context, db sqlx.QueryerContext, base string, conds []string, args []any, suffix string) ([]T, error) {
	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if suffix != "" {
		q += " " + suffix
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to expand query: %w", err)
	}

	var rows []T
	if err := sqlx.SelectContext(ctx, db, &rows, sqlx.Rebind(sqlx.BindType(driverName(db)), q), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func driverName(db sqlx.QueryerContext) string {
	if d, ok := db.(interface{ DriverName() string }); ok {
		return d.DriverName()
	}
	return ""
}

func sole[T any](items []T, kind string) (T, error) {
	var zero T
	switch n := len(items); n {
	case 1:
		return items[0], nil
	case 0:
		return zero, fmt.Errorf("%s: %w", kind, domain.ErrDoesNotExist)
	default:
		return zero, fmt.Errorf("%s: %w (got %d)", kind, domain.ErrMultipleObjectsReturned, n)
	}
}

func seqOf[T any](items []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

func merge(dst map[string]any, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// timeValue reads a date or datetime from a command value.
func timeValue(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = t.UTC()
		return &t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				parsed = parsed.UTC()
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("invalid date %q", t)
	}
	return nil, fmt.Errorf("invalid date %v", v)
}

func contentOf(v any) []byte {
	switch c := v.(type) {
	case []byte:
		return c
	case string:
		return []byte(c)
	}
	return nil
}
