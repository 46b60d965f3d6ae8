// Package sqlsource is a keyset-paginated source.Source over a SQL table.
//
// Each configured ordering lists its sort columns; the last one must be
// unique so every row has a distinct position. A cursor records the
// ordering name and the sort-column values of the row it follows, so
// resuming is a single indexed range scan no matter how deep the walk is:
//
//	WHERE (c1 < v1) OR (c1 = v1 AND c2 > v2) ...   -- per column direction
//	ORDER BY c1 DESC, c2 ASC LIMIT n
package sqlsource

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/unkn0wn-root/pagecache/source"
)

// Column is one sort key.
type Column struct {
	Name string
	Desc bool
}

// Config describes the table. DB, Table, Columns, Orderings[""], Scan and
// Key are required.
type Config[T any] struct {
	DB    *sql.DB
	Table string
	// Columns are selected in this order and handed to Scan.
	Columns []string
	// Where is a static predicate applied to every query (e.g. "deleted = 0").
	Where string
	// Orderings by name; "" is the default ordering.
	Orderings map[string][]Column
	// Filterable whitelists the columns accepted in Query.Filter.
	Filterable []string
	Scan       func(rows *sql.Rows) (T, error)
	// Key returns the value of a sort column for an item.
	Key func(item T, column string) any
}

type Source[T any] struct {
	cfg        Config[T]
	filterable map[string]struct{}
	enc        cbor.EncMode
	dec        cbor.DecMode
}

var _ source.Source[struct{}] = (*Source[struct{}])(nil)

type cursor struct {
	Ordering string `cbor:"o"`
	Keys     []any  `cbor:"k"`
}

func New[T any](cfg Config[T]) (*Source[T], error) {
	switch {
	case cfg.DB == nil:
		return nil, errors.New("sqlsource: db is required")
	case cfg.Table == "" || len(cfg.Columns) == 0:
		return nil, errors.New("sqlsource: table and columns are required")
	case cfg.Scan == nil || cfg.Key == nil:
		return nil, errors.New("sqlsource: scan and key funcs are required")
	}
	if _, ok := cfg.Orderings[""]; !ok {
		return nil, errors.New("sqlsource: default ordering is required")
	}
	for name, cols := range cfg.Orderings {
		if len(cols) == 0 {
			return nil, fmt.Errorf("sqlsource: ordering %q has no columns", name)
		}
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return nil, err
	}
	s := &Source[T]{cfg: cfg, enc: enc, dec: dec, filterable: make(map[string]struct{}, len(cfg.Filterable))}
	for _, c := range cfg.Filterable {
		s.filterable[c] = struct{}{}
	}
	return s, nil
}

func (s *Source[T]) Fetch(ctx context.Context, q source.Query, cur string, limit int) (source.Batch[T], error) {
	order, ok := s.cfg.Orderings[q.Ordering]
	if !ok {
		return source.Batch[T]{}, fmt.Errorf("sqlsource: unknown ordering %q", q.Ordering)
	}
	var after []any
	if cur != "" {
		c, err := s.decodeCursor(cur)
		if err != nil {
			return source.Batch[T]{}, err
		}
		if c.Ordering != q.Ordering || len(c.Keys) != len(order) {
			return source.Batch[T]{}, fmt.Errorf("%w: cursor does not match ordering %q", source.ErrMalformedCursor, q.Ordering)
		}
		after = c.Keys
	}

	query, args, err := s.build(q, order, after, limit)
	if err != nil {
		return source.Batch[T]{}, err
	}
	rows, err := s.cfg.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return source.Batch[T]{}, fmt.Errorf("sqlsource: query %s: %w", s.cfg.Table, err)
	}
	defer rows.Close()

	b := source.Batch[T]{Items: make([]T, 0, limit), After: make([]string, 0, limit)}
	for rows.Next() {
		item, err := s.cfg.Scan(rows)
		if err != nil {
			return source.Batch[T]{}, fmt.Errorf("sqlsource: scan %s: %w", s.cfg.Table, err)
		}
		keys := make([]any, len(order))
		for i, col := range order {
			keys[i] = s.cfg.Key(item, col.Name)
		}
		next, err := s.encodeCursor(cursor{Ordering: q.Ordering, Keys: keys})
		if err != nil {
			return source.Batch[T]{}, err
		}
		b.Items = append(b.Items, item)
		b.After = append(b.After, next)
	}
	if err := rows.Err(); err != nil {
		return source.Batch[T]{}, fmt.Errorf("sqlsource: rows %s: %w", s.cfg.Table, err)
	}
	return b, nil
}

func (s *Source[T]) build(q source.Query, order []Column, after []any, limit int) (string, []any, error) {
	var (
		sb    strings.Builder
		conds []string
		args  []any
	)
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(s.cfg.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(s.cfg.Table)

	if s.cfg.Where != "" {
		conds = append(conds, "("+s.cfg.Where+")")
	}

	// sorted for a stable statement text
	names := make([]string, 0, len(q.Filter))
	for name := range q.Filter {
		if _, ok := s.filterable[name]; !ok {
			return "", nil, fmt.Errorf("sqlsource: column %q is not filterable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		conds = append(conds, name+" = ?")
		args = append(args, q.Filter[name])
	}

	if after != nil {
		ors := make([]string, 0, len(order))
		for i, col := range order {
			parts := make([]string, 0, i+1)
			for j := 0; j < i; j++ {
				parts = append(parts, order[j].Name+" = ?")
				args = append(args, after[j])
			}
			op := " > ?"
			if col.Desc {
				op = " < ?"
			}
			parts = append(parts, col.Name+op)
			args = append(args, after[i])
			ors = append(ors, "("+strings.Join(parts, " AND ")+")")
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	sb.WriteString(" ORDER BY ")
	for i, col := range order {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col.Name)
		if col.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)
	return sb.String(), args, nil
}

func (s *Source[T]) encodeCursor(c cursor) (string, error) {
	b, err := s.enc.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("sqlsource: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Source[T]) decodeCursor(raw string) (cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %v", source.ErrMalformedCursor, err)
	}
	var c cursor
	if err := s.dec.Unmarshal(b, &c); err != nil {
		return cursor{}, fmt.Errorf("%w: %v", source.ErrMalformedCursor, err)
	}
	// only scalar driver values may reach the query
	for i, k := range c.Keys {
		switch v := k.(type) {
		case uint64:
			// CBOR hands non-negative integers back as uint64; drivers want int64
			if v > math.MaxInt64 {
				return cursor{}, fmt.Errorf("%w: key out of range", source.ErrMalformedCursor)
			}
			c.Keys[i] = int64(v)
		case int64, float64, string, []byte, bool:
		default:
			return cursor{}, fmt.Errorf("%w: key %d has type %T", source.ErrMalformedCursor, i, k)
		}
	}
	return c, nil
}
