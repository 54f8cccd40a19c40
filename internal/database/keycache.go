package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// KeyCache resolves a unique text value to its row id, inserting the row the
// first time a value is seen. Lookups are memoized, so one cache must not
// outlive the transaction it was built on: a rollback would leave it holding
// ids that no longer exist.
type KeyCache struct {
	q         sqlx.ExtContext
	selectSQL string
	insertSQL string
	ids       map[string]int64
}

// NewKeyCache builds a cache over table(id, column), where column is unique.
func NewKeyCache(q sqlx.ExtContext, table, column string) *KeyCache {
	selectSQL, _, _ := sq.Select("id").From(table).Where(column + " = ?").ToSql()
	insertSQL, _, _ := sq.Insert(table).Columns(column).Values(nil).ToSql()
	return &KeyCache{
		q:         q,
		selectSQL: selectSQL,
		insertSQL: insertSQL,
		ids:       make(map[string]int64),
	}
}

func newTagCache(q sqlx.ExtContext) *KeyCache    { return NewKeyCache(q, "tag", "value") }
func newSourceCache(q sqlx.ExtContext) *KeyCache { return NewKeyCache(q, "source_item", "source_path") }

// GetOrInsert returns the id for key, fetching or inserting it (never both).
func (c *KeyCache) GetOrInsert(ctx context.Context, key string) (int64, error) {
	id, _, err := c.Resolve(ctx, key)
	return id, err
}

// Resolve is GetOrInsert that also reports whether the row was inserted.
func (c *KeyCache) Resolve(ctx context.Context, key string) (int64, bool, error) {
	if id, ok := c.ids[key]; ok {
		return id, false, nil
	}

	var id int64
	inserted := false
	err := sqlx.GetContext(ctx, c.q, &id, c.selectSQL, key)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		res, err := c.q.ExecContext(ctx, c.insertSQL, key)
		if err != nil {
			return 0, false, fmt.Errorf("inserting %q: %w", key, classify(err))
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, false, fmt.Errorf("reading id for %q: %w", key, err)
		}
		inserted = true
	default:
		return 0, false, fmt.Errorf("looking up %q: %w", key, err)
	}

	c.ids[key] = id
	return id, inserted, nil
}

// Len returns the number of keys resolved so far.
func (c *KeyCache) Len() int {
	return len(c.ids)
}
