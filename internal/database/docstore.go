package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Doc maps column names to values. As a filter every pair is an equality
// condition joined with AND.
type Doc map[string]any

// tables lists the collections the document primitives may touch
var tables = map[string]bool{
	"users":              true,
	"learning_items":     true,
	"memory_states":      true,
	"session_snapshots":  true,
	"lesson_completions": true,
	"user_unlocks":       true,
}

func checkIdent(table string, docs ...Doc) error {
	if !tables[table] {
		return fmt.Errorf("unknown table %q", table)
	}
	for _, d := range docs {
		for col := range d {
			if !isIdent(col) {
				return fmt.Errorf("invalid column name %q", col)
			}
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')) {
			return false
		}
	}
	return true
}

// sortedKeys keeps generated SQL stable across calls
func sortedKeys(d Doc) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func where(filter Doc) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := sortedKeys(filter)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = filter[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindOne loads the first row matching filter into dest. A missing row is
// reported as apperr.ErrNotFound.
func (db *DB) FindOne(ctx context.Context, dest any, table string, filter Doc) error {
	op := "FindOne " + table
	if err := checkIdent(table, filter); err != nil {
		return errors.Wrap(err, op)
	}
	cond, args := where(filter)
	query := db.x.Rebind("SELECT * FROM " + table + cond + " LIMIT 1")

	return db.retry(ctx, op, func() error {
		return db.x.GetContext(ctx, dest, query, args...)
	})
}

// UpdateOne applies patch to the rows matching filter and returns how many
// rows matched.
func (db *DB) UpdateOne(ctx context.Context, table string, filter, patch Doc) (int64, error) {
	op := "UpdateOne " + table
	if err := checkIdent(table, filter, patch); err != nil {
		return 0, errors.Wrap(err, op)
	}
	if len(patch) == 0 || len(filter) == 0 {
		return 0, errors.Wrap(fmt.Errorf("empty filter or patch"), op)
	}

	keys := sortedKeys(patch)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(patch)+len(filter))
	for i, k := range keys {
		sets[i] = k + " = ?"
		args = append(args, patch[k])
	}
	cond, condArgs := where(filter)
	args = append(args, condArgs...)
	query := db.x.Rebind("UPDATE " + table + " SET " + strings.Join(sets, ", ") + cond)

	var matched int64
	err := db.retry(ctx, op, func() error {
		res, err := db.x.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		matched, err = res.RowsAffected()
		return err
	})
	return matched, err
}

// InsertOne inserts doc as a new row
func (db *DB) InsertOne(ctx context.Context, table string, doc Doc) error {
	op := "InsertOne " + table
	if err := checkIdent(table, doc); err != nil {
		return errors.Wrap(err, op)
	}

	keys := sortedKeys(doc)
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		marks[i] = "?"
		args[i] = doc[k]
	}
	query := db.x.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), strings.Join(marks, ", ")))

	return db.retry(ctx, op, func() error {
		_, err := db.x.ExecContext(ctx, query, args...)
		return err
	})
}

// Count returns the number of rows matching filter
func (db *DB) Count(ctx context.Context, table string, filter Doc) (int, error) {
	op := "Count " + table
	if err := checkIdent(table, filter); err != nil {
		return 0, errors.Wrap(err, op)
	}
	cond, args := where(filter)
	query := db.x.Rebind("SELECT COUNT(*) FROM " + table + cond)

	var n int
	err := db.retry(ctx, op, func() error {
		return db.x.GetContext(ctx, &n, query, args...)
	})
	return n, err
}

// DeleteOne removes the rows matching filter
func (db *DB) DeleteOne(ctx context.Context, table string, filter Doc) error {
	op := "DeleteOne " + table
	if err := checkIdent(table, filter); err != nil {
		return errors.Wrap(err, op)
	}
	if len(filter) == 0 {
		return errors.Wrap(fmt.Errorf("empty filter"), op)
	}
	cond, args := where(filter)
	query := db.x.Rebind("DELETE FROM " + table + cond)

	return db.retry(ctx, op, func() error {
		_, err := db.x.ExecContext(ctx, query, args...)
		return err
	})
}

// Upsert updates the row identified by key, and inserts key plus patch when
// no row matched. A concurrent first write that wins the insert race turns
// our insert into a duplicate; it is then applied as an update.
func (db *DB) Upsert(ctx context.Context, table string, key, patch Doc) error {
	matched, err := db.UpdateOne(ctx, table, key, patch)
	if err != nil {
		return err
	}
	if matched > 0 {
		return nil
	}

	doc := make(Doc, len(key)+len(patch))
	for k, v := range patch {
		doc[k] = v
	}
	for k, v := range key {
		doc[k] = v
	}

	err = db.InsertOne(ctx, table, doc)
	if err != nil && isUniqueViolation(err) {
		db.logger.Debug("insert lost race, updating instead", "table", table)
		_, err = db.UpdateOne(ctx, table, key, patch)
	}
	return err
}
