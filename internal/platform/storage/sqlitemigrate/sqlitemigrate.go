// Package sqlitemigrate runs forward-only SQL migrations shipped in an fs.FS.
//
// A migration is a .sql file. When it contains a "-- +migrate Up" marker only
// the text after it (and before any "-- +migrate Down") runs. Each file runs
// once, inside its own transaction, and is recorded by its path.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const (
	ledgerTable = "schema_migrations"
	upMarker    = "-- +migrate Up"
	downMarker  = "-- +migrate Down"
)

// Migration is one pending or applied file.
type Migration struct {
	Key string
	Up  string
}

// ApplyMigrations runs every migration under root that the ledger does not
// list yet, in file name order. An empty root means the top of fsys.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, root string) error {
	if db == nil {
		return errors.New("sql db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pending, err := Load(fsys, root)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
		name       TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}

	done, err := Applied(ctx, db)
	if err != nil {
		return err
	}
	for _, migration := range pending {
		if slices.Contains(done, migration.Key) {
			continue
		}
		if err := apply(ctx, db, migration); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the .sql files directly under root, sorted by name.
func Load(fsys fs.FS, root string) ([]Migration, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", root, err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		key := path.Join(root, entry.Name())
		content, err := fs.ReadFile(fsys, key)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", key, err)
		}
		out = append(out, Migration{Key: key, Up: ExtractUpMigration(string(content))})
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Applied lists the ledger in application order.
func Applied(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM `+ledgerTable+` ORDER BY applied_at, name`)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration ledger: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// apply runs one migration and records it in the same transaction, so a
// failed migration leaves no ledger row behind.
func apply(ctx context.Context, db *sql.DB, migration Migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", migration.Key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(migration.Up) != "" {
		if _, err = tx.ExecContext(ctx, migration.Up); err != nil && !IsAlreadyExistsError(err) {
			return fmt.Errorf("exec migration %s: %w", migration.Key, err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+ledgerTable+` (name, applied_at) VALUES (?, ?)`,
		migration.Key, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", migration.Key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", migration.Key, err)
	}
	return nil
}

// ExtractUpMigration returns the Up section of content, or all of content
// when it has no Up marker.
func ExtractUpMigration(content string) string {
	_, up, found := strings.Cut(content, upMarker)
	if !found {
		return content
	}
	up, _, _ = strings.Cut(up, downMarker)
	return up
}

// IsAlreadyExistsError reports DDL errors that mean the change is already in
// place, such as re-creating a table.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
