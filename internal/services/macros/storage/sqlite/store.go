// Package sqlite provides a SQLite-backed table log and character store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/macrotable/internal/platform/grpc/pagination"
	sqlitemigrate "github.com/louisbranch/macrotable/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/macrotable/internal/services/macros/storage"
	"github.com/louisbranch/macrotable/internal/services/macros/storage/filter"
	"github.com/louisbranch/macrotable/internal/services/macros/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const messageColumns = `id, table_id, sequence_id, user_id, client_message_id, kind,
        flavor, body, die_result, roll_total, whisper, blind, sent_at`

const characterColumns = `id, table_id, owner_user_id, name, strength_mod, assigned,
        created_at, updated_at`

// Store persists table logs and characters in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// AppendMessage stores msg under the table's next sequence id.
func (s *Store) AppendMessage(ctx context.Context, msg storage.Message) (storage.Message, bool, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, false, err
	}
	msg.TableID = strings.TrimSpace(msg.TableID)
	msg.UserID = strings.TrimSpace(msg.UserID)
	msg.ClientMessageID = strings.TrimSpace(msg.ClientMessageID)
	if msg.TableID == "" {
		return storage.Message{}, false, fmt.Errorf("table id is required")
	}
	if msg.UserID == "" {
		return storage.Message{}, false, fmt.Errorf("user id is required")
	}
	if !msg.Kind.Valid() {
		return storage.Message{}, false, fmt.Errorf("message kind %q is invalid", msg.Kind)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Message{}, false, fmt.Errorf("begin append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if msg.ClientMessageID != "" {
		existing, err := scanMessage(tx.QueryRowContext(
			ctx,
			`SELECT `+messageColumns+`
			   FROM messages
			  WHERE table_id = ? AND user_id = ? AND client_message_id = ?`,
			msg.TableID,
			msg.UserID,
			msg.ClientMessageID,
		))
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.Message{}, false, fmt.Errorf("lookup client message: %w", err)
		}
	}

	if err := tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(sequence_id), 0) + 1 FROM messages WHERE table_id = ?`,
		msg.TableID,
	).Scan(&msg.SequenceID); err != nil {
		return storage.Message{}, false, fmt.Errorf("next sequence id: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	msg.SentAt = fromMillis(toMillis(msg.SentAt))

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.TableID,
		msg.SequenceID,
		msg.UserID,
		msg.ClientMessageID,
		string(msg.Kind),
		msg.Flavor,
		msg.Body,
		msg.DieResult,
		msg.RollTotal,
		boolToInt(msg.Whisper),
		boolToInt(msg.Blind),
		toMillis(msg.SentAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.Message{}, false, fmt.Errorf("append message %s: already exists: %w", msg.ID, err)
		}
		return storage.Message{}, false, fmt.Errorf("append message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Message{}, false, fmt.Errorf("commit append message: %w", err)
	}
	return msg, false, nil
}

// LastRoll returns the user's most recent roll message in the table.
func (s *Store) LastRoll(ctx context.Context, tableID, userID string) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	msg, err := scanMessage(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+messageColumns+`
		   FROM messages
		  WHERE table_id = ? AND user_id = ? AND kind = ?
		  ORDER BY sequence_id DESC
		  LIMIT 1`,
		strings.TrimSpace(tableID),
		strings.TrimSpace(userID),
		string(storage.MessageKindRoll),
	))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Message{}, err
		}
		return storage.Message{}, fmt.Errorf("last roll: %w", err)
	}
	return msg, nil
}

// MessagesBefore returns up to limit messages older than beforeSequenceID, oldest first.
func (s *Store) MessagesBefore(ctx context.Context, tableID string, beforeSequenceID int64, limit int) ([]storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	tableID = strings.TrimSpace(tableID)

	var (
		rows *sql.Rows
		err  error
	)
	if beforeSequenceID <= 0 {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT `+messageColumns+`
			   FROM messages
			  WHERE table_id = ?
			  ORDER BY sequence_id DESC
			  LIMIT ?`,
			tableID,
			limit,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT `+messageColumns+`
			   FROM messages
			  WHERE table_id = ? AND sequence_id < ?
			  ORDER BY sequence_id DESC
			  LIMIT ?`,
			tableID,
			beforeSequenceID,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("messages before: %w", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("messages before: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListMessages returns one filtered page of a table's log in sequence order.
// The page token is the last sequence id of the previous page.
func (s *Store) ListMessages(ctx context.Context, query storage.MessageQuery) (storage.MessagePage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MessagePage{}, err
	}
	if query.PageSize <= 0 {
		return storage.MessagePage{}, fmt.Errorf("page size must be greater than zero")
	}
	tableID := strings.TrimSpace(query.TableID)
	if tableID == "" {
		return storage.MessagePage{}, fmt.Errorf("table id is required")
	}

	cond, err := filter.ParseMessageFilter(query.Filter)
	if err != nil {
		return storage.MessagePage{}, fmt.Errorf("%w: %v", storage.ErrInvalidFilter, err)
	}

	clauses := []string{"table_id = ?"}
	params := []any{tableID}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		after, err := pagination.DecodeCursor(token)
		if err != nil {
			return storage.MessagePage{}, storage.ErrInvalidPageToken
		}
		clauses = append(clauses, "sequence_id > ?")
		params = append(params, after)
	}
	if !cond.IsEmpty() {
		clauses = append(clauses, cond.Clause)
		params = append(params, cond.Params...)
	}
	params = append(params, query.PageSize+1)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+messageColumns+`
		   FROM messages
		  WHERE `+strings.Join(clauses, " AND ")+`
		  ORDER BY sequence_id ASC
		  LIMIT ?`,
		params...,
	)
	if err != nil {
		return storage.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return storage.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}

	page := storage.MessagePage{Messages: messages}
	if len(page.Messages) > query.PageSize {
		page.Messages = page.Messages[:query.PageSize]
		page.NextPageToken = pagination.EncodeCursor(page.Messages[query.PageSize-1].SequenceID)
	}
	return page, nil
}

// PutCharacter creates or updates a character. Assigning a character clears
// the owner's previous assignment in the same table.
func (s *Store) PutCharacter(ctx context.Context, character storage.Character) (storage.Character, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Character{}, err
	}
	character.TableID = strings.TrimSpace(character.TableID)
	character.OwnerUserID = strings.TrimSpace(character.OwnerUserID)
	character.Name = strings.TrimSpace(character.Name)
	character.ID = strings.TrimSpace(character.ID)
	if character.TableID == "" {
		return storage.Character{}, fmt.Errorf("table id is required")
	}
	if character.OwnerUserID == "" {
		return storage.Character{}, fmt.Errorf("owner user id is required")
	}
	if character.Name == "" {
		return storage.Character{}, fmt.Errorf("character name is required")
	}
	if character.ID == "" {
		character.ID = uuid.NewString()
	}
	now := toMillis(s.now())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Character{}, fmt.Errorf("begin put character: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if character.Assigned {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE characters
			    SET assigned = 0, updated_at = ?
			  WHERE table_id = ? AND owner_user_id = ? AND id != ? AND assigned = 1`,
			now,
			character.TableID,
			character.OwnerUserID,
			character.ID,
		); err != nil {
			return storage.Character{}, fmt.Errorf("clear assigned character: %w", err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO characters (`+characterColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   strength_mod = excluded.strength_mod,
		   assigned = excluded.assigned,
		   updated_at = excluded.updated_at
		 WHERE characters.table_id = excluded.table_id
		   AND characters.owner_user_id = excluded.owner_user_id`,
		character.ID,
		character.TableID,
		character.OwnerUserID,
		character.Name,
		character.StrengthMod,
		boolToInt(character.Assigned),
		now,
		now,
	); err != nil {
		return storage.Character{}, fmt.Errorf("put character: %w", err)
	}

	stored, err := scanCharacter(tx.QueryRowContext(
		ctx,
		`SELECT `+characterColumns+` FROM characters WHERE table_id = ? AND id = ?`,
		character.TableID,
		character.ID,
	))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Character{}, fmt.Errorf("character %s belongs to another table", character.ID)
		}
		return storage.Character{}, fmt.Errorf("read character: %w", err)
	}
	if stored.OwnerUserID != character.OwnerUserID {
		return storage.Character{}, fmt.Errorf("put character %s: %w", character.ID, storage.ErrNotOwner)
	}
	if err := tx.Commit(); err != nil {
		return storage.Character{}, fmt.Errorf("commit put character: %w", err)
	}
	return stored, nil
}

// GetCharacter returns one character in a table.
func (s *Store) GetCharacter(ctx context.Context, tableID, characterID string) (storage.Character, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Character{}, err
	}
	character, err := scanCharacter(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+characterColumns+` FROM characters WHERE table_id = ? AND id = ?`,
		strings.TrimSpace(tableID),
		strings.TrimSpace(characterID),
	))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Character{}, fmt.Errorf("get character: %w", err)
	}
	return character, err
}

// AssignedCharacter returns the user's assigned character in a table.
func (s *Store) AssignedCharacter(ctx context.Context, tableID, userID string) (storage.Character, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Character{}, err
	}
	character, err := scanCharacter(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+characterColumns+`
		   FROM characters
		  WHERE table_id = ? AND owner_user_id = ? AND assigned = 1`,
		strings.TrimSpace(tableID),
		strings.TrimSpace(userID),
	))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Character{}, fmt.Errorf("assigned character: %w", err)
	}
	return character, err
}

// ListCharacters returns a table's characters ordered by name.
func (s *Store) ListCharacters(ctx context.Context, tableID string) ([]storage.Character, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+characterColumns+`
		   FROM characters
		  WHERE table_id = ?
		  ORDER BY name ASC, id ASC`,
		strings.TrimSpace(tableID),
	)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []storage.Character
	for rows.Next() {
		character, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("list characters: %w", err)
		}
		characters = append(characters, character)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return characters, nil
}

func scanMessage(row rowScanner) (storage.Message, error) {
	var (
		msg     storage.Message
		kind    string
		whisper int
		blind   int
		sentAt  int64
	)
	err := row.Scan(
		&msg.ID,
		&msg.TableID,
		&msg.SequenceID,
		&msg.UserID,
		&msg.ClientMessageID,
		&kind,
		&msg.Flavor,
		&msg.Body,
		&msg.DieResult,
		&msg.RollTotal,
		&whisper,
		&blind,
		&sentAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Message{}, storage.ErrNotFound
		}
		return storage.Message{}, err
	}
	msg.Kind = storage.MessageKind(kind)
	msg.Whisper = whisper != 0
	msg.Blind = blind != 0
	msg.SentAt = fromMillis(sentAt)
	return msg, nil
}

func collectMessages(rows *sql.Rows) ([]storage.Message, error) {
	defer rows.Close()
	var messages []storage.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanCharacter(row rowScanner) (storage.Character, error) {
	var (
		character storage.Character
		assigned  int
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&character.ID,
		&character.TableID,
		&character.OwnerUserID,
		&character.Name,
		&character.StrengthMod,
		&assigned,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Character{}, storage.ErrNotFound
		}
		return storage.Character{}, err
	}
	character.Assigned = assigned != 0
	character.CreatedAt = fromMillis(createdAt)
	character.UpdatedAt = fromMillis(updatedAt)
	return character, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.MessageStore   = (*Store)(nil)
	_ storage.CharacterStore = (*Store)(nil)
)
