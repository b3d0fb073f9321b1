package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database. Each record is a
// JSON document; filters run through json_extract.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// fieldName guards the field names interpolated into json paths.
var fieldName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// any pending schema migrations. ":memory:" gives a private in-memory
// database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetClock replaces the time source used for created_at.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// recordRow is the stored shape of a record.
type recordRow struct {
	ID        string `db:"id"`
	Kind      string `db:"kind"`
	Data      string `db:"data"`
	CreatedNS int64  `db:"created_ns"`
}

// List returns every record of kind.
func (s *SQLiteStore) List(ctx context.Context, kind Kind, orderBy string) ([]Record, error) {
	return s.Filter(ctx, kind, nil, orderBy)
}

// Filter returns the records of kind matching every field of where.
func (s *SQLiteStore) Filter(ctx context.Context, kind Kind, where Predicate, orderBy string) ([]Record, error) {
	op := "filter " + string(kind)

	clauses := []string{"kind = ?"}
	args := []any{string(kind)}

	for field, value := range where {
		if !fieldName.MatchString(field) {
			return nil, &RejectedError{Op: op, Status: http.StatusBadRequest, Message: "invalid field " + field}
		}
		path := "json_extract(data, '$." + field + "')"
		switch v := value.(type) {
		case nil:
			clauses = append(clauses, path+" IS NULL")
		case bool:
			clauses = append(clauses, path+" = ?")
			args = append(args, boolToInt(v))
		case json.Number:
			clauses = append(clauses, path+" = ?")
			if n, err := v.Int64(); err == nil {
				args = append(args, n)
			} else {
				args = append(args, v.String())
			}
		default:
			clauses = append(clauses, path+" = ?")
			args = append(args, v)
		}
	}

	order, err := orderClause(orderBy)
	if err != nil {
		return nil, &RejectedError{Op: op, Status: http.StatusBadRequest, Message: err.Error()}
	}

	query := "SELECT id, kind, data, created_ns FROM records WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY " + order

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapDBError(op, err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord([]byte(row.Data))
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", row.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Create stores fields as a new record, assigning id and created_at.
func (s *SQLiteStore) Create(ctx context.Context, kind Kind, fields Record) (Record, error) {
	now := s.now().UTC()

	rec := make(Record, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec["id"] = uuid.NewString()
	rec["created_at"] = now.Format(time.RFC3339Nano)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, kind, data, created_ns, updated_ns) VALUES (?, ?, ?, ?, ?)`,
		rec.ID(), string(kind), string(data), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, wrapDBError("create "+string(kind), err)
	}

	return decodeRecord(data)
}

// Update merges patch into the stored record. id and created_at are
// immutable and ignored in the patch.
func (s *SQLiteStore) Update(ctx context.Context, kind Kind, id string, patch Record) (Record, error) {
	op := "update " + string(kind)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	defer tx.Rollback()

	var data string
	err = tx.GetContext(ctx, &data, `SELECT data FROM records WHERE id = ? AND kind = ?`, id, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, kind, id)
	}
	if err != nil {
		return nil, wrapDBError(op, err)
	}

	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	for k, v := range patch {
		if k == "id" || k == "created_at" {
			continue
		}
		rec[k] = v
	}

	merged, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_ns = ? WHERE id = ?`,
		string(merged), s.now().UnixNano(), id,
	)
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(op, err)
	}

	return decodeRecord(merged)
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, id string) error {
	op := "delete " + string(kind)

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return wrapDBError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(op, err)
	}
	if n == 0 {
		return notFound(op, kind, id)
	}
	return nil
}

func orderClause(orderBy string) (string, error) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")

	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	switch {
	case field == "" || field == "created_at":
		return "created_ns " + dir + ", rowid " + dir, nil
	case fieldName.MatchString(field):
		return "json_extract(data, '$." + field + "') " + dir + ", rowid " + dir, nil
	}
	return "", fmt.Errorf("invalid sort field %q", orderBy)
}

// wrapDBError classifies database failures. A cancelled or expired context
// passes through; everything else is treated as the store being unreachable.
func wrapDBError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}

// boolToInt converts a Go bool to a SQLite-compatible integer.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
