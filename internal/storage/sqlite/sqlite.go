// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface using Go's standard database/sql package.
//
// WHY SQLite?
// ───────────
// SQLite stores everything in a single file on disk. There is no
// network, no separate server process, and no installation beyond the
// driver. It is the drop-in alternative to the CSV files when the
// whole-file rewrite of the flat-file store becomes too slow.
//
// One database file holds one table per entity kind. Each table is
// derived from the same schema descriptor the CSV store uses, so both
// backends agree on column names, types and the identifier column.
//
// The blank import below registers the sqlite3 driver with database/sql.
// The driver's init() function does this automatically when the package
// is loaded — we never call anything from it directly.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aanand-mishra/student-management-api/internal/storage"
	"github.com/aanand-mishra/student-management-api/internal/storage/schema"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the SQLite database at path. The
// returned *sql.DB is shared by every table store.
func Open(path string) (*sql.DB, error) {
	// sql.Open does NOT open a real connection yet — it just validates
	// the driver name and data source name (DSN). Ping forces one so a
	// bad path fails here instead of on the first request.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open db: %w: %w", storage.ErrFileAccess, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w: %w", storage.ErrFileAccess, err)
	}

	// SQLite allows one writer at a time. A single connection turns
	// "database is locked" errors into plain queueing inside database/sql.
	db.SetMaxOpenConns(1)

	return db, nil
}

// SQLite is the table-backed implementation of storage.Store for
// records of type T.
type SQLite[T any] struct {
	Db     *sql.DB
	table  string
	schema *schema.Schema[T]

	// Pre-rendered SQL; the table layout is fixed for the store's life.
	selectAll  string
	selectByID string
	insert     string
	update     string
	deleteByID string
}

var _ storage.Store[struct{}] = (*SQLite[struct{}])(nil)

// New creates the table if it does not already exist and returns a
// ready-to-use store. fields and idField are as for schema.New.
func New[T any](db *sql.DB, table string, fields []string, idField string) (*SQLite[T], error) {
	s, err := schema.New[T](fields, idField)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}

	// CREATE TABLE IF NOT EXISTS is idempotent — safe to run on every
	// startup. The implicit rowid records insertion order.
	//
	// Column types follow the field kinds:
	//   text    → TEXT    NOT NULL
	//   integer → INTEGER (NOT NULL unless the field is optional)
	//   decimal → REAL    (NOT NULL unless the field is optional)
	var defs []string
	for _, f := range s.Fields() {
		def := quote(f.Name) + " " + columnType(f.Kind)
		if !f.Optional {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("sqlite.New: create table: %w: %w", storage.ErrFileAccess, err)
	}

	// Index on the identifier: lookups by studentId are the hot path.
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quote(table+"_"+idField), quote(table), quote(idField))
	if _, err := db.Exec(idx); err != nil {
		return nil, fmt.Errorf("sqlite.New: create index: %w: %w", storage.ErrFileAccess, err)
	}

	cols := make([]string, 0, len(s.Header()))
	sets := make([]string, 0, len(s.Header()))
	marks := make([]string, 0, len(s.Header()))
	for _, name := range s.Header() {
		cols = append(cols, quote(name))
		sets = append(sets, quote(name)+" = ?")
		marks = append(marks, "?")
	}
	colList := strings.Join(cols, ", ")
	t, id := quote(table), quote(idField)

	return &SQLite[T]{
		Db:         db,
		table:      table,
		schema:     s,
		selectAll:  fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", colList, t),
		selectByID: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY rowid LIMIT 1", colList, t, id),
		insert:     fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, colList, strings.Join(marks, ", ")),
		// Only the first matching row is replaced, and it keeps its rowid
		// (its position in the listing).
		update: fmt.Sprintf("UPDATE %s SET %s WHERE rowid = (SELECT rowid FROM %s WHERE %s = ? ORDER BY rowid LIMIT 1)",
			t, strings.Join(sets, ", "), t, id),
		deleteByID: fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t, id),
	}, nil
}

// ReadAll returns every row of the table in insertion order.
func (s *SQLite[T]) ReadAll() ([]T, error) {
	rows, err := s.Db.Query(s.selectAll)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ReadAll: query: %w: %w", storage.ErrFileAccess, err)
	}
	defer rows.Close() // must close rows to free the DB connection

	// Pre-allocate an empty (non-nil) slice.
	// Returning [] instead of null in JSON is better API behaviour.
	records := make([]T, 0)
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite.ReadAll: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.ReadAll: rows iteration: %w: %w", storage.ErrFileAccess, err)
	}

	return records, nil
}

// WriteAll replaces the table contents inside one transaction.
func (s *SQLite[T]) WriteAll(records []T) error {
	return s.inTx("sqlite.WriteAll", func(tx *sql.Tx) error {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", quote(s.table))); err != nil {
			return err
		}
		return s.insertAll(tx, records)
	})
}

// Get fetches the first row whose identifier equals id.
func (s *SQLite[T]) Get(id string) (T, bool, error) {
	var zero T

	rows, err := s.Db.Query(s.selectByID, id)
	if err != nil {
		return zero, false, fmt.Errorf("sqlite.Get: query: %w: %w", storage.ErrFileAccess, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return zero, false, fmt.Errorf("sqlite.Get: %w: %w", storage.ErrFileAccess, err)
		}
		return zero, false, nil
	}

	rec, err := s.scan(rows)
	if err != nil {
		return zero, false, fmt.Errorf("sqlite.Get: %w", err)
	}
	return rec, true, nil
}

// Add inserts one row. Duplicate identifiers are not checked.
func (s *SQLite[T]) Add(record T) error {
	if _, err := s.Db.Exec(s.insert, s.schema.Values(record)...); err != nil {
		return fmt.Errorf("sqlite.Add: exec: %w: %w", storage.ErrFileAccess, err)
	}
	return nil
}

// AddMany inserts every record inside one transaction.
func (s *SQLite[T]) AddMany(records []T) error {
	return s.inTx("sqlite.AddMany", func(tx *sql.Tx) error {
		return s.insertAll(tx, records)
	})
}

// Update replaces the first row whose identifier equals id. No row
// matching is not an error. A record carrying a different identifier is
// rejected with storage.ErrIDMismatch.
func (s *SQLite[T]) Update(id string, record T) error {
	if got := s.schema.ID(record); got != id {
		return fmt.Errorf("sqlite.Update: %w: target %q, record %q", storage.ErrIDMismatch, id, got)
	}

	// Argument order matches the ? order in the SQL:
	//   every column value, then the id in the sub-select.
	args := append(s.schema.Values(record), id)
	if _, err := s.Db.Exec(s.update, args...); err != nil {
		return fmt.Errorf("sqlite.Update: exec: %w: %w", storage.ErrFileAccess, err)
	}
	return nil
}

// Delete removes every row whose identifier equals id.
func (s *SQLite[T]) Delete(id string) error {
	if _, err := s.Db.Exec(s.deleteByID, id); err != nil {
		return fmt.Errorf("sqlite.Delete: exec: %w: %w", storage.ErrFileAccess, err)
	}
	return nil
}

// scan reads the current row. Every column is scanned as nullable text
// and handed to the schema decoder, the same path CSV cells take; NULL
// becomes an empty cell, i.e. an absent optional field.
func (s *SQLite[T]) scan(rows *sql.Rows) (T, error) {
	var zero T

	cells := make([]sql.NullString, len(s.schema.Header()))
	dest := make([]any, len(cells))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return zero, fmt.Errorf("scan row: %w: %w", storage.ErrDataCorruption, err)
	}

	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = c.String
	}
	rec, err := s.schema.Decode(row)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", storage.ErrDataCorruption, err)
	}
	return rec, nil
}

func (s *SQLite[T]) insertAll(tx *sql.Tx, records []T) error {
	stmt, err := tx.Prepare(s.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(s.schema.Values(rec)...); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in a transaction, committing on success and rolling back
// on any error.
func (s *SQLite[T]) inTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.Db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w: %w", op, storage.ErrFileAccess, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("%s: %w: %w", op, storage.ErrFileAccess, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w: %w", op, storage.ErrFileAccess, err)
	}
	return nil
}

func columnType(k schema.Kind) string {
	switch k {
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// quote renders name as an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
