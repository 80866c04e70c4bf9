// Package csvfile provides a flat-file implementation of the
// storage.Store interface: one comma-separated file per entity kind,
// a header row of field names, one record per following row.
//
// HOW MUTATIONS WORK:
// ───────────────────
// There is no index and no append-in-place. Every mutation reads the
// whole file into memory, transforms the slice, and writes the whole
// file back:
//
//	Add     → ReadAll, append,          WriteAll
//	Update  → ReadAll, replace first,   WriteAll
//	Delete  → ReadAll, filter all,      WriteAll
//
// That is fine for the small record counts this application targets.
// A mutex per store serialises the read-modify-write cycle so two
// requests cannot lose each other's updates, and WriteAll goes through a
// temp file + rename so a reader never sees a half-written file.
// Several processes sharing one file are NOT supported.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aanand-mishra/student-management-api/internal/storage"
	"github.com/aanand-mishra/student-management-api/internal/storage/schema"
)

// Store is the flat-file implementation of storage.Store for records of
// type T. The zero value is not usable; call New.
type Store[T any] struct {
	mu     sync.Mutex
	path   string
	schema *schema.Schema[T]
}

// compile-time check that *Store satisfies the storage contract.
var _ storage.Store[struct{}] = (*Store[struct{}])(nil)

// New returns a store over the file at path. fields is the column order
// and idField the identifier column (see schema.New).
//
// If the file does not exist it is created with the header row. If it
// already exists it is left untouched — no header check, no migration —
// so New is safe to call on every startup.
func New[T any](path string, fields []string, idField string) (*Store[T], error) {
	s, err := schema.New[T](fields, idField)
	if err != nil {
		return nil, fmt.Errorf("csvfile.New: %w", err)
	}

	// O_EXCL makes "create only if missing" a single step.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, fs.ErrExist):
		return &Store[T]{path: path, schema: s}, nil
	case err != nil:
		return nil, fmt.Errorf("csvfile.New: create %s: %w: %w", path, storage.ErrFileAccess, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(s.Header()); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvfile.New: write header: %w: %w", storage.ErrFileAccess, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("csvfile.New: write header: %w: %w", storage.ErrFileAccess, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("csvfile.New: close: %w: %w", storage.ErrFileAccess, err)
	}

	return &Store[T]{path: path, schema: s}, nil
}

// Path returns the backing file location.
func (s *Store[T]) Path() string { return s.path }

// ReadAll returns every record in file order.
func (s *Store[T]) ReadAll() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readAll()
}

// WriteAll replaces the file contents with the header row followed by
// records, in the given order.
func (s *Store[T]) WriteAll(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeAll(records)
}

// Get scans for the first record whose identifier equals id.
// The bool result is false when nothing matches.
func (s *Store[T]) Get(id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	records, err := s.readAll()
	if err != nil {
		return zero, false, err
	}
	for _, r := range records {
		if s.schema.ID(r) == id {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// Add appends record. Duplicate identifiers are not checked.
func (s *Store[T]) Add(record T) error {
	return s.AddMany([]T{record})
}

// AddMany appends records in one rewrite.
func (s *Store[T]) AddMany(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	return s.writeAll(append(all, records...))
}

// Update replaces the first record whose identifier equals id. If none
// matches the file is rewritten unchanged. A record whose own identifier
// differs from id is rejected with storage.ErrIDMismatch.
func (s *Store[T]) Update(id string, record T) error {
	if got := s.schema.ID(record); got != id {
		return fmt.Errorf("csvfile.Update: %w: target %q, record %q", storage.ErrIDMismatch, id, got)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	for i, r := range all {
		if s.schema.ID(r) == id {
			all[i] = record
			break
		}
	}
	return s.writeAll(all)
}

// Delete removes every record whose identifier equals id.
func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, r := range all {
		if s.schema.ID(r) != id {
			kept = append(kept, r)
		}
	}
	return s.writeAll(kept)
}

// readAll does the work of ReadAll; the caller holds s.mu.
//
// Columns are located through the file's own header row, so a file
// whose columns were reordered by hand still reads correctly. Extra
// columns are ignored.
func (s *Store[T]) readAll() ([]T, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("csvfile.ReadAll: open: %w: %w", storage.ErrFileAccess, err)
	}
	defer f.Close()

	records := make([]T, 0)

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return records, nil // zero-byte file: no header, no rows
	}
	if err != nil {
		return nil, readErr(err)
	}

	columns, err := s.columns(header)
	if err != nil {
		return nil, err
	}

	row := make([]string, len(columns))
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readErr(err)
		}

		for i, c := range columns {
			row[i] = cells[c]
		}
		rec, err := s.schema.Decode(row)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("csvfile.ReadAll: line %d: %w: %w", line, storage.ErrDataCorruption, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// columns maps each declared field to its position in the file header.
func (s *Store[T]) columns(header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}

	fields := s.schema.Fields()
	columns := make([]int, len(fields))
	for i, f := range fields {
		c, ok := pos[f.Name]
		if !ok {
			return nil, fmt.Errorf("csvfile.ReadAll: header has no column %q: %w", f.Name, storage.ErrDataCorruption)
		}
		columns[i] = c
	}
	return columns, nil
}

// readErr classifies an encoding/csv read failure. Parse errors (bad
// quoting, wrong cell count) mean the content is broken; anything else
// is an I/O problem.
func readErr(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("csvfile.ReadAll: %w: %w", storage.ErrDataCorruption, err)
	}
	return fmt.Errorf("csvfile.ReadAll: read: %w: %w", storage.ErrFileAccess, err)
}

// writeAll does the work of WriteAll; the caller holds s.mu.
func (s *Store[T]) writeAll(records []T) error {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := s.schema.Encode(rec)
		if err := checkRow(s.schema.Header(), row); err != nil {
			return fmt.Errorf("csvfile.WriteAll: record %q: %w", s.schema.ID(rec), err)
		}
		rows[i] = row
	}

	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("csvfile.WriteAll: create temp: %w: %w", storage.ErrFileAccess, err)
	}
	// Harmless after a successful rename: the temp name no longer exists.
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(s.schema.Header()); err != nil {
		tmp.Close()
		return fmt.Errorf("csvfile.WriteAll: write header: %w: %w", storage.ErrFileAccess, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("csvfile.WriteAll: write row: %w: %w", storage.ErrFileAccess, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("csvfile.WriteAll: flush: %w: %w", storage.ErrFileAccess, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csvfile.WriteAll: close: %w: %w", storage.ErrFileAccess, err)
	}

	// CreateTemp uses 0600; carry over the mode of the file being replaced.
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("csvfile.WriteAll: chmod: %w: %w", storage.ErrFileAccess, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("csvfile.WriteAll: rename: %w: %w", storage.ErrFileAccess, err)
	}
	return nil
}

// checkRow rejects cells encoding/csv would not read back as written:
// its reader folds "\r\n" inside a quoted field into "\n".
func checkRow(header, row []string) error {
	for i, cell := range row {
		if strings.Contains(cell, "\r\n") {
			return fmt.Errorf("field %q contains a CRLF line break: %w", header[i], storage.ErrUnstorable)
		}
	}
	return nil
}
