// Package storage defines the Store contract — what any record backend
// must offer to work with this application — and the error kinds every
// backend reports.
//
// WHY AN INTERFACE?
// ─────────────────
// Handlers (HTTP layer) should not know or care whether records live in
// a CSV file or a SQLite table. By depending only on this interface:
//
//   - Switching backends = change one config value. Zero handler changes.
//
//   - Writing tests = pass any implementation, including a temp-dir
//     CSV store. No special fixtures needed.
package storage

import "errors"

// Error kinds. Backends wrap these with %w, so callers test them with
// errors.Is rather than comparing messages.
var (
	// ErrFileAccess means the backing file (or database) could not be
	// created, opened, read or written. The operation was aborted.
	ErrFileAccess = errors.New("file access error")

	// ErrDataCorruption means a stored row could not be parsed into its
	// declared shape. Nothing is returned for the remaining rows.
	ErrDataCorruption = errors.New("data corruption")

	// ErrIDMismatch is returned by Update when the replacement record
	// carries a different identifier than the one being targeted.
	ErrIDMismatch = errors.New("record identifier does not match target identifier")

	// ErrUnstorable means a record holds a value the backend cannot write
	// and read back unchanged. Nothing was written.
	ErrUnstorable = errors.New("record cannot be stored")
)

// Store is the record persistence contract for one entity kind.
//
// "Not found" is never an error: Get reports it through its bool result,
// and Update/Delete on an unknown identifier are silent no-ops.
// Uniqueness of identifiers is the caller's responsibility.
type Store[T any] interface {
	// ReadAll returns every record in insertion order.
	// Returns an empty slice (not nil) if there are none.
	ReadAll() ([]T, error)

	// WriteAll replaces the whole contents with records, in order.
	WriteAll(records []T) error

	// Get returns the first record whose identifier equals id.
	Get(id string) (T, bool, error)

	// Add appends one record.
	Add(record T) error

	// AddMany appends records in a single rewrite.
	AddMany(records []T) error

	// Update replaces the first record whose identifier equals id.
	Update(id string, record T) error

	// Delete removes every record whose identifier equals id.
	Delete(id string) error
}
