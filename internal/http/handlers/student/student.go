// Package student contains the HTTP handlers for every student kind
// (students, undergraduates, scientific initiation students,
// postgraduates).
//
// HANDLER PATTERN USED HERE — THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// That signature has no room for extra parameters like a store. To
// inject dependencies we use a factory function that accepts them and
// returns a function with the exact signature the router needs. The
// inner function "closes over" the outer parameters.
//
// The four kinds only differ in their record type, so every factory is
// generic over T. One *Resource[T] per kind carries the store and the
// name used in messages:
//
//	students := student.NewResource("student", studentStore)
//	router.HandleFunc("POST /api/students", student.New(students))
//
// VALIDATION lives here, not in storage: required fields must be
// present and non-empty, numeric fields must not be negative
// (validate:"..." tags on the types). "Already exists" and "not found"
// are also decided here, using the store's Get.
package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/aanand-mishra/student-management-api/internal/storage"
	"github.com/aanand-mishra/student-management-api/internal/types"
	"github.com/aanand-mishra/student-management-api/internal/utils/response"
	"github.com/go-playground/validator/v10"
)

// validate is shared by all handlers. A *validator.Validate is safe for
// concurrent use and caches struct metadata, so building it once avoids
// re-parsing tags on every request.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json name ("studentId"), not the Go name
	// ("StudentID"), so error messages match what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Resource is one entity kind exposed over HTTP.
type Resource[T types.Record] struct {
	// Name is the singular used in messages, e.g. "undergraduate".
	Name  string
	Store storage.Store[T]

	// mu makes "check, then write" atomic across requests: without it two
	// concurrent creates of the same studentId could both pass the
	// existence check.
	mu sync.Mutex
}

// NewResource returns the Resource for one kind.
func NewResource[T types.Record](name string, store storage.Store[T]) *Resource[T] {
	return &Resource[T]{Name: name, Store: store}
}

// Register wires the six routes of res under prefix, e.g. "/api/students":
//
//	POST   {prefix}        → create one
//	POST   {prefix}/batch  → create many
//	GET    {prefix}        → list all
//	GET    {prefix}/{id}   → get one by studentId
//	PUT    {prefix}/{id}   → replace one
//	DELETE {prefix}/{id}   → delete one
func Register[T types.Record](router *http.ServeMux, prefix string, res *Resource[T]) {
	router.HandleFunc("POST "+prefix, New(res))
	router.HandleFunc("POST "+prefix+"/batch", NewBatch(res))
	router.HandleFunc("GET "+prefix, GetList(res))
	router.HandleFunc("GET "+prefix+"/{id}", GetByID(res))
	router.HandleFunc("PUT "+prefix+"/{id}", Update(res))
	router.HandleFunc("DELETE "+prefix+"/{id}", Delete(res))
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST {prefix}
// Creates one record from the JSON request body.
//
// Request body (JSON), for a student:
//
//	{ "name": "Ana", "age": 20, "studentId": "S1" }
//
// Success response (201 Created): the stored record.
//
// Error responses:
//
//	400 Bad Request           — empty body or malformed JSON
//	409 Conflict              — studentId already stored
//	422 Unprocessable Entity  — failed validation, or a value the store cannot hold
//	500 Internal              — storage error
//
// ─────────────────────────────────────────────────────────────────────────────
func New[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating " + res.Name)

		var rec T
		if !decode(w, r, &rec) {
			return
		}
		if !valid(w, rec, "") {
			return
		}

		res.mu.Lock()
		defer res.mu.Unlock()

		_, exists, err := res.Store.Get(rec.Key())
		if err != nil {
			storageError(w, "error checking "+res.Name, rec.Key(), err)
			return
		}
		if exists {
			response.WriteJSON(w, http.StatusConflict,
				response.Errorf("%s already exists: %s", res.Name, rec.Key()))
			return
		}

		if err := res.Store.Add(rec); err != nil {
			storageError(w, "error creating "+res.Name, rec.Key(), err)
			return
		}

		slog.Info(res.Name+" created", slog.String("id", rec.Key()))
		response.WriteJSON(w, http.StatusCreated, rec)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// NewBatch handles POST {prefix}/batch
// Creates several records from a JSON array.
//
// The whole batch is checked before anything is written: every entry
// must validate, no studentId may appear twice in the batch, and none
// may already be stored. A rejected batch persists nothing; an accepted
// one is written in a single store rewrite.
//
// Success response (201 Created): the stored records, in request order.
// Error responses are as for New; messages name the failing entry.
// ─────────────────────────────────────────────────────────────────────────────
func NewBatch[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating " + res.Name + " batch")

		var batch []T
		if !decode(w, r, &batch) {
			return
		}

		for i, rec := range batch {
			if !valid(w, rec, fmt.Sprintf("entry %d: ", i)) {
				return
			}
		}

		res.mu.Lock()
		defer res.mu.Unlock()

		seen := make(map[string]bool, len(batch))
		for _, rec := range batch {
			id := rec.Key()
			if seen[id] {
				response.WriteJSON(w, http.StatusConflict,
					response.Errorf("duplicate studentId in batch: %s", id))
				return
			}
			seen[id] = true

			_, exists, err := res.Store.Get(id)
			if err != nil {
				storageError(w, "error checking "+res.Name, id, err)
				return
			}
			if exists {
				response.WriteJSON(w, http.StatusConflict,
					response.Errorf("%s already exists: %s", res.Name, id))
				return
			}
		}

		if batch == nil {
			batch = make([]T, 0) // encode as [] rather than null
		}
		if err := res.Store.AddMany(batch); err != nil {
			storageError(w, "error creating "+res.Name+" batch", "", err)
			return
		}

		slog.Info(res.Name+" batch created", slog.Int("count", len(batch)))
		response.WriteJSON(w, http.StatusCreated, batch)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET {prefix}
// Returns a JSON array of all records, in insertion order.
// Returns an empty array [] (not null) when there are none.
// ─────────────────────────────────────────────────────────────────────────────
func GetList[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all " + res.Name + " records")

		records, err := res.Store.ReadAll()
		if err != nil {
			storageError(w, "error listing "+res.Name+" records", "", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, records)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET {prefix}/{id}
// Fetches one record by studentId.
//
// Error responses:
//
//	404 Not Found  — no record with that studentId
//	500 Internal   — storage error
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.PathValue("id") extracts the {id} segment from the URL
		// (Go 1.22+ ServeMux patterns).
		id := r.PathValue("id")
		slog.Info("getting "+res.Name, slog.String("id", id))

		rec, found, err := res.Store.Get(id)
		if err != nil {
			storageError(w, "error getting "+res.Name, id, err)
			return
		}
		if !found {
			notFound(w, res.Name, id)
			return
		}

		response.WriteJSON(w, http.StatusOK, rec)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT {prefix}/{id}
// Replaces ALL fields of an existing record. The body must carry the
// same studentId as the path: identifiers are never renamed.
//
// Success response (200 OK): the stored record.
//
// Error responses:
//
//	400 Bad Request           — empty body, malformed JSON, or studentId mismatch
//	404 Not Found             — no record with that studentId
//	422 Unprocessable Entity  — failed validation, or a value the store cannot hold
//	500 Internal              — storage error
//
// ─────────────────────────────────────────────────────────────────────────────
func Update[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("updating "+res.Name, slog.String("id", id))

		var rec T
		if !decode(w, r, &rec) {
			return
		}
		if !valid(w, rec, "") {
			return
		}
		if rec.Key() != id {
			response.WriteJSON(w, http.StatusBadRequest,
				response.Errorf("studentId in body (%s) does not match path (%s)", rec.Key(), id))
			return
		}

		res.mu.Lock()
		defer res.mu.Unlock()

		_, found, err := res.Store.Get(id)
		if err != nil {
			storageError(w, "error getting "+res.Name, id, err)
			return
		}
		if !found {
			notFound(w, res.Name, id)
			return
		}

		if err := res.Store.Update(id, rec); err != nil {
			storageError(w, "error updating "+res.Name, id, err)
			return
		}

		slog.Info(res.Name+" updated", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, rec)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE {prefix}/{id}
// Removes every record carrying that studentId.
//
// Success response (200 OK):
//
//	{ "status": "deleted" }
//
// Error responses:
//
//	404 Not Found  — no record with that studentId
//	500 Internal   — storage error
//
// ─────────────────────────────────────────────────────────────────────────────
func Delete[T types.Record](res *Resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("deleting "+res.Name, slog.String("id", id))

		res.mu.Lock()
		defer res.mu.Unlock()

		_, found, err := res.Store.Get(id)
		if err != nil {
			storageError(w, "error getting "+res.Name, id, err)
			return
		}
		if !found {
			notFound(w, res.Name, id)
			return
		}

		if err := res.Store.Delete(id); err != nil {
			storageError(w, "error deleting "+res.Name, id, err)
			return
		}

		slog.Info(res.Name+" deleted", slog.String("id", id))
		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// decode reads the JSON body into dst. On failure it writes the 400
// response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		// io.EOF means the body was completely empty — nothing to decode.
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("request body is empty")))
		return false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}
	return true
}

// valid runs the validate:"..." rules on rec. On failure it writes the
// 422 response, with prefix in front of the message, and returns false.
func valid(w http.ResponseWriter, rec any, prefix string) bool {
	err := validate.Struct(rec)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
		return false
	}

	resp := response.ValidationError(verrs)
	resp.Error = prefix + resp.Error
	response.WriteJSON(w, http.StatusUnprocessableEntity, resp)
	return false
}

func notFound(w http.ResponseWriter, name, id string) {
	response.WriteJSON(w, http.StatusNotFound,
		response.Errorf("%s not found: %s", name, id))
}

// storageError logs err and answers 500. Identifier mismatches cannot
// reach the store through Update (checked above) but are mapped to 400
// in case a store reports one. A value the backend refuses to store is
// the client's to fix: 422.
func storageError(w http.ResponseWriter, msg, id string, err error) {
	slog.Error(msg, slog.String("id", id), slog.String("error", err.Error()))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrIDMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrUnstorable):
		status = http.StatusUnprocessableEntity
	}
	response.WriteJSON(w, status, response.GeneralError(err))
}
