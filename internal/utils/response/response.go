// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Response is the standard envelope returned for error cases.
//
// Success responses return the record (or list of records) itself.
// Error responses always look like:
//
//	{ "status": "error", "error": "student not found: S1" }
//
// ─────────────────────────────────────────────────────────────────────────────
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Error  string `json:"error"`  // human-readable error detail
}

// Status string constants — use these instead of raw string literals so
// a typo is caught by the compiler rather than silently sending "eroor".
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// WriteJSON sets the JSON content type, writes status, then writes data
// as the body. Headers are locked once WriteHeader runs, so data is
// encoded first: if it cannot be encoded the client gets a 500 envelope
// instead of the intended status with an empty body, and the error is
// logged and returned.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding response", slog.Int("status", status), slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Errorf("cannot encode response: %v", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, werr := w.Write(append(body, '\n')); werr != nil && err == nil {
		err = werr
	}
	return err
}

// GeneralError wraps any Go error into our standard Response shape.
//
//	response.WriteJSON(w, http.StatusInternalServerError,
//	    response.GeneralError(err))
func GeneralError(err error) Response {
	return Response{Status: StatusError, Error: err.Error()}
}

// Errorf is GeneralError for a formatted message.
func Errorf(format string, args ...any) Response {
	return Response{Status: StatusError, Error: fmt.Sprintf(format, args...)}
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts a slice of validator.FieldError values into
// a single human-readable Response.
//
// The go-playground/validator package returns one FieldError per failing
// struct field. We convert each to a plain English sentence and join them
// with ", " so the client sees a single descriptive error string.
//
// Field names are whatever the validator reports; the handlers register
// the json tag as the name, so messages use the API's spelling:
//
//	{ "status": "error", "error": "field name is required, field age must not be negative" }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	messages := make([]string, 0, len(errs))

	for _, e := range errs {
		switch e.ActualTag() {
		// "required" tag — field was missing, empty, or null
		case "required":
			messages = append(messages,
				fmt.Sprintf("field %s is required", e.Field()))
		// "gte" tag — numeric field below its minimum
		case "gte":
			if e.Param() == "0" {
				messages = append(messages,
					fmt.Sprintf("field %s must not be negative", e.Field()))
			} else {
				messages = append(messages,
					fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
			}
		// Catch-all for any other validation tag (min, max, len, etc.)
		default:
			messages = append(messages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Response{Status: StatusError, Error: strings.Join(messages, ", ")}
}
