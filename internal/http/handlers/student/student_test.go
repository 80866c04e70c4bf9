package student

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-management-api/internal/storage"
	"github.com/aanand-mishra/student-management-api/internal/storage/csvfile"
	"github.com/aanand-mishra/student-management-api/internal/types"
	"github.com/aanand-mishra/student-management-api/internal/utils/response"
)

func ptr[T any](v T) *T { return &v }

// newServer wires the student and postgraduate routes over temp-dir CSV
// stores, the way main does.
func newServer(t *testing.T) (*http.ServeMux, storage.Store[types.Student]) {
	t.Helper()
	dir := t.TempDir()

	students, err := csvfile.New[types.Student](
		filepath.Join(dir, "students.csv"), types.StudentFields, types.IDField)
	require.NoError(t, err)
	postgrads, err := csvfile.New[types.PostGraduate](
		filepath.Join(dir, "postgraduates.csv"), types.PostGraduateFields, types.IDField)
	require.NoError(t, err)

	router := http.NewServeMux()
	Register(router, "/api/students", NewResource[types.Student]("student", students))
	Register(router, "/api/postgraduates", NewResource[types.PostGraduate]("postgraduate", postgrads))
	return router, students
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, response.StatusError, resp.Status)
	return resp.Error
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "valid student",
			body:       `{"name":"Ana","age":20,"studentId":"S1"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "age zero is allowed",
			body:       `{"name":"Bebe","age":0,"studentId":"S0"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantError:  "request body is empty",
		},
		{
			name:       "malformed json",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing name",
			body:       `{"age":20,"studentId":"S1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field name is required",
		},
		{
			name:       "missing age",
			body:       `{"name":"Ana","studentId":"S1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field age is required",
		},
		{
			name:       "negative age",
			body:       `{"name":"Ana","age":-1,"studentId":"S1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field age must not be negative",
		},
		{
			name:       "CRLF in name",
			body:       `{"name":"Ana\r\nMaria","age":20,"studentId":"S1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "record cannot be stored",
		},
		{
			name:       "empty studentId",
			body:       `{"name":"Ana","age":20,"studentId":""}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "field studentId is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newServer(t)

			rec := do(t, router, http.MethodPost, "/api/students", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, errorMessage(t, rec), tt.wantError)
			}
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	router, _ := newServer(t)

	body := `{"name":"Ana","age":20,"studentId":"S1"}`
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/students", body).Code)

	rec := do(t, router, http.MethodPost, "/api/students", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "student already exists: S1", errorMessage(t, rec))
}

func TestCreatePostGraduate(t *testing.T) {
	router, _ := newServer(t)

	body := `{"name":"Ana Paula","age":27,"studentId":"PG101","thesisTitle":"Deep Learning em Saúde",` +
		`"supervisor":"Dr. Silva","workedDays":200,"scholarshipAmount":1500.5}`
	rec := do(t, router, http.MethodPost, "/api/postgraduates", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/postgraduates/PG101", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.PostGraduate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, types.PostGraduate{
		Student:           types.Student{Name: "Ana Paula", Age: ptr(27), StudentID: "PG101"},
		ThesisTitle:       "Deep Learning em Saúde",
		Supervisor:        "Dr. Silva",
		WorkedDays:        ptr(200),
		ScholarshipAmount: ptr(1500.5),
	}, got)

	t.Run("missing shape fields are rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/postgraduates",
			`{"name":"X","age":27,"studentId":"PG102","thesisTitle":"T","workedDays":-1,"scholarshipAmount":1}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		msg := errorMessage(t, rec)
		assert.Contains(t, msg, "field supervisor is required")
		assert.Contains(t, msg, "field workedDays must not be negative")
	})
}

func TestBatch(t *testing.T) {
	t.Run("creates every entry in order", func(t *testing.T) {
		router, store := newServer(t)

		rec := do(t, router, http.MethodPost, "/api/students/batch",
			`[{"name":"Ana","age":20,"studentId":"S1"},{"name":"Beto","age":21,"studentId":"S2"}]`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created []types.Student
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.Len(t, created, 2)

		records, err := store.ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "S1", records[0].StudentID)
		assert.Equal(t, "S2", records[1].StudentID)
	})

	tests := []struct {
		name       string
		existing   string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "duplicate inside batch",
			body:       `[{"name":"Ana","age":20,"studentId":"S1"},{"name":"Ana2","age":20,"studentId":"S1"}]`,
			wantStatus: http.StatusConflict,
			wantError:  "duplicate studentId in batch: S1",
		},
		{
			name:       "already stored",
			existing:   `{"name":"Old","age":50,"studentId":"S2"}`,
			body:       `[{"name":"Ana","age":20,"studentId":"S1"},{"name":"Beto","age":21,"studentId":"S2"}]`,
			wantStatus: http.StatusConflict,
			wantError:  "student already exists: S2",
		},
		{
			name:       "invalid entry",
			body:       `[{"name":"Ana","age":20,"studentId":"S1"},{"name":"","age":21,"studentId":"S2"}]`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "entry 1: field name is required",
		},
		{
			name:       "not an array",
			body:       `{"name":"Ana","age":20,"studentId":"S1"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, store := newServer(t)
			if tt.existing != "" {
				require.Equal(t, http.StatusCreated,
					do(t, router, http.MethodPost, "/api/students", tt.existing).Code)
			}
			before, err := store.ReadAll()
			require.NoError(t, err)

			rec := do(t, router, http.MethodPost, "/api/students/batch", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorMessage(t, rec))
			}

			// a rejected batch persists nothing
			after, err := store.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	t.Run("empty array", func(t *testing.T) {
		router, _ := newServer(t)

		rec := do(t, router, http.MethodPost, "/api/students/batch", `[]`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})
}

func TestList(t *testing.T) {
	router, _ := newServer(t)

	rec := do(t, router, http.MethodGet, "/api/students", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	do(t, router, http.MethodPost, "/api/students", `{"name":"Ana","age":20,"studentId":"S1"}`)
	do(t, router, http.MethodPost, "/api/students", `{"name":"Beto","age":21,"studentId":"S2"}`)

	rec = do(t, router, http.MethodGet, "/api/students", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"name":"Ana","age":20,"studentId":"S1"},{"name":"Beto","age":21,"studentId":"S2"}]`,
		rec.Body.String())
}

func TestGetByID(t *testing.T) {
	router, _ := newServer(t)
	do(t, router, http.MethodPost, "/api/students", `{"name":"Ana","age":20,"studentId":"S1"}`)

	rec := do(t, router, http.MethodGet, "/api/students/S1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Ana","age":20,"studentId":"S1"}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/students/S404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "student not found: S404", errorMessage(t, rec))
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantStored string
	}{
		{
			name:       "replaces the record",
			path:       "/api/students/S1",
			body:       `{"name":"Ana Maria","age":30,"studentId":"S1"}`,
			wantStatus: http.StatusOK,
			wantStored: `{"name":"Ana Maria","age":30,"studentId":"S1"}`,
		},
		{
			name:       "unknown id",
			path:       "/api/students/S404",
			body:       `{"name":"Nobody","age":30,"studentId":"S404"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "identifier mismatch",
			path:       "/api/students/S1",
			body:       `{"name":"Ana","age":30,"studentId":"S2"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid body",
			path:       "/api/students/S1",
			body:       `{"name":"Ana","age":-3,"studentId":"S1"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newServer(t)
			original := `{"name":"Ana","age":20,"studentId":"S1"}`
			do(t, router, http.MethodPost, "/api/students", original)

			rec := do(t, router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			want := tt.wantStored
			if want == "" {
				want = original
			}
			stored := do(t, router, http.MethodGet, "/api/students/S1", "")
			assert.JSONEq(t, want, stored.Body.String())
		})
	}
}

func TestDelete(t *testing.T) {
	router, _ := newServer(t)
	do(t, router, http.MethodPost, "/api/students", `{"name":"Ana","age":20,"studentId":"S1"}`)

	rec := do(t, router, http.MethodDelete, "/api/students/S1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"deleted"}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/students/S1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/students/S1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "students.csv")
	store, err := csvfile.New[types.Student](path, types.StudentFields, types.IDField)
	require.NoError(t, err)

	router := http.NewServeMux()
	Register(router, "/api/students", NewResource[types.Student]("student", store))

	// Corrupt the file behind the store's back.
	require.NoError(t, os.WriteFile(path, []byte("name,age,studentId\nAna,twenty,S1\n"), 0o644))

	rec := do(t, router, http.MethodGet, "/api/students", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "data corruption")
}

func TestListRejectsOutOfRangeNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scientifics.csv")
	store, err := csvfile.New[types.ScientificInitiation](path, types.ScientificInitiationFields, types.IDField)
	require.NoError(t, err)

	router := http.NewServeMux()
	Register(router, "/api/scientifics", NewResource[types.ScientificInitiation]("scientific initiation", store))

	require.NoError(t, os.WriteFile(path,
		[]byte("name,age,studentId,major,workedDays,scholarshipAmount\nA,20,S1,M,-3,NaN\n"), 0o644))

	rec := do(t, router, http.MethodGet, "/api/scientifics", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "data corruption")
}
