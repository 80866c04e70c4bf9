package response

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]int{"n": 1}))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestWriteJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteJSON(rec, http.StatusOK, map[string]float64{"amount": math.NaN()})
	require.Error(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "cannot encode response")
}

func TestGeneralError(t *testing.T) {
	resp := GeneralError(errors.New("boom"))
	assert.Equal(t, Response{Status: StatusError, Error: "boom"}, resp)

	b, err := json.Marshal(Errorf("student not found: %s", "S1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":"student not found: S1"}`, string(b))
}

func TestValidationError(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Age   *int   `validate:"required,gte=0"`
		Score int    `validate:"gte=10"`
		Code  string `validate:"len=3"`
	}
	neg := -1

	err := validator.New().Struct(input{Age: &neg, Score: 5, Code: "ab"})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	resp := ValidationError(verrs)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t,
		"field Name is required, field Age must not be negative, field Score must be at least 10, field Code is invalid",
		resp.Error)
}
