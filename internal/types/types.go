// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, and utils can all import types without depending
// on each other.
//
// The four shapes build on each other by struct embedding, so the
// common fields are declared exactly once:
//
//	Student
//	 ├── Undergraduate         (+ major)
//	 │    └── ScientificInitiation (+ workedDays, scholarshipAmount)
//	 └── PostGraduate          (+ thesisTitle, supervisor, workedDays, scholarshipAmount)
package types

// Record is implemented by every shape. Key returns the identifier
// (studentId) used to look a record up.
type Record interface {
	Key() string
}

// Student represents the base student record.
//
// Struct tags serve three purposes:
//
//  1. json:"..."     — field name in request and response bodies.
//  2. csv:"..."      — column name in the backing data file.
//  3. validate:"..." — rules checked by go-playground/validator.
//
// Numeric fields are pointers so "absent" (nil) can be told apart from
// zero. "required" on a pointer only demands that the value is present,
// so an age of 0 is accepted while a missing age is not.
type Student struct {
	Name      string `json:"name"      csv:"name"      validate:"required"`
	Age       *int   `json:"age"       csv:"age"       validate:"required,gte=0"`
	StudentID string `json:"studentId" csv:"studentId" validate:"required"`
}

// Key returns the student's identifier.
func (s Student) Key() string { return s.StudentID }

// Undergraduate is a Student enrolled in a major.
type Undergraduate struct {
	Student
	Major string `json:"major" csv:"major" validate:"required"`
}

// ScientificInitiation is an Undergraduate holding a research scholarship.
type ScientificInitiation struct {
	Undergraduate
	WorkedDays        *int     `json:"workedDays"        csv:"workedDays"        validate:"required,gte=0"`
	ScholarshipAmount *float64 `json:"scholarshipAmount" csv:"scholarshipAmount" validate:"required,gte=0"`
}

// PostGraduate is a Student working on a thesis.
type PostGraduate struct {
	Student
	ThesisTitle       string   `json:"thesisTitle"       csv:"thesisTitle"       validate:"required"`
	Supervisor        string   `json:"supervisor"        csv:"supervisor"        validate:"required"`
	WorkedDays        *int     `json:"workedDays"        csv:"workedDays"        validate:"required,gte=0"`
	ScholarshipAmount *float64 `json:"scholarshipAmount" csv:"scholarshipAmount" validate:"required,gte=0"`
}

// Column lists, in file order. The identifier column is IDField in all
// four shapes.
var (
	StudentFields              = []string{"name", "age", "studentId"}
	UndergraduateFields        = []string{"name", "age", "studentId", "major"}
	ScientificInitiationFields = []string{"name", "age", "studentId", "major", "workedDays", "scholarshipAmount"}
	PostGraduateFields         = []string{"name", "age", "studentId", "thesisTitle", "supervisor", "workedDays", "scholarshipAmount"}
)

// IDField is the column holding the record identifier.
const IDField = "studentId"
