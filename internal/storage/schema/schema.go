// Package schema turns a tagged Go struct into a typed field descriptor
// list: the ordered (name, kind) pairs a storage backend needs to turn a
// record into a row and back.
//
// The descriptor is built once, when a store is constructed. Unknown or
// missing fields are rejected there, not on every row.
//
//	type Student struct {
//		Name string `csv:"name"`
//		Age  *int   `csv:"age"`
//	}
//
//	s, err := schema.New[Student]([]string{"name", "age"}, "name")
package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Kind is the storage type of one field.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// ErrEmptyValue is wrapped by a FieldError when a non-optional numeric
// field holds an empty cell.
var ErrEmptyValue = errors.New("empty value")

// ErrOutOfRange is wrapped by a FieldError when a numeric cell parses
// but is negative, NaN or infinite.
var ErrOutOfRange = errors.New("value out of range")

// FieldError describes a cell that could not be decoded.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: cannot decode %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Field describes one column.
type Field struct {
	Name string
	Kind Kind

	// Optional fields are pointers in the struct. An empty cell decodes
	// to nil instead of failing.
	Optional bool

	index []int
	bits  int
}

// Schema is the descriptor list for record type T.
type Schema[T any] struct {
	fields []Field
	id     int
}

// New builds the descriptor for T. fields gives the column order, and
// must name every csv-tagged field of T exactly once. idField must be
// one of them and must be a plain string.
func New[T any](fields []string, idField string) (*Schema[T], error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema.New: %s is not a struct", typ)
	}

	tagged, err := taggedFields(typ)
	if err != nil {
		return nil, fmt.Errorf("schema.New: %w", err)
	}

	s := &Schema[T]{fields: make([]Field, 0, len(fields)), id: -1}
	seen := make(map[string]bool, len(fields))
	for i, name := range fields {
		if seen[name] {
			return nil, fmt.Errorf("schema.New: field %q listed twice", name)
		}
		seen[name] = true

		f, ok := tagged[name]
		if !ok {
			return nil, fmt.Errorf("schema.New: %s has no field tagged %q", typ, name)
		}
		if name == idField {
			if f.Kind != KindText || f.Optional {
				return nil, fmt.Errorf("schema.New: identifier field %q must be a string", name)
			}
			s.id = i
		}
		s.fields = append(s.fields, f)
	}

	for name := range tagged {
		if !seen[name] {
			return nil, fmt.Errorf("schema.New: tagged field %q is not listed", name)
		}
	}
	if s.id < 0 {
		return nil, fmt.Errorf("schema.New: identifier field %q is not listed", idField)
	}

	return s, nil
}

// taggedFields collects every visible csv-tagged field of typ, including
// fields promoted from embedded structs.
func taggedFields(typ reflect.Type) (map[string]Field, error) {
	out := make(map[string]Field)
	for _, sf := range reflect.VisibleFields(typ) {
		name, ok := sf.Tag.Lookup("csv")
		if !ok || name == "" || name == "-" {
			continue
		}
		if !sf.IsExported() {
			return nil, fmt.Errorf("field %s tagged %q is not exported", sf.Name, name)
		}
		if err := checkPath(typ, sf.Index); err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("tag %q used by more than one field", name)
		}

		f := Field{Name: name, index: sf.Index}
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			f.Optional = true
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.String:
			if f.Optional {
				return nil, fmt.Errorf("field %s: optional text is not supported", sf.Name)
			}
			f.Kind = KindText
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f.Kind = KindInteger
			f.bits = ft.Bits()
		case reflect.Float32, reflect.Float64:
			f.Kind = KindDecimal
			f.bits = ft.Bits()
		default:
			return nil, fmt.Errorf("field %s: unsupported type %s", sf.Name, sf.Type)
		}
		out[name] = f
	}
	return out, nil
}

// checkPath rejects fields reached through embedded pointers; those
// would need allocation on every decode and can be nil on encode.
func checkPath(typ reflect.Type, index []int) error {
	for _, i := range index[:len(index)-1] {
		typ = typ.Field(i).Type
		if typ.Kind() == reflect.Pointer {
			return errors.New("embedded pointer structs are not supported")
		}
	}
	return nil
}

// Fields returns the descriptors in column order.
func (s *Schema[T]) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Header returns the column names in order.
func (s *Schema[T]) Header() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// IDField returns the name of the identifier column.
func (s *Schema[T]) IDField() string { return s.fields[s.id].Name }

// ID returns the identifier of rec.
func (s *Schema[T]) ID(rec T) string {
	return reflect.ValueOf(rec).FieldByIndex(s.fields[s.id].index).String()
}

// Encode serializes rec into one cell per field, in column order.
// Absent optional fields become empty cells.
func (s *Schema[T]) Encode(rec T) []string {
	v := reflect.ValueOf(rec)
	row := make([]string, len(s.fields))
	for i, f := range s.fields {
		fv := v.FieldByIndex(f.index)
		if f.Optional {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		switch f.Kind {
		case KindText:
			row[i] = fv.String()
		case KindInteger:
			row[i] = strconv.FormatInt(fv.Int(), 10)
		case KindDecimal:
			row[i] = strconv.FormatFloat(fv.Float(), 'f', -1, f.bits)
		}
	}
	return row
}

// Values returns the native value of every field in column order:
// string, int64 or float64, and nil for absent optional fields.
func (s *Schema[T]) Values(rec T) []any {
	v := reflect.ValueOf(rec)
	out := make([]any, len(s.fields))
	for i, f := range s.fields {
		fv := v.FieldByIndex(f.index)
		if f.Optional {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		switch f.Kind {
		case KindText:
			out[i] = fv.String()
		case KindInteger:
			out[i] = fv.Int()
		case KindDecimal:
			out[i] = fv.Float()
		}
	}
	return out
}

// Decode builds a record from one cell per field, in column order.
// Failures are reported as *FieldError.
func (s *Schema[T]) Decode(row []string) (T, error) {
	var rec T
	if len(row) != len(s.fields) {
		return rec, fmt.Errorf("schema.Decode: got %d cells, want %d", len(row), len(s.fields))
	}

	v := reflect.ValueOf(&rec).Elem()
	for i, f := range s.fields {
		if err := f.decode(v.FieldByIndex(f.index), row[i]); err != nil {
			return rec, &FieldError{Field: f.Name, Value: row[i], Err: err}
		}
	}
	return rec, nil
}

func (f Field) decode(dst reflect.Value, cell string) error {
	if f.Kind == KindText {
		dst.SetString(cell)
		return nil
	}

	if cell == "" {
		if f.Optional {
			dst.SetZero()
			return nil
		}
		return ErrEmptyValue
	}

	if f.Optional {
		p := reflect.New(dst.Type().Elem())
		dst.Set(p)
		dst = p.Elem()
	}

	switch f.Kind {
	case KindInteger:
		n, err := strconv.ParseInt(cell, 10, f.bits)
		if err != nil {
			return err
		}
		if n < 0 {
			return ErrOutOfRange
		}
		dst.SetInt(n)
	case KindDecimal:
		// ParseFloat also takes hex mantissas and digit separators.
		if strings.ContainsAny(cell, "xX_") {
			return strconv.ErrSyntax
		}
		x, err := strconv.ParseFloat(cell, f.bits)
		if err != nil {
			return err
		}
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Signbit(x) {
			return ErrOutOfRange
		}
		dst.SetFloat(x)
	}
	return nil
}
