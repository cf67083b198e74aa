// Package schema resolves one validated schema per POS entity type. A schema
// is either loaded from a predefined file or inferred from sample records;
// static schemas take strict precedence. Resolved schemas are immutable and
// cached for the lifetime of a single invocation.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/errors"
)

// FieldType represents the data type of a schema column
type FieldType string

const (
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeString    FieldType = "string"
	FieldTypeTimestamp FieldType = "timestamp"
)

// SchemaSource indicates how a schema was resolved
type SchemaSource string

const (
	// SourceStatic marks a schema loaded from a predefined file
	SourceStatic SchemaSource = "static"
	// SourceInferred marks a schema inferred from sample records
	SourceInferred SchemaSource = "inferred"
)

// rank orders types by looseness for widening. Timestamp is a refinement of
// string: mixing it with anything else collapses to string.
var rank = map[FieldType]int{
	FieldTypeBoolean: 1,
	FieldTypeInteger: 2,
	FieldTypeFloat:   3,
	FieldTypeString:  4,
}

// Widen returns the loosest of two field types. boolean < integer < float <
// string; timestamp widens to string against any other type.
func Widen(a, b FieldType) FieldType {
	if a == b {
		return a
	}
	if a == FieldTypeTimestamp || b == FieldTypeTimestamp {
		return FieldTypeString
	}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// EntitySchema describes the validated shape of one entity type. Once
// resolved for an invocation it must not be mutated.
type EntitySchema struct {
	Entity      string               `yaml:"entity" json:"entity"`
	PrimaryKeys []string             `yaml:"primary_keys" json:"primary_key"`
	Columns     map[string]FieldType `yaml:"columns" json:"columns"`
	Source      SchemaSource         `yaml:"-" json:"source"`
}

// Validate checks internal consistency of a schema
func (s *EntitySchema) Validate() error {
	if s.Entity == "" {
		return errors.New(errors.ErrorTypeSchema, "schema entity name is empty")
	}
	if len(s.PrimaryKeys) == 0 {
		return errors.Newf(errors.ErrorTypeSchema, "schema for %s declares no primary key", s.Entity)
	}
	if len(s.Columns) == 0 {
		return errors.Newf(errors.ErrorTypeSchema, "schema for %s declares no columns", s.Entity)
	}
	for _, pk := range s.PrimaryKeys {
		if _, ok := s.Columns[pk]; !ok {
			return errors.Newf(errors.ErrorTypeSchema, "schema for %s: primary key %q is not a declared column", s.Entity, pk)
		}
	}
	for name, ft := range s.Columns {
		switch ft {
		case FieldTypeBoolean, FieldTypeInteger, FieldTypeFloat, FieldTypeString, FieldTypeTimestamp:
		default:
			return errors.Newf(errors.ErrorTypeSchema, "schema for %s: column %q has unknown type %q", s.Entity, name, ft)
		}
	}
	return nil
}

// ColumnNames returns the declared column names in sorted order
func (s *EntitySchema) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project maps a record onto the declared columns: undeclared fields are
// dropped, declared fields are coerced to their column type, and coercion
// failures become nil. Returns an error if any primary-key column ends up
// missing or nil, since such a record cannot be emitted.
func (s *EntitySchema) Project(data map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.Columns))
	for name, ft := range s.Columns {
		v, ok := data[name]
		if !ok || v == nil {
			out[name] = nil
			continue
		}
		out[name] = Coerce(v, ft)
	}

	for _, pk := range s.PrimaryKeys {
		if out[pk] == nil {
			return nil, errors.Newf(errors.ErrorTypeData, "record for %s is missing primary key column %q", s.Entity, pk)
		}
	}
	return out, nil
}

// Coerce converts a decoded JSON value to the given field type, returning nil
// when the value cannot represent that type.
func Coerce(v interface{}, ft FieldType) interface{} {
	switch ft {
	case FieldTypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed
			}
		}
		return nil
	case FieldTypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int64:
			return n
		case float64:
			if n == math.Trunc(n) && !math.IsInf(n, 0) {
				return int64(n)
			}
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				return parsed
			}
		}
		return nil
	case FieldTypeFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed
			}
		}
		return nil
	case FieldTypeTimestamp:
		switch t := v.(type) {
		case string:
			if _, err := time.Parse(time.RFC3339, t); err == nil {
				return t
			}
		case time.Time:
			return t.Format(time.RFC3339)
		}
		return nil
	case FieldTypeString:
		switch sv := v.(type) {
		case string:
			return sv
		case bool:
			return strconv.FormatBool(sv)
		case float64:
			return strconv.FormatFloat(sv, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(sv, 10)
		case int:
			return strconv.Itoa(sv)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	return nil
}
