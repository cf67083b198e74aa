package schema

import (
	"math"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/errors"
)

// InferSchema infers an entity schema from sample records. A column's final
// type is the loosest type observed across samples (boolean < integer <
// float < string); a column whose samples are all null defaults to string.
// The primary key defaults to "<entity>_id" or "id" when present; an entity
// without a determinable primary key cannot be synced incrementally and
// fails resolution.
func InferSchema(entity string, samples []map[string]interface{}) (*EntitySchema, error) {
	if len(samples) == 0 {
		return nil, errors.Newf(errors.ErrorTypeSchema, "no sample records available to infer schema for %s", entity)
	}

	columns := make(map[string]FieldType)
	for _, sample := range samples {
		for name, value := range sample {
			if value == nil {
				// Null carries no type information; remember the column
				if _, seen := columns[name]; !seen {
					columns[name] = ""
				}
				continue
			}
			observed := detectValueType(value)
			if current, seen := columns[name]; seen && current != "" {
				columns[name] = Widen(current, observed)
			} else {
				columns[name] = observed
			}
		}
	}

	for name, ft := range columns {
		if ft == "" {
			columns[name] = FieldTypeString
		}
	}

	pk, err := detectPrimaryKey(entity, columns)
	if err != nil {
		return nil, err
	}

	s := &EntitySchema{
		Entity:      entity,
		PrimaryKeys: []string{pk},
		Columns:     columns,
		Source:      SourceInferred,
	}
	return s, s.Validate()
}

// detectValueType classifies a single decoded JSON value. Numeric strings
// stay strings: a "42" among real integers must widen the column to string.
func detectValueType(value interface{}) FieldType {
	switch v := value.(type) {
	case bool:
		return FieldTypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return FieldTypeInteger
	case float32:
		return FieldTypeFloat
	case float64:
		// JSON decoding yields float64 for all numbers
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return FieldTypeInteger
		}
		return FieldTypeFloat
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return FieldTypeTimestamp
		}
		return FieldTypeString
	case time.Time:
		return FieldTypeTimestamp
	default:
		return FieldTypeString
	}
}

func detectPrimaryKey(entity string, columns map[string]FieldType) (string, error) {
	if _, ok := columns[entity+"_id"]; ok {
		return entity + "_id", nil
	}
	if _, ok := columns["id"]; ok {
		return "id", nil
	}
	return "", errors.Newf(errors.ErrorTypeSchema, "no determinable primary key for entity %s", entity)
}
