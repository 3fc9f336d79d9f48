package ml

import (
	"fmt"
	"strings"
)

// Encode turns a record into the ordered vector described by schema.
// Indicator columns not triggered by the record are zero. Labels match
// case-insensitively; a label outside the schema is an error.
func Encode(schema *Schema, record PatientRecord) ([]float64, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrSchema)
	}

	values := record.Numeric()
	labels := record.Categorical()
	for _, field := range categoricalFields {
		label := labels[field]
		if categories, ok := schema.Expand[field]; ok {
			category, found := matchCategory(categories, label)
			if !found {
				return nil, &FieldError{Field: field, Value: label, Allowed: categories, Err: ErrUnknownCategory}
			}
			values[IndicatorColumn(field, category)] = 1
			continue
		}
		table, ok := schema.Mappings[field]
		if !ok {
			return nil, fmt.Errorf("%w: schema %s has no encoding for %s", ErrSchema, schema.Name, field)
		}
		v, found := lookupLabel(table, label)
		if !found {
			return nil, &FieldError{Field: field, Value: label, Allowed: sortedKeys(table), Err: ErrUnknownCategory}
		}
		values[field] = v
	}

	indicators := schema.indicatorColumns()
	vector := make([]float64, len(schema.Columns))
	for i, col := range schema.Columns {
		if v, ok := values[col]; ok {
			vector[i] = v
			continue
		}
		if !indicators[col] {
			return nil, fmt.Errorf("%w: schema %s column %q has no value", ErrSchema, schema.Name, col)
		}
	}
	return vector, nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func matchCategory(categories []string, label string) (string, bool) {
	want := normalizeLabel(label)
	for _, c := range categories {
		if normalizeLabel(c) == want {
			return c, true
		}
	}
	return "", false
}

func lookupLabel(table map[string]float64, label string) (float64, bool) {
	if v, ok := table[label]; ok {
		return v, true
	}
	want := normalizeLabel(label)
	for k, v := range table {
		if normalizeLabel(k) == want {
			return v, true
		}
	}
	return 0, false
}
