package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPatient() map[string]interface{} {
	return map[string]interface{}{
		"age":      63.0,
		"sex":      "Male",
		"cp":       "typical angina",
		"trestbps": 145.0,
		"chol":     233.0,
		"fbs":      true,
		"restecg":  "lv hypertrophy",
		"thalach":  150.0,
		"exang":    false,
		"oldpeak":  2.3,
		"slope":    "downsloping",
		"ca":       0.0,
		"thal":     "fixed defect",
	}
}

func TestParseRecord(t *testing.T) {
	record, err := ParseRecord(rawPatient())
	require.NoError(t, err)
	assert.Equal(t, samplePatient(), record)
}

func TestParseRecordCoercesLooseTypes(t *testing.T) {
	raw := rawPatient()
	raw["age"] = " 63 "
	raw["fbs"] = "True"
	raw["exang"] = 0.0
	delete(raw, "thalach")
	raw["thalch"] = "150"

	record, err := ParseRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, samplePatient(), record)
}

func TestParseRecordReportsAllMissingFields(t *testing.T) {
	raw := rawPatient()
	delete(raw, "chol")
	delete(raw, "thal")
	raw["ca"] = nil

	_, err := ParseRecord(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))

	var missing *MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"chol", "ca", "thal"}, missing.Fields)
}

func TestParseRecordRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value interface{}
	}{
		{"non numeric age", "age", "sixty"},
		{"boolean as number", "chol", true},
		{"flag out of range", "fbs", 2.0},
		{"flag word", "exang", "maybe"},
		{"age out of range", "age", 250.0},
		{"too many vessels", "ca", 7.0},
		{"empty label", "sex", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawPatient()
			raw[tt.field] = tt.value
			_, err := ParseRecord(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidField), "got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestRecordFieldsMatchOrdinalColumns(t *testing.T) {
	assert.Equal(t, RecordFields(), OrdinalV1().Columns)
	assert.Len(t, RecordFields(), 13)
}
