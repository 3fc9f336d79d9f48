package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePatient() PatientRecord {
	return PatientRecord{
		Age:               63,
		Sex:               "Male",
		ChestPain:         "typical angina",
		RestingBP:         145,
		Cholesterol:       233,
		FastingBloodSugar: true,
		RestECG:           "lv hypertrophy",
		MaxHeartRate:      150,
		ExerciseAngina:    false,
		STDepression:      2.3,
		STSlope:           "downsloping",
		Vessels:           0,
		Thal:              "fixed defect",
	}
}

func TestEncodeOrdinal(t *testing.T) {
	vector, err := Encode(OrdinalV1(), samplePatient())
	require.NoError(t, err)

	want := []float64{63, 1, 1, 145, 233, 1, 2, 150, 0, 2.3, 3, 0, 6}
	assert.Equal(t, want, vector)
}

func TestEncodeOrdinalMatchesLabelsCaseInsensitively(t *testing.T) {
	record := samplePatient()
	record.Sex = " female "
	record.ChestPain = "ASYMPTOMATIC"

	vector, err := Encode(OrdinalV1(), record)
	require.NoError(t, err)
	assert.Equal(t, 0.0, vector[1])
	assert.Equal(t, 4.0, vector[2])
}

func TestEncodeOneHotFillsMissingIndicatorsWithZero(t *testing.T) {
	schema := OneHotV1()
	vector, err := Encode(schema, samplePatient())
	require.NoError(t, err)
	require.Len(t, vector, schema.Width())

	byName := make(map[string]float64, len(vector))
	for i, col := range schema.Columns {
		byName[col] = vector[i]
	}
	assert.Equal(t, 1.0, byName["cp_typical angina"])
	assert.Equal(t, 0.0, byName["cp_atypical angina"])
	assert.Equal(t, 0.0, byName["cp_non-anginal"])
	// lv hypertrophy, downsloping and fixed defect are the dropped baselines.
	assert.Equal(t, 0.0, byName["restecg_normal"])
	assert.Equal(t, 0.0, byName["restecg_st-t abnormality"])
	assert.Equal(t, 0.0, byName["slope_flat"])
	assert.Equal(t, 0.0, byName["slope_upsloping"])
	assert.Equal(t, 0.0, byName["thal_normal"])
	assert.Equal(t, 0.0, byName["thal_reversable defect"])
	assert.Equal(t, 1.0, byName["sex"])
	assert.Equal(t, 1.0, byName["fbs"])
	assert.Equal(t, 150.0, byName["thalach"])
}

func TestEncodeVectorLengthMatchesSchemaForAllCategories(t *testing.T) {
	for _, schema := range []*Schema{OrdinalV1(), OneHotV1()} {
		for _, cp := range []string{"typical angina", "atypical angina", "non-anginal", "asymptomatic"} {
			for _, thal := range []string{"normal", "fixed defect", "reversable defect"} {
				record := samplePatient()
				record.ChestPain = cp
				record.Thal = thal
				vector, err := Encode(schema, record)
				require.NoError(t, err, "%s cp=%s thal=%s", schema.Name, cp, thal)
				assert.Len(t, vector, schema.Width())
			}
		}
	}
}

func TestEncodeUnknownCategoryFails(t *testing.T) {
	record := samplePatient()
	record.Thal = "reversible defect"

	for _, schema := range []*Schema{OrdinalV1(), OneHotV1()} {
		_, err := Encode(schema, record)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownCategory))

		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, FieldThal, fe.Field)
		assert.Contains(t, fe.Allowed, "reversable defect")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	first, err := Encode(OneHotV1(), samplePatient())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(OneHotV1(), samplePatient())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEncodeRejectsUnderivableColumn(t *testing.T) {
	schema := OrdinalV1()
	schema.Columns = append(schema.Columns, "bmi")

	_, err := Encode(schema, samplePatient())
	assert.ErrorIs(t, err, ErrSchema)
}
