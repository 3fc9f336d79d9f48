package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// Record field names as they appear in requests and schema columns.
const (
	FieldAge          = "age"
	FieldSex          = "sex"
	FieldChestPain    = "cp"
	FieldRestingBP    = "trestbps"
	FieldCholesterol  = "chol"
	FieldFastingSugar = "fbs"
	FieldRestECG      = "restecg"
	FieldMaxHeartRate = "thalach"
	FieldExerciseAng  = "exang"
	FieldSTDepression = "oldpeak"
	FieldSTSlope      = "slope"
	FieldVessels      = "ca"
	FieldThal         = "thal"
)

var (
	numericFields     = []string{FieldAge, FieldRestingBP, FieldCholesterol, FieldMaxHeartRate, FieldSTDepression, FieldVessels}
	flagFields        = []string{FieldFastingSugar, FieldExerciseAng}
	categoricalFields = []string{FieldSex, FieldChestPain, FieldRestECG, FieldSTSlope, FieldThal}

	// fieldAliases maps alternate spellings seen in older clients to canonical names.
	fieldAliases = map[string]string{
		"thalch": FieldMaxHeartRate,
	}

	validate = newValidator()
)

// PatientRecord is the raw attribute record submitted by a client.
type PatientRecord struct {
	Age               float64 `json:"age" validate:"gte=0,lte=130"`
	Sex               string  `json:"sex" validate:"required"`
	ChestPain         string  `json:"cp" validate:"required"`
	RestingBP         float64 `json:"trestbps" validate:"gte=0,lte=300"`
	Cholesterol       float64 `json:"chol" validate:"gte=0,lte=1000"`
	FastingBloodSugar bool    `json:"fbs"`
	RestECG           string  `json:"restecg" validate:"required"`
	MaxHeartRate      float64 `json:"thalach" validate:"gte=0,lte=300"`
	ExerciseAngina    bool    `json:"exang"`
	STDepression      float64 `json:"oldpeak" validate:"gte=-10,lte=10"`
	STSlope           string  `json:"slope" validate:"required"`
	Vessels           float64 `json:"ca" validate:"gte=0,lte=4"`
	Thal              string  `json:"thal" validate:"required"`
}

// RecordFields returns every field a record must carry, in schema column order.
func RecordFields() []string {
	return []string{
		FieldAge, FieldSex, FieldChestPain, FieldRestingBP, FieldCholesterol, FieldFastingSugar,
		FieldRestECG, FieldMaxHeartRate, FieldExerciseAng, FieldSTDepression, FieldSTSlope,
		FieldVessels, FieldThal,
	}
}

// ParseRecord coerces a loosely typed attribute map into a PatientRecord.
// Every missing field is reported at once; the first coercion failure per field is reported.
func ParseRecord(raw map[string]interface{}) (PatientRecord, error) {
	values := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		name := strings.TrimSpace(key)
		if canonical, ok := fieldAliases[name]; ok {
			if _, exists := raw[canonical]; exists {
				continue
			}
			name = canonical
		}
		values[name] = value
	}

	var missing []string
	for _, field := range RecordFields() {
		if v, ok := values[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return PatientRecord{}, &MissingFieldsError{Fields: missing}
	}

	numbers := make(map[string]float64, len(numericFields))
	var errs []error
	for _, field := range numericFields {
		v, err := toNumber(values[field])
		if err != nil {
			errs = append(errs, &FieldError{Field: field, Value: fmt.Sprint(values[field]), Err: ErrInvalidField})
			continue
		}
		numbers[field] = v
	}
	flags := make(map[string]bool, len(flagFields))
	for _, field := range flagFields {
		v, err := toFlag(values[field])
		if err != nil {
			errs = append(errs, &FieldError{Field: field, Value: fmt.Sprint(values[field]), Err: ErrInvalidField})
			continue
		}
		flags[field] = v
	}
	labels := make(map[string]string, len(categoricalFields))
	for _, field := range categoricalFields {
		v, err := cast.ToStringE(values[field])
		if err != nil {
			errs = append(errs, &FieldError{Field: field, Value: fmt.Sprint(values[field]), Err: ErrInvalidField})
			continue
		}
		labels[field] = strings.TrimSpace(v)
	}
	if len(errs) > 0 {
		return PatientRecord{}, errors.Join(errs...)
	}

	record := PatientRecord{
		Age:               numbers[FieldAge],
		Sex:               labels[FieldSex],
		ChestPain:         labels[FieldChestPain],
		RestingBP:         numbers[FieldRestingBP],
		Cholesterol:       numbers[FieldCholesterol],
		FastingBloodSugar: flags[FieldFastingSugar],
		RestECG:           labels[FieldRestECG],
		MaxHeartRate:      numbers[FieldMaxHeartRate],
		ExerciseAngina:    flags[FieldExerciseAng],
		STDepression:      numbers[FieldSTDepression],
		STSlope:           labels[FieldSTSlope],
		Vessels:           numbers[FieldVessels],
		Thal:              labels[FieldThal],
	}
	if err := record.Validate(); err != nil {
		return PatientRecord{}, err
	}
	return record, nil
}

// Validate checks numeric ranges and that categorical labels are present.
func (r PatientRecord) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &FieldError{
			Field: fe.Field(),
			Value: fmt.Sprint(fe.Value()),
			Err:   fmt.Errorf("%w: failed %s%s", ErrInvalidField, fe.Tag(), tagParam(fe.Param())),
		})
	}
	return errors.Join(errs...)
}

// Numeric returns numeric and flag fields keyed by field name; flags are 0 or 1.
func (r PatientRecord) Numeric() map[string]float64 {
	return map[string]float64{
		FieldAge:          r.Age,
		FieldRestingBP:    r.RestingBP,
		FieldCholesterol:  r.Cholesterol,
		FieldFastingSugar: boolToFloat(r.FastingBloodSugar),
		FieldMaxHeartRate: r.MaxHeartRate,
		FieldExerciseAng:  boolToFloat(r.ExerciseAngina),
		FieldSTDepression: r.STDepression,
		FieldVessels:      r.Vessels,
	}
}

// Categorical returns the categorical labels keyed by field name.
func (r PatientRecord) Categorical() map[string]string {
	return map[string]string{
		FieldSex:       r.Sex,
		FieldChestPain: r.ChestPain,
		FieldRestECG:   r.RestECG,
		FieldSTSlope:   r.STSlope,
		FieldThal:      r.Thal,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func toNumber(v interface{}) (float64, error) {
	switch t := v.(type) {
	case bool:
		return 0, fmt.Errorf("boolean is not a number")
	case string:
		v = strings.TrimSpace(t)
	case json.Number:
		return t.Float64()
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// toFlag accepts JSON booleans, boolean strings and the numbers 0 and 1.
func toFlag(v interface{}) (bool, error) {
	switch t := v.(type) {
	case float64:
		return numericFlag(t)
	case int:
		return numericFlag(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return false, err
		}
		return numericFlag(f)
	case string:
		v = strings.TrimSpace(t)
	}
	return cast.ToBoolE(v)
}

func numericFlag(f float64) (bool, error) {
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("flag must be 0 or 1, got %v", f)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func tagParam(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}

// sortedKeys returns the keys of a label table in stable order.
func sortedKeys(table map[string]float64) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
