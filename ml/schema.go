package ml

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// Convention names the way categorical fields become numbers.
type Convention string

const (
	// ConventionOrdinal maps each categorical label to a single number.
	ConventionOrdinal Convention = "ordinal"
	// ConventionOneHot expands categorical fields into indicator columns.
	ConventionOneHot Convention = "onehot"
)

const (
	SchemaOrdinalV1 = "ordinal-v1"
	SchemaOneHotV1  = "onehot-v1"
)

// Schema is a versioned description of the exact vector a model was fitted on.
// The same document is meant to be shared with the offline training script.
type Schema struct {
	Name       string                        `yaml:"name" json:"name"`
	Version    int                           `yaml:"version" json:"version"`
	Convention Convention                    `yaml:"convention" json:"convention"`
	Columns    []string                      `yaml:"columns" json:"columns"`
	Mappings   map[string]map[string]float64 `yaml:"mappings" json:"mappings,omitempty"`
	Expand     map[string][]string           `yaml:"expand" json:"expand,omitempty"`
}

// IndicatorColumn is the column name produced for one expanded category.
func IndicatorColumn(field, category string) string {
	return field + "_" + category
}

// Width is the length of every vector encoded with this schema.
func (s *Schema) Width() int {
	return len(s.Columns)
}

// FeatureNames returns a copy of the ordered column list.
func (s *Schema) FeatureNames() []string {
	return append([]string(nil), s.Columns...)
}

// indicatorColumns lists every column an expansion may produce.
func (s *Schema) indicatorColumns() map[string]bool {
	cols := make(map[string]bool)
	for field, categories := range s.Expand {
		for _, category := range categories {
			cols[IndicatorColumn(field, category)] = true
		}
	}
	return cols
}

// Validate checks that every categorical field has exactly one encoding and
// that every column can be produced from a record.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: schema name is required", ErrSchema)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: schema %s has no columns", ErrSchema, s.Name)
	}
	switch s.Convention {
	case ConventionOrdinal:
		if len(s.Expand) > 0 {
			return fmt.Errorf("%w: ordinal schema %s must not expand fields", ErrSchema, s.Name)
		}
	case ConventionOneHot:
		if len(s.Expand) == 0 {
			return fmt.Errorf("%w: onehot schema %s expands no fields", ErrSchema, s.Name)
		}
	default:
		return fmt.Errorf("%w: schema %s has unknown convention %q", ErrSchema, s.Name, s.Convention)
	}

	for _, field := range categoricalFields {
		_, mapped := s.Mappings[field]
		_, expanded := s.Expand[field]
		if mapped == expanded {
			return fmt.Errorf("%w: schema %s must either map or expand %s", ErrSchema, s.Name, field)
		}
	}

	known := make(map[string]bool)
	for _, field := range numericFields {
		known[field] = true
	}
	for _, field := range flagFields {
		known[field] = true
	}
	for field := range s.Mappings {
		known[field] = true
	}
	for col := range s.indicatorColumns() {
		known[col] = true
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		if seen[col] {
			return fmt.Errorf("%w: schema %s repeats column %q", ErrSchema, s.Name, col)
		}
		seen[col] = true
		if !known[col] {
			return fmt.Errorf("%w: schema %s column %q cannot be derived from a record", ErrSchema, s.Name, col)
		}
	}
	return nil
}

// OrdinalV1 is the thirteen-column label-encoded layout.
func OrdinalV1() *Schema {
	return &Schema{
		Name:       SchemaOrdinalV1,
		Version:    1,
		Convention: ConventionOrdinal,
		Columns:    RecordFields(),
		Mappings: map[string]map[string]float64{
			FieldSex:       {"Male": 1, "Female": 0},
			FieldChestPain: {"typical angina": 1, "atypical angina": 2, "non-anginal": 3, "asymptomatic": 4},
			FieldRestECG:   {"normal": 0, "st-t abnormality": 1, "lv hypertrophy": 2},
			FieldSTSlope:   {"upsloping": 1, "flat": 2, "downsloping": 3},
			// "reversable" is the spelling used by the source dataset.
			FieldThal: {"normal": 3, "fixed defect": 6, "reversable defect": 7},
		},
	}
}

// OneHotV1 is the drop-first indicator layout used by the scaled models.
func OneHotV1() *Schema {
	return &Schema{
		Name:       SchemaOneHotV1,
		Version:    1,
		Convention: ConventionOneHot,
		Columns: []string{
			FieldAge, FieldSex, FieldRestingBP, FieldCholesterol, FieldFastingSugar, FieldMaxHeartRate,
			FieldExerciseAng, FieldSTDepression, FieldVessels,
			"cp_atypical angina", "cp_non-anginal", "cp_typical angina",
			"restecg_normal", "restecg_st-t abnormality",
			"slope_flat", "slope_upsloping",
			"thal_normal", "thal_reversable defect",
		},
		Mappings: map[string]map[string]float64{
			FieldSex: {"Male": 1, "Female": 0},
		},
		Expand: map[string][]string{
			FieldChestPain: {"asymptomatic", "atypical angina", "non-anginal", "typical angina"},
			FieldRestECG:   {"lv hypertrophy", "normal", "st-t abnormality"},
			FieldSTSlope:   {"downsloping", "flat", "upsloping"},
			FieldThal:      {"fixed defect", "normal", "reversable defect"},
		},
	}
}

// LoadSchemaFile reads and validates a YAML schema document.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// SchemaCatalog resolves schema names referenced by model artifacts.
type SchemaCatalog struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewSchemaCatalog returns a catalog holding the built-in schemas plus extra.
func NewSchemaCatalog(extra ...*Schema) (*SchemaCatalog, error) {
	c := &SchemaCatalog{schemas: make(map[string]*Schema)}
	for _, s := range append([]*Schema{OrdinalV1(), OneHotV1()}, extra...) {
		if err := c.Add(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a schema, replacing any schema with the same name.
func (c *SchemaCatalog) Add(s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[strings.ToLower(s.Name)] = s
	return nil
}

// Lookup returns the named schema.
func (c *SchemaCatalog) Lookup(name string) (*Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown schema %q", ErrSchema, name)
	}
	return s, nil
}

// Schemas returns all schemas sorted by name.
func (c *SchemaCatalog) Schemas() []*Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
