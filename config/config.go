// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"heartrisk/logging"
	"heartrisk/ml"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        logging.Config   `yaml:"log"`
	Models     ModelsConfig     `yaml:"models"`
	Prediction PredictionConfig `yaml:"prediction"`
	Database   DatabaseConfig   `yaml:"database"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type ModelsConfig struct {
	Dir             string         `yaml:"dir"`
	DefaultEncoding string         `yaml:"default_encoding"`
	SchemaFiles     []string       `yaml:"schema_files"`
	Watch           bool           `yaml:"watch"`
	ReloadDebounce  time.Duration  `yaml:"reload_debounce"`
	Variants        []ModelVariant `yaml:"variants"`
}

// ModelVariant is a subdirectory of models fitted on projected features.
// Dir is relative to models.dir unless absolute.
type ModelVariant struct {
	Dir   string `yaml:"dir"`
	Label string `yaml:"label"`
}

type PredictionConfig struct {
	CacheSize int            `yaml:"cache_size"`
	Labels    map[int]string `yaml:"labels"`
}

// DatabaseConfig configures the prediction audit log. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: logging.DefaultConfig(),
		Models: ModelsConfig{
			Dir:             "models",
			DefaultEncoding: ml.SchemaOrdinalV1,
			ReloadDebounce:  500 * time.Millisecond,
		},
		Prediction: PredictionConfig{
			CacheSize: 1024,
			Labels: map[int]string{
				0: "Low Risk",
				1: "At Risk of Heart Disease",
			},
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	file, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.Models.Dir == "" {
		errs = append(errs, errors.New("models.dir is required"))
	}
	if c.Models.ReloadDebounce < 0 {
		errs = append(errs, errors.New("models.reload_debounce must not be negative"))
	}
	labels := make(map[string]bool, len(c.Models.Variants))
	for i, v := range c.Models.Variants {
		if v.Dir == "" || strings.TrimSpace(v.Label) == "" {
			errs = append(errs, fmt.Errorf("models.variants[%d] needs dir and label", i))
			continue
		}
		key := strings.ToLower(strings.TrimSpace(v.Label))
		if labels[key] {
			errs = append(errs, fmt.Errorf("models.variants[%d] label %q is repeated", i, v.Label))
		}
		labels[key] = true
	}
	if c.Prediction.CacheSize < 0 {
		errs = append(errs, errors.New("prediction.cache_size must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
