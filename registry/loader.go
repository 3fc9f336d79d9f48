package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"heartrisk/ml"
)

// Variant is a subdirectory of models fitted on projected features, e.g.
// {Dir: "pca", Label: "PCA"}. It may hold one pca artifact that every model
// in it shares; its models register as "<name> (<label>)".
type Variant struct {
	Dir   string
	Label string
}

// LoaderConfig controls how a models directory is turned into a Registry.
type LoaderConfig struct {
	Dir             string
	DefaultEncoding string
	Catalog         *ml.SchemaCatalog
	Variants        []Variant
}

// VariantDir resolves v.Dir against the models directory.
func (c LoaderConfig) VariantDir(v Variant) string {
	if filepath.IsAbs(v.Dir) {
		return v.Dir
	}
	return filepath.Join(c.Dir, v.Dir)
}

// Dirs lists the models directory followed by every variant directory.
func (c LoaderConfig) Dirs() []string {
	dirs := []string{c.Dir}
	for _, v := range c.Variants {
		dirs = append(dirs, c.VariantDir(v))
	}
	return dirs
}

type pending struct {
	name  string
	path  string
	entry Entry
}

// LoadDir scans the top level of the models directory, then each variant
// directory, for *.json artifacts. Artifacts that fail to load are logged and
// left out; only an unreadable models directory is an error.
func LoadDir(cfg LoaderConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Catalog == nil {
		catalog, err := ml.NewSchemaCatalog()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = catalog
	}
	if cfg.DefaultEncoding == "" {
		cfg.DefaultEncoding = ml.SchemaOrdinalV1
	}

	builder := NewBuilder()
	models, err := scanDir(cfg, cfg.Dir, Variant{}, builder, logger)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	for _, v := range cfg.Variants {
		dir := cfg.VariantDir(v)
		found, err := scanDir(cfg, dir, v, builder, logger)
		if err != nil {
			logger.Warn("skipping model variant", zap.String("dir", dir), zap.String("label", v.Label), zap.Error(err))
			continue
		}
		models = append(models, found...)
	}

	// The scaler may sit anywhere in the directory, so widths are checked after the scan.
	for _, m := range models {
		if err := checkWidths(m.entry, builder.scaler); err != nil {
			logger.Warn("skipping model artifact", zap.String("path", m.path), zap.Error(err))
			continue
		}
		if err := builder.Register(m.name, m.entry); err != nil {
			logger.Warn("skipping model artifact", zap.String("path", m.path), zap.Error(err))
			continue
		}
		logger.Info("model loaded", zap.String("name", NormalizeName(m.name)), zap.String("type", m.entry.Type),
			zap.String("encoding", m.entry.Schema.Name), zap.Bool("projected", m.entry.Projection != nil),
			zap.String("path", m.path))
	}

	reg := builder.Build()
	if reg.Len() == 0 {
		logger.Warn("no models loaded", zap.String("dir", cfg.Dir))
	}
	return reg, nil
}

func scanDir(cfg LoaderConfig, dir string, variant Variant, builder *Builder, logger *zap.Logger) ([]pending, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var models []pending
	var projection ml.Projector
	projectionSource := ""
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, f.Name())
		loaded, err := ml.LoadArtifact(path)
		if err != nil {
			logger.Warn("skipping model artifact", zap.String("path", path), zap.Error(err))
			continue
		}

		switch {
		case loaded.IsScaler():
			if variant.Label != "" {
				logger.Error("skipping scaler artifact: the shared scaler belongs in the models dir", zap.String("path", path))
				continue
			}
			if err := builder.SetScaler(path, loaded.Scaler); err != nil {
				logger.Error("skipping scaler artifact", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("scaler loaded", zap.String("path", path), zap.String("type", loaded.Type),
				zap.Int("features", loaded.Scaler.NumFeatures()))
			continue
		case loaded.IsProjection():
			if variant.Label == "" {
				logger.Error("skipping projection artifact: projections belong in a variant dir", zap.String("path", path))
				continue
			}
			if projection != nil {
				logger.Error("skipping projection artifact", zap.String("path", path),
					zap.Error(fmt.Errorf("projection already loaded from %s", projectionSource)))
				continue
			}
			projection, projectionSource = loaded.Projection, path
			logger.Info("projection loaded", zap.String("path", path), zap.String("variant", variant.Label),
				zap.Int("features", projection.NumFeatures()), zap.Int("components", projection.NumComponents()))
			continue
		}

		encoding := loaded.Encoding
		if encoding == "" {
			encoding = cfg.DefaultEncoding
		}
		schema, err := cfg.Catalog.Lookup(encoding)
		if err != nil {
			logger.Warn("skipping model artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		m := pending{
			name: NameFromFile(path),
			path: path,
			entry: Entry{
				Type:       loaded.Type,
				Schema:     schema,
				Classifier: loaded.Classifier,
				Source:     path,
			},
		}
		if variant.Label != "" {
			m.entry.DisplayName = DisplayName(m.name) + " (" + variant.Label + ")"
			m.entry.Variant = variant.Label
			m.name = m.name + " " + variant.Label
		}
		models = append(models, m)
	}

	for i := range models {
		models[i].entry.Projection = projection
	}
	return models, nil
}

// checkWidths follows a vector from the schema through the shared scaler and
// the projection to the classifier.
func checkWidths(e Entry, scaler ml.Scaler) error {
	width := e.Schema.Width()
	if scaler != nil && scaler.NumFeatures() != width {
		return fmt.Errorf("%w: shared scaler expects %d features, schema %s has %d columns",
			ml.ErrShapeMismatch, scaler.NumFeatures(), e.Schema.Name, width)
	}
	if e.Projection != nil {
		if e.Projection.NumFeatures() != width {
			return fmt.Errorf("%w: projection expects %d features, schema %s has %d columns",
				ml.ErrShapeMismatch, e.Projection.NumFeatures(), e.Schema.Name, width)
		}
		width = e.Projection.NumComponents()
	}
	if e.Classifier.NumFeatures() != width {
		return fmt.Errorf("%w: model expects %d features, got %d",
			ml.ErrShapeMismatch, e.Classifier.NumFeatures(), width)
	}
	return nil
}
