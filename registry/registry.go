// Package registry holds the loaded models behind immutable snapshots.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"heartrisk/ml"
)

var (
	// ErrModelNotFound is matched by every lookup miss.
	ErrModelNotFound = errors.New("model not found")
	// ErrEmpty is returned when a registry has no models at all.
	ErrEmpty = errors.New("no models loaded")
	// ErrDuplicate is returned when two entries normalize to the same name.
	ErrDuplicate = errors.New("duplicate model name")
)

var versions atomic.Uint64

// NotFoundError names the missing model and the identifiers that do exist.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrModelNotFound
}

// Entry is one loaded model.
type Entry struct {
	Name        string
	DisplayName string
	Type        string
	Schema      *ml.Schema
	Classifier  ml.Classifier
	// Projection, when set, runs after the shared scaler and before Classifier.
	Projection ml.Projector
	Variant    string
	Source     string
}

// Registry is a read-only name to model lookup. It is safe for concurrent use
// because nothing mutates it after Build.
type Registry struct {
	entries      map[string]*Entry
	names        []string
	scaler       ml.Scaler
	scalerSource string
	version      uint64
	builtAt      time.Time
}

// Builder collects entries before a Registry is frozen.
type Builder struct {
	entries      map[string]*Entry
	scaler       ml.Scaler
	scalerSource string
}

func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]*Entry)}
}

// Register adds a classifier under the normalized form of name.
func (b *Builder) Register(name string, entry Entry) error {
	key := NormalizeName(name)
	if key == "" {
		return errors.New("model name is empty")
	}
	if entry.Classifier == nil {
		return fmt.Errorf("model %s has no classifier", key)
	}
	if entry.Schema == nil {
		return fmt.Errorf("model %s has no encoding schema", key)
	}
	if existing, ok := b.entries[key]; ok {
		return fmt.Errorf("%w: %s (already loaded from %s)", ErrDuplicate, key, existing.Source)
	}
	entry.Name = key
	if entry.DisplayName == "" {
		entry.DisplayName = DisplayName(key)
	}
	b.entries[key] = &entry
	return nil
}

// SetScaler sets the single scaler shared by every model.
func (b *Builder) SetScaler(source string, scaler ml.Scaler) error {
	if b.scaler != nil {
		return fmt.Errorf("scaler already loaded from %s", b.scalerSource)
	}
	b.scaler = scaler
	b.scalerSource = source
	return nil
}

// Len reports how many models have been registered so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build freezes the collected entries into a new Registry.
func (b *Builder) Build() *Registry {
	entries := make(map[string]*Entry, len(b.entries))
	names := make([]string, 0, len(b.entries))
	for name, entry := range b.entries {
		copied := *entry
		entries[name] = &copied
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{
		entries:      entries,
		names:        names,
		scaler:       b.scaler,
		scalerSource: b.scalerSource,
		version:      versions.Add(1),
		builtAt:      time.Now(),
	}
}

// Empty returns a registry without models.
func Empty() *Registry {
	return NewBuilder().Build()
}

// Get resolves a model identifier; display names and file-style names both match.
func (r *Registry) Get(name string) (*Entry, error) {
	if len(r.entries) == 0 {
		return nil, ErrEmpty
	}
	entry, ok := r.entries[NormalizeName(name)]
	if !ok {
		return nil, &NotFoundError{Name: name, Available: r.List()}
	}
	return entry, nil
}

// List returns the sorted model identifiers.
func (r *Registry) List() []string {
	return append([]string(nil), r.names...)
}

// Entries returns the entries sorted by name.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.entries[name])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Scaler returns the shared scaler, or nil when models take raw encodings.
func (r *Registry) Scaler() ml.Scaler {
	return r.scaler
}

func (r *Registry) ScalerSource() string {
	return r.scalerSource
}

// Version is unique per built registry.
func (r *Registry) Version() uint64 {
	return r.version
}

func (r *Registry) BuiltAt() time.Time {
	return r.builtAt
}
