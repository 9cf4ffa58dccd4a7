package widgets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/faciam-dev/gcadmin/internal/util"
)

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("widget registry is frozen")

// Definition is the public metadata of a registered widget key.
type Definition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Base        string         `json:"base,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Options filters List.
type Options struct {
	Q      string
	Base   string
	Limit  int
	Offset int
}

type entry struct {
	def     Definition
	factory Factory
}

// Registry maps widget keys to factories. It is filled during startup and
// frozen before serving; reads after Freeze take no locks.
type Registry struct {
	items   map[string]entry
	frozen  bool
	etag    string
	lastMod time.Time
}

// NewRegistry returns a registry holding the built-in widgets.
func NewRegistry() *Registry {
	r := &Registry{items: make(map[string]entry)}
	for _, b := range builtins() {
		if err := r.Register(b.def, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a widget key. Keys are unique.
func (r *Registry) Register(def Definition, f Factory) error {
	if r.frozen {
		return ErrFrozen
	}
	if def.ID == "" || f == nil {
		return errors.New("widget registration requires an id and a factory")
	}
	if _, dup := r.items[def.ID]; dup {
		return fmt.Errorf("widget %q already registered", def.ID)
	}
	if def.UpdatedAt.IsZero() {
		def.UpdatedAt = time.Now().UTC()
	}
	r.items[def.ID] = entry{def: def, factory: f}
	r.etag, r.lastMod = computeStateHash(r.items)
	return nil
}

// RegisterAlias registers a key that specializes an existing one with fixed
// config. Binding config overrides alias config.
func (r *Registry) RegisterAlias(a Alias) error {
	base, ok := r.items[a.Base]
	if !ok {
		return fmt.Errorf("widget alias %s: base %q is not registered", a.ID, a.Base)
	}
	fixed := maps.Clone(a.Config)
	baseFactory := base.factory
	def := Definition{ID: a.ID, Name: a.Name, Description: a.Description, Base: a.Base, Config: fixed, UpdatedAt: a.UpdatedAt}
	return r.Register(def, func(b Binding) (Widget, error) {
		cfg := maps.Clone(fixed)
		if cfg == nil {
			cfg = map[string]any{}
		}
		maps.Copy(cfg, b.Config)
		b.Config = cfg
		return baseFactory(b)
	})
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup returns the factory registered under key.
func (r *Registry) Lookup(key string) (Factory, bool) {
	e, ok := r.items[key]
	return e.factory, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.items[key]
	return ok
}

// List returns matching definitions sorted by id, the total before paging,
// and the registry ETag and last-modified time.
func (r *Registry) List(ctx context.Context, opt Options) ([]Definition, int, string, time.Time, error) {
	var filtered []Definition
	q := strings.ToLower(opt.Q)
	for _, e := range r.items {
		d := e.def
		if opt.Base != "" && d.Base != opt.Base && d.ID != opt.Base {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(d.ID), q) &&
			!strings.Contains(strings.ToLower(d.Name), q) &&
			!strings.Contains(strings.ToLower(d.Description), q) {
			continue
		}
		filtered = append(filtered, d)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })
	total := len(filtered)

	if opt.Offset < 0 {
		opt.Offset = 0
	}
	opt.Limit = util.SanitizeLimit(opt.Limit)
	start := min(opt.Offset, total)
	end := min(start+opt.Limit, total)
	return append([]Definition{}, filtered[start:end]...), total, r.etag, r.lastMod, nil
}

func computeStateHash(items map[string]entry) (string, time.Time) {
	if len(items) == 0 {
		sum := sha256.Sum256(nil)
		return "\"" + hex.EncodeToString(sum[:]) + "\"", time.Time{}
	}
	parts := make([]string, 0, len(items))
	var last time.Time
	for _, e := range items {
		if e.def.UpdatedAt.After(last) {
			last = e.def.UpdatedAt
		}
		parts = append(parts, e.def.ID+"@"+e.def.Base+"#"+e.def.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(parts)
	h := sha256.Sum256([]byte(strings.Join(parts, "")))
	return "\"" + hex.EncodeToString(h[:]) + "\"", last
}
