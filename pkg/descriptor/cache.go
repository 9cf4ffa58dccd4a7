package descriptor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
)

// Handle is an adapter-side reference to a model type.
type Handle interface {
	ModelID() ModelID
}

// Source is the descriptor half of the storage adapter contract.
type Source interface {
	// ModelDescriptor describes a model. Repeated calls return equal descriptors.
	ModelDescriptor(id ModelID) (*Model, error)
	// Model resolves a model reference; ok is false when the target is unknown.
	Model(id ModelID) (Handle, bool)
	// PKAttr returns the primary key attribute of a model.
	PKAttr(id ModelID) (string, error)
}

// Cache loads descriptors once during startup and serves them read-only
// afterwards. Warm and Freeze must run before concurrent use.
type Cache struct {
	src    Source
	models map[ModelID]*Model
	order  []ModelID
	frozen bool
}

// NewCache wraps src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, models: make(map[ModelID]*Model)}
}

// Warm loads ids and every model reachable through their relations. Relation
// targets the source cannot resolve are configuration errors.
func (c *Cache) Warm(ids ...ModelID) error {
	if c.frozen {
		return errors.New("descriptor cache is frozen")
	}
	queue := append([]ModelID(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := c.models[id]; ok {
			continue
		}
		m, err := c.src.ModelDescriptor(id)
		if err != nil {
			if errors.Is(err, adminerr.ErrConfiguration) {
				return err
			}
			return fmt.Errorf("load descriptor %s: %w", id, err)
		}
		c.models[id] = m
		c.order = append(c.order, id)
		for _, f := range m.fields {
			if f.Relation == nil {
				continue
			}
			if _, ok := c.src.Model(f.Relation.Target); !ok {
				return adminerr.Configf(id.String(), f.Name, "relation target %s does not resolve", f.Relation.Target)
			}
			queue = append(queue, f.Relation.Target)
		}
	}
	return nil
}

// Freeze ends the startup phase.
func (c *Cache) Freeze() { c.frozen = true }

// Frozen reports whether Freeze was called.
func (c *Cache) Frozen() bool { return c.frozen }

// ModelDescriptor returns the cached descriptor. Before Freeze a miss loads
// through the source; afterwards a miss is NotFound.
func (c *Cache) ModelDescriptor(id ModelID) (*Model, error) {
	if m, ok := c.models[id]; ok {
		return m, nil
	}
	if c.frozen {
		return nil, adminerr.NotFoundf("model", id.String())
	}
	if err := c.Warm(id); err != nil {
		return nil, err
	}
	return c.models[id], nil
}

// Model reports whether id is cached, falling back to the source before Freeze.
func (c *Cache) Model(id ModelID) (Handle, bool) {
	if _, ok := c.models[id]; ok {
		return handle(id), true
	}
	if c.frozen {
		return nil, false
	}
	return c.src.Model(id)
}

// PKAttr returns the primary key of a cached model.
func (c *Cache) PKAttr(id ModelID) (string, error) {
	m, err := c.ModelDescriptor(id)
	if err != nil {
		return "", err
	}
	return m.PKAttr(), nil
}

// IDs returns the cached model ids in load order.
func (c *Cache) IDs() []ModelID { return append([]ModelID(nil), c.order...) }

type handle ModelID

func (h handle) ModelID() ModelID { return ModelID(h) }

// StaticSource serves a fixed set of descriptors. It is the descriptor source
// used by configuration-driven sites and by tests.
type StaticSource struct {
	models map[ModelID]*Model
}

// NewStaticSource indexes models by id; duplicates are configuration errors.
func NewStaticSource(models ...*Model) (*StaticSource, error) {
	s := &StaticSource{models: make(map[ModelID]*Model, len(models))}
	for _, m := range models {
		if _, dup := s.models[m.id]; dup {
			return nil, adminerr.Configf(m.id.String(), "", "model declared twice")
		}
		s.models[m.id] = m
	}
	return s, nil
}

func (s *StaticSource) ModelDescriptor(id ModelID) (*Model, error) {
	m, ok := s.models[id]
	if !ok {
		return nil, adminerr.NotFoundf("model", id.String())
	}
	return m, nil
}

func (s *StaticSource) Model(id ModelID) (Handle, bool) {
	if _, ok := s.models[id]; !ok {
		return nil, false
	}
	return handle(id), true
}

func (s *StaticSource) PKAttr(id ModelID) (string, error) {
	m, err := s.ModelDescriptor(id)
	if err != nil {
		return "", err
	}
	return m.pk, nil
}

// IDs lists the served model ids.
func (s *StaticSource) IDs() []ModelID {
	out := make([]ModelID, 0, len(s.models))
	for id := range s.models {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b ModelID) int { return strings.Compare(a.String(), b.String()) })
	return out
}
