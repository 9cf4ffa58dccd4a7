package widgets

import "fmt"

// Binder is a preconfigured widget value that produces bound copies.
type Binder interface {
	Bind(b Binding) (Widget, error)
}

type sourceKind uint8

const (
	sourceNone sourceKind = iota
	sourceKey
	sourceFactory
	sourceInstance
)

// Source is an explicit widget override for one field: a registry key, a
// factory, or a preconfigured instance.
type Source struct {
	kind     sourceKind
	key      string
	factory  Factory
	instance Binder
}

// FromKey selects a registered widget by key.
func FromKey(key string) Source { return Source{kind: sourceKey, key: key} }

// FromFactory uses f directly.
func FromFactory(f Factory) Source { return Source{kind: sourceFactory, factory: f} }

// FromInstance binds copies of a preconfigured widget.
func FromInstance(b Binder) Source { return Source{kind: sourceInstance, instance: b} }

// IsZero reports an unset override.
func (s Source) IsZero() bool { return s.kind == sourceNone }

func (s Source) String() string {
	switch s.kind {
	case sourceKey:
		return "key:" + s.key
	case sourceFactory:
		return "factory"
	case sourceInstance:
		return fmt.Sprintf("instance:%T", s.instance)
	}
	return "none"
}
