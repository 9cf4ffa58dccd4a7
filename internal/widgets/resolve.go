package widgets

import (
	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

var kindDefaults = map[descriptor.Kind]string{
	descriptor.KindString:   KeyTextInput,
	descriptor.KindText:     KeyTextarea,
	descriptor.KindInteger:  KeyNumberInput,
	descriptor.KindNumber:   KeyNumberInput,
	descriptor.KindBoolean:  KeyCheckbox,
	descriptor.KindDate:     KeyDateTimeInput,
	descriptor.KindDateTime: KeyDateTimeInput,
	descriptor.KindTime:     KeyDateTimeInput,
}

// DefaultKey returns the kind-based widget key for f.
func DefaultKey(f descriptor.Field) string {
	switch {
	case f.Kind == descriptor.KindBoolean:
		return KeyCheckbox
	case f.IsMultiValued():
		return KeyRelationMulti
	case f.IsRelation():
		return KeyRelationSelect
	case f.HasChoices():
		return KeyRadio
	}
	if k, ok := kindDefaults[f.Kind]; ok {
		return k
	}
	return KeyTextInput
}

// Resolved is the outcome of widget resolution for one field.
type Resolved struct {
	Key     string
	Factory Factory
}

// Resolve picks the widget for f: the explicit override, then the meta
// "widget" key, then the kind default. An unregistered key is a
// configuration error.
func (r *Registry) Resolve(model descriptor.ModelID, f descriptor.Field, override Source) (Resolved, error) {
	switch override.kind {
	case sourceFactory:
		return Resolved{Key: "custom", Factory: override.factory}, nil
	case sourceInstance:
		return Resolved{Key: "custom", Factory: override.instance.Bind}, nil
	case sourceKey:
		return r.byKey(model, f, override.key)
	}
	if k := f.MetaString("widget"); k != "" {
		return r.byKey(model, f, k)
	}
	return r.byKey(model, f, DefaultKey(f))
}

func (r *Registry) byKey(model descriptor.ModelID, f descriptor.Field, key string) (Resolved, error) {
	fac, ok := r.Lookup(key)
	if !ok {
		return Resolved{}, adminerr.Configf(model.String(), f.Name, "widget %q is not registered", key)
	}
	return Resolved{Key: key, Factory: fac}, nil
}
