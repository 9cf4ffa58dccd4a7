package schema

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Line is one layout row: a single field, or a tuple of fields shown side
// by side. In YAML and JSON it is either a scalar or a list.
type Line []string

func (l *Line) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = Line{n.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return err
		}
		*l = names
		return nil
	}
	return fmt.Errorf("line %d: layout entries are names or lists of names", n.Line)
}

func (l *Line) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = Line{s}
		return nil
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("layout entries are names or lists of names: %w", err)
	}
	*l = names
	return nil
}

// Layout is an ordered list of lines.
type Layout []Line

// Fields returns the flattened field order.
func (l Layout) Fields() []string {
	var out []string
	for _, line := range l {
		out = append(out, line...)
	}
	return out
}

// Fieldset is a named or unnamed group of lines.
type Fieldset struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      Layout `json:"fields" yaml:"fields"`
}

// Flatten returns the field order across fieldsets.
func Flatten(sets []Fieldset) []string {
	var out []string
	for _, fs := range sets {
		out = append(out, fs.Fields.Fields()...)
	}
	return out
}

func contains(list []string, s string) bool { return slices.Contains(list, s) }
