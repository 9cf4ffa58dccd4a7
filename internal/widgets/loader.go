package widgets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Alias specializes a registered widget with fixed config.
type Alias struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Base        string         `json:"base" yaml:"base"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	UpdatedAt   time.Time      `json:"-" yaml:"-"`
}

// LoadAll reads every alias file (.json, .yaml, .yml) within dir.
func LoadAll(dir string) ([]Alias, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Alias
	ids := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if shouldIgnore(name) || !isAliasFile(name) {
			continue
		}
		a, err := LoadOne(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, ok := ids[a.ID]; ok {
			return nil, fmt.Errorf("duplicate widget id %s in %s and %s", a.ID, prev, name)
		}
		ids[a.ID] = name
		out = append(out, a)
	}
	return out, nil
}

// LoadOne reads a single alias file.
func LoadOne(path string) (Alias, error) {
	p := filepath.Clean(path)
	b, err := os.ReadFile(p) // #nosec G304 -- path derived from directory listing
	if err != nil {
		return Alias{}, err
	}
	var a Alias
	if strings.HasSuffix(p, ".json") {
		err = json.Unmarshal(b, &a)
	} else {
		err = yaml.Unmarshal(b, &a)
	}
	if err != nil {
		return Alias{}, err
	}
	if a.ID == "" || a.Base == "" {
		return Alias{}, errors.New("invalid widget alias: id and base required")
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if info, err := os.Stat(p); err == nil {
		a.UpdatedAt = info.ModTime().UTC()
	}
	return a, nil
}

// RegisterDir loads the aliases in dir and registers them in file order.
func (r *Registry) RegisterDir(dir string) (int, error) {
	aliases, err := LoadAll(dir)
	if err != nil {
		return 0, err
	}
	for _, a := range aliases {
		if err := r.RegisterAlias(a); err != nil {
			return 0, err
		}
	}
	return len(aliases), nil
}

func isAliasFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func shouldIgnore(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return true
	}
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasSuffix(base, ".partial"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
