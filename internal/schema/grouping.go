package schema

import (
	"fmt"
	"maps"
	"strings"

	"github.com/faciam-dev/gcadmin/pkg/adminerr"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

const gridColumns = 12

type node struct {
	key         string
	field       bool
	title       string
	description string
	columns     int // sub-grids only
	children    []*node
}

// Grouping re-keys flat field maps into fieldset containers and back.
// Named fieldset i lives under "__fs<i>"; a tuple line j of fieldset i
// becomes the sub-grid "__fs<i>_r<j>". Unnamed fieldsets merge at the root.
type Grouping struct {
	root       []*node
	containers map[string]*node
	fields     map[string]string // field -> owning container, "" at root
}

// NewGrouping builds the container tree for sets. Fields in visible that
// no fieldset names are appended at the root.
func NewGrouping(model descriptor.ModelID, sets []Fieldset, visible []string) (*Grouping, error) {
	g := &Grouping{containers: make(map[string]*node), fields: make(map[string]string)}
	addField := func(dst *[]*node, owner, name string) error {
		if strings.HasPrefix(name, "__fs") {
			return adminerr.Configf(model.String(), name, "field name collides with fieldset keys")
		}
		if _, dup := g.fields[name]; dup {
			return adminerr.Configf(model.String(), name, "field appears in more than one fieldset line")
		}
		g.fields[name] = owner
		*dst = append(*dst, &node{key: name, field: true})
		return nil
	}
	for i, fs := range sets {
		dst := &g.root
		owner := ""
		if fs.Name != "" {
			n := &node{key: fmt.Sprintf("__fs%d", i), title: fs.Name, description: fs.Description}
			g.root = append(g.root, n)
			g.containers[n.key] = n
			dst, owner = &n.children, n.key
		}
		for j, line := range fs.Fields {
			switch len(line) {
			case 0:
				continue
			case 1:
				if err := addField(dst, owner, line[0]); err != nil {
					return nil, err
				}
				continue
			}
			row := &node{key: fmt.Sprintf("__fs%d_r%d", i, j), columns: max(1, gridColumns/len(line))}
			*dst = append(*dst, row)
			g.containers[row.key] = row
			for _, name := range line {
				if err := addField(&row.children, row.key, name); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, name := range visible {
		if _, ok := g.fields[name]; !ok {
			if err := addField(&g.root, "", name); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Container returns the synthetic key owning field, "" at the root.
func (g *Grouping) Container(field string) string { return g.fields[field] }

// Group nests flat under the container keys. Keys that are not laid-out
// fields stay at the root. Containers with no present fields are omitted.
func (g *Grouping) Group(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	group(g.root, flat, out)
	for k, v := range flat {
		if _, laid := g.fields[k]; !laid {
			out[k] = v
		}
	}
	return out
}

func group(nodes []*node, flat, out map[string]any) {
	for _, n := range nodes {
		if n.field {
			if v, ok := flat[n.key]; ok {
				out[n.key] = v
			}
			continue
		}
		sub := make(map[string]any)
		group(n.children, flat, sub)
		if len(sub) > 0 {
			out[n.key] = sub
		}
	}
}

// Normalize recovers the flat field map from a grouped one.
func (g *Grouping) Normalize(grouped map[string]any) map[string]any {
	out := make(map[string]any, len(grouped))
	g.normalize(grouped, out)
	return out
}

func (g *Grouping) normalize(in, out map[string]any) {
	for k, v := range in {
		if _, isContainer := g.containers[k]; isContainer {
			if m, ok := v.(map[string]any); ok {
				g.normalize(m, out)
				continue
			}
		}
		out[k] = v
	}
}

// schema nests field fragments into container objects. Required flags of
// grouped fields move to their container; the root required list is
// returned.
func (g *Grouping) schema(props map[string]any, required []string) (map[string]any, []string) {
	obj, req := g.object(g.root, props, required)
	obj["type"] = "object"
	return obj, req
}

func (g *Grouping) object(nodes []*node, props map[string]any, required []string) (map[string]any, []string) {
	properties := make(map[string]any)
	order := make([]string, 0, len(nodes))
	req := []string{}
	for _, n := range nodes {
		if n.field {
			p, ok := props[n.key]
			if !ok {
				continue
			}
			properties[n.key] = p
			order = append(order, n.key)
			if contains(required, n.key) {
				req = append(req, n.key)
			}
			continue
		}
		sub, subReq := g.object(n.children, props, required)
		if len(sub["properties"].(map[string]any)) == 0 {
			continue
		}
		sub["type"] = "object"
		sub["required"] = subReq
		if n.title != "" {
			sub["title"] = n.title
		}
		if n.description != "" {
			sub["description"] = n.description
		}
		if n.columns > 0 {
			sub["grid"] = true
			sub["columns"] = n.columns
		}
		properties[n.key] = sub
		order = append(order, n.key)
	}
	return map[string]any{"properties": properties, "order": order, "required": req}, req
}

func flatSchema(fields []string, props map[string]any, required []string) map[string]any {
	order := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := props[f]; ok {
			order = append(order, f)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": maps.Clone(props),
		"order":      order,
		"required":   required,
	}
}
