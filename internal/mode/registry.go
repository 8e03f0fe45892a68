// Package mode holds the static table of operating modes and the persisted
// agent state that says which one is active.
package mode

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Type string

const (
	TypeGlobal Type = "global"
	TypeLocal  Type = "local"
)

// Descriptor is one operating mode. Allowed holds exact tool names or
// prefix wildcards such as "flow.*".
type Descriptor struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Type        Type     `yaml:"type" json:"type"`
	Allowed     []string `yaml:"allowed" json:"allowed"`
	Path        string   `yaml:"path" json:"path"`
}

func (d Descriptor) IsGlobal() bool {
	return d.Type == TypeGlobal
}

// Permits reports whether tool matches one of the allowed patterns.
func (d Descriptor) Permits(tool string) bool {
	for _, pattern := range d.Allowed {
		if pattern == tool {
			return true
		}
		if strings.HasSuffix(pattern, ".*") && strings.HasPrefix(tool, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// Builtin returns the default mode table.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:          "general",
			Name:        "General",
			Description: "Shared living space where conversation with the Helper and memory work happen.",
			Type:        TypeGlobal,
			Allowed:     []string{"flow.*", "knowledge.*", "game.*", "info.*", "system.log_event"},
			Path:        "modes/general",
		},
		{
			ID:          "developer",
			Name:        "Developer",
			Description: "Workshop for building and changing files inside the project incubator.",
			Type:        TypeLocal,
			Allowed:     []string{"flow.*", "knowledge.*", "game.*", "info.*", "system.*"},
			Path:        "modes/developer",
		},
		{
			ID:          "analyst",
			Name:        "Analyst",
			Description: "Quiet room for reading and reasoning without touching files.",
			Type:        TypeLocal,
			Allowed:     []string{"flow.*", "knowledge.*", "game.*", "info.*"},
			Path:        "modes/analyst",
		},
		{
			ID:          "game",
			Name:        "Game",
			Description: "Play and experiments with the external personas.",
			Type:        TypeLocal,
			Allowed:     []string{"flow.*", "game.*", "knowledge.recall_emotion", "info.*"},
			Path:        "modes/game",
		},
	}
}

type Registry struct {
	modes     map[string]Descriptor
	order     []string
	globalID  string
	defaultID string
}

// NewRegistry validates the table: ids are unique, exactly one mode is global
// and defaultID names a known mode.
func NewRegistry(descs []Descriptor, defaultID string) (*Registry, error) {
	r := &Registry{modes: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, errors.New("mode registry: empty mode id")
		}
		if _, dup := r.modes[d.ID]; dup {
			return nil, fmt.Errorf("mode registry: duplicate mode %q", d.ID)
		}
		switch d.Type {
		case TypeGlobal:
			if r.globalID != "" {
				return nil, fmt.Errorf("mode registry: modes %q and %q are both global", r.globalID, d.ID)
			}
			r.globalID = d.ID
		case TypeLocal:
		default:
			return nil, fmt.Errorf("mode registry: mode %q has unknown type %q", d.ID, d.Type)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.Path == "" {
			d.Path = "modes/" + d.ID
		}
		r.modes[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	if r.globalID == "" {
		return nil, errors.New("mode registry: no global mode")
	}
	if defaultID == "" {
		defaultID = r.globalID
	}
	if _, ok := r.modes[defaultID]; !ok {
		return nil, fmt.Errorf("mode registry: default mode %q is unknown", defaultID)
	}
	r.defaultID = defaultID
	return r, nil
}

type registryFile struct {
	Default string       `yaml:"default"`
	Modes   []Descriptor `yaml:"modes"`
}

// WriteRegistryFile saves a mode table in the format LoadRegistryFile reads.
func WriteRegistryFile(path string, descs []Descriptor, defaultID string) error {
	data, err := yaml.Marshal(registryFile{Default: defaultID, Modes: descs})
	if err != nil {
		return fmt.Errorf("encode modes file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write modes file: %w", err)
	}
	return nil
}

// LoadRegistryFile reads a YAML mode table. An empty path or a missing file
// yields the built-in table.
func LoadRegistryFile(path, defaultID string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(Builtin(), defaultID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(Builtin(), defaultID)
		}
		return nil, fmt.Errorf("read modes file: %w", err)
	}
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse modes file: %w", err)
	}
	if rf.Default != "" && defaultID == "" {
		defaultID = rf.Default
	}
	return NewRegistry(rf.Modes, defaultID)
}

func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.modes[id]
	return d, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.modes[id]
	return ok
}

func (r *Registry) Global() Descriptor {
	return r.modes[r.globalID]
}

func (r *Registry) Default() Descriptor {
	return r.modes[r.defaultID]
}

// IDs returns mode ids in declaration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modes[id])
	}
	return out
}

// Allowed reports whether tool is permitted in mode id. Unknown modes permit nothing.
func (r *Registry) Allowed(id, tool string) bool {
	d, ok := r.modes[id]
	if !ok {
		return false
	}
	return d.Permits(tool)
}

// VisibleModes lists the mode ids whose memories a query from id may see.
// A nil result means no filter.
func (r *Registry) VisibleModes(id string) []string {
	if d, ok := r.modes[id]; ok && d.IsGlobal() {
		return nil
	}
	out := []string{id, r.globalID}
	sort.Strings(out)
	return out
}
