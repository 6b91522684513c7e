// Package mode provides conversation presets: system prompt, model and
// capability defaults, optionally loaded from a YAML file.
package mode

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vaultchat/vaultchat/pkg/types"
)

// builtins are the modes available when no modes file is configured.
func builtins() []types.Mode {
	return []types.Mode{
		{
			Name:         "general",
			Description:  "Everyday assistant",
			SystemPrompt: "You are a helpful AI assistant.",
			Temperature:  0.7,
			Permissions:  types.Permissions{VaultSearch: true, ReadFiles: true},
		},
		{
			Name:         "research",
			Description:  "Web research with citations",
			SystemPrompt: "You are a research assistant. Cite sources for factual claims.",
			Temperature:  0.5,
			Permissions:  types.Permissions{WebSearch: true, VaultSearch: true, ReadFiles: true},
		},
		{
			Name:         "vault",
			Description:  "Answers grounded in the local vault only",
			SystemPrompt: "Answer strictly from the provided vault notes. Say so when the notes are silent.",
			Temperature:  0.3,
			Permissions:  types.Permissions{VaultSearch: true, ReadFiles: true},
		},
	}
}

// modesFile is the YAML shape of a user-supplied modes file.
type modesFile struct {
	Modes []types.Mode `yaml:"modes"`
}

// Registry holds the available modes.
type Registry struct {
	mu    sync.RWMutex
	modes map[string]types.Mode
	order []string
}

// NewRegistry creates a registry with the built-in modes, overlaid by the
// YAML file at path when non-empty.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{modes: make(map[string]types.Mode)}
	for _, m := range builtins() {
		r.add(m)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read modes file: %w", err)
		}
		var file modesFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse modes file: %w", err)
		}
		for _, m := range file.Modes {
			if m.Name == "" {
				return nil, fmt.Errorf("modes file: mode without a name")
			}
			// User modes never grant writes.
			m.Permissions.WriteFiles = false
			r.add(m)
		}
	}
	return r, nil
}

func (r *Registry) add(m types.Mode) {
	if _, ok := r.modes[m.Name]; !ok {
		r.order = append(r.order, m.Name)
	}
	r.modes[m.Name] = m
}

// Get returns a mode by name, falling back to "general" for unknown names.
func (r *Registry) Get(name string) types.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.modes[name]; ok {
		return m
	}
	return r.modes["general"]
}

// Lookup returns a mode by exact name.
func (r *Registry) Lookup(name string) (types.Mode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modes[name]
	return m, ok
}

// List returns all modes: built-ins first, then user modes in file order.
func (r *Registry) List() []types.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Mode, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modes[name])
	}
	return out
}

// Names returns the sorted mode names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
