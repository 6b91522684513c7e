// Package permission maps user-facing capability switches to the backend
// tool allowlist. File-writing tools are never granted no matter what the
// stored permissions say.
package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// toolMapping translates each capability switch into backend tool names.
// writeFiles maps to nothing: write access is structurally impossible.
var toolMapping = map[string][]string{
	"webSearch":   {"WebSearch", "WebFetch"},
	"vaultSearch": {"Grep", "Glob", "Task"},
	"readFiles":   {"Read"},
	"writeFiles":  {},
}

// forbiddenTools are never granted regardless of permissions.
var forbiddenTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
	"Bash":         true,
	"KillShell":    true,
	"BashOutput":   true,
}

// coreTools are always available.
var coreTools = []string{"TodoWrite"}

// Defaults returns the permissions applied before the user changes anything:
// local vault search and file reads on, external web access off.
func Defaults() types.Permissions {
	return types.Permissions{
		WebSearch:   false,
		VaultSearch: true,
		ReadFiles:   true,
		WriteFiles:  false,
	}
}

// Manager stores and resolves the user's permissions.
type Manager struct {
	store *storage.Store
	bus   *event.Bus

	mu     sync.RWMutex
	cached *types.Permissions
}

// NewManager creates a permission manager.
func NewManager(store *storage.Store, bus *event.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// Get returns the current permissions, creating defaults on first use.
func (m *Manager) Get(ctx context.Context) (types.Permissions, error) {
	m.mu.RLock()
	if m.cached != nil {
		perms := *m.cached
		m.mu.RUnlock()
		return perms, nil
	}
	m.mu.RUnlock()

	var perms types.Permissions
	err := m.store.Get(ctx, []string{"permissions"}, &perms)
	if err == storage.ErrNotFound {
		perms = Defaults()
		if err := m.store.Put(ctx, []string{"permissions"}, perms); err != nil {
			return perms, err
		}
	} else if err != nil {
		return perms, err
	}

	perms.WriteFiles = false

	m.mu.Lock()
	m.cached = &perms
	m.mu.Unlock()
	return perms, nil
}

// Update validates and stores new permissions. Any attempt to enable file
// writes rejects the whole update.
func (m *Manager) Update(ctx context.Context, perms types.Permissions) error {
	if perms.WriteFiles {
		return fmt.Errorf("write permissions cannot be enabled")
	}

	if err := m.store.Put(ctx, []string{"permissions"}, perms); err != nil {
		return err
	}

	m.mu.Lock()
	m.cached = &perms
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(event.Event{
			Type: event.PermissionUpdated,
			Data: event.PermissionUpdatedData{Permissions: perms},
		})
	}
	return nil
}

// AllowedTools resolves permissions into the sorted backend tool allowlist.
// Forbidden tools are filtered even if a mapping ever names one.
func AllowedTools(perms types.Permissions) []string {
	enabled := map[string]bool{
		"webSearch":   perms.WebSearch,
		"vaultSearch": perms.VaultSearch,
		"readFiles":   perms.ReadFiles,
		// writeFiles intentionally omitted.
	}

	set := make(map[string]bool)
	for _, t := range coreTools {
		set[t] = true
	}
	for name, on := range enabled {
		if !on {
			continue
		}
		for _, t := range toolMapping[name] {
			if !forbiddenTools[t] {
				set[t] = true
			}
		}
	}

	tools := make([]string, 0, len(set))
	for t := range set {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}

// IsForbidden reports whether a tool may never be granted.
func IsForbidden(tool string) bool {
	return forbiddenTools[tool]
}
