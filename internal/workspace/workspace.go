// Package workspace manages per-agent directories under the user's data
// root. The rest of the runtime observes workspaces only through the
// api.WorkspaceHandler contract.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"reins/internal/api"
	"reins/pkg/logging"
)

// Manager creates and resolves agent workspace directories.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at dataRoot and registers it with
// the api locator.
func NewManager(dataRoot string) (*Manager, error) {
	if strings.TrimSpace(dataRoot) == "" {
		return nil, api.NewValidationError("workspace data root cannot be empty")
	}
	m := &Manager{root: filepath.Clean(dataRoot)}
	api.RegisterWorkspace(m)
	return m, nil
}

// Root returns the data root directory.
func (m *Manager) Root() string { return m.root }

// path validates the agent id and joins it under the root. Ids that are
// empty or would escape the root are refused.
func (m *Manager) path(agentID string) (string, error) {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return "", api.NewValidationError("agent id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", api.NewValidationError("agent id %q contains path separators", agentID)
	}
	return filepath.Join(m.root, id), nil
}

// Resolve returns the workspace directory for an agent id. The directory
// need not exist yet.
func (m *Manager) Resolve(agentID string) (string, error) {
	return m.path(agentID)
}

// Create makes the workspace directory (and the data root) if missing
// and returns its path.
func (m *Manager) Create(agentID string) (string, error) {
	dir, err := m.path(agentID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", api.NewOperationError("failed to create workspace for "+agentID, err)
	}
	logging.Debug("Workspace", "Created workspace %s", dir)
	return dir, nil
}

// Remove deletes the workspace directory and its contents. Removing a
// missing workspace is a no-op.
func (m *Manager) Remove(agentID string) error {
	dir, err := m.path(agentID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return api.NewOperationError("failed to remove workspace for "+agentID, err)
	}
	return nil
}

// Exists reports whether the workspace directory exists.
func (m *Manager) Exists(agentID string) (bool, error) {
	dir, err := m.path(agentID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, api.NewOperationError("failed to stat workspace for "+agentID, err)
	}
	return info.IsDir(), nil
}
