package ports

import "context"

// Scaffolder lays out a workspace directory on disk.
type Scaffolder interface {
	// Scaffold creates the workspace directory tree, writes files relative to
	// it and returns its path.
	Scaffold(ctx context.Context, workspace string, files map[string][]byte) (string, error)
	// Remove deletes the workspace directory.
	Remove(workspace string) error
}

// WorkspaceRecorder persists the details of a provisioned workspace.
type WorkspaceRecorder interface {
	Record(ctx context.Context, workspace, path string, vars map[string]string) error
	Close() error
}
