package scaffold

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"github.com/melih/blitzkrieg/internal/core/ports"
)

// ProjectsDir is created inside every workspace for the user's projects.
const ProjectsDir = "projects"

// Adapter lays out workspaces under Root as git repositories.
type Adapter struct {
	Root   string
	Author object.Signature
	log    zerolog.Logger
}

var _ ports.Scaffolder = (*Adapter)(nil)

func NewAdapter(log zerolog.Logger, root string) *Adapter {
	return &Adapter{
		Root:   root,
		Author: object.Signature{Name: "blitz", Email: "blitz@localhost"},
		log:    log.With().Str("component", "scaffold").Logger(),
	}
}

// Path returns the directory of a workspace.
func (a *Adapter) Path(workspace string) string {
	return filepath.Join(a.Root, workspace)
}

// Scaffold creates {root}/{workspace} and its projects directory, initialises
// (or reopens) the git repository, writes files and commits them when the
// tree changed.
func (a *Adapter) Scaffold(ctx context.Context, workspace string, files map[string][]byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := filepath.Abs(a.Path(workspace))
	if err != nil {
		return "", fmt.Errorf("resolve workspace dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ProjectsDir), 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}

	repo, err := git.PlainInit(dir, false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(dir)
	}
	if err != nil {
		return "", fmt.Errorf("init repository in %s: %w", dir, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		if !filepath.IsLocal(name) {
			return "", fmt.Errorf("file %q escapes workspace %s", name, workspace)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(target, files[name], 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := a.commit(repo, names); err != nil {
		return "", err
	}
	a.log.Info().Str("workspace", workspace).Str("path", dir).Int("files", len(names)).Msg("workspace scaffolded")
	return dir, nil
}

func (a *Adapter) commit(repo *git.Repository, names []string) error {
	if len(names) == 0 {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	for _, name := range names {
		if _, err := wt.Add(filepath.ToSlash(name)); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	author := a.Author
	author.When = time.Now()
	if _, err := wt.Commit("Scaffold workspace", &git.CommitOptions{Author: &author}); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Remove deletes the workspace directory. A missing directory is not an error.
func (a *Adapter) Remove(workspace string) error {
	if workspace == "" || !filepath.IsLocal(workspace) {
		return fmt.Errorf("refusing to remove workspace %q", workspace)
	}
	if err := os.RemoveAll(a.Path(workspace)); err != nil {
		return fmt.Errorf("remove workspace %s: %w", workspace, err)
	}
	return nil
}
