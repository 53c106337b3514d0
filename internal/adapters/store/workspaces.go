package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// Workspaces stores workspace records and their environment variables.
type Workspaces struct {
	db *gorm.DB
}

var _ ports.WorkspaceRecorder = (*Workspaces)(nil)

// Open connects through dialector and migrates the schema.
func Open(ctx context.Context, dialector gorm.Dialector) (*Workspaces, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	w := &Workspaces{db: db}
	if err := w.migrate(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// OpenPostgres connects to a workspace database.
func OpenPostgres(ctx context.Context, dsn string) (*Workspaces, error) {
	return Open(ctx, postgres.Open(dsn))
}

// OpenSQLite opens a local database file, or memory with ":memory:".
func OpenSQLite(ctx context.Context, path string) (*Workspaces, error) {
	return Open(ctx, sqlite.Open(path))
}

func (w *Workspaces) migrate(ctx context.Context) error {
	if err := NewRepository[Workspace](w.db).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate workspaces: %w", err)
	}
	if err := NewRepository[EnvironmentVariable](w.db).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate environment variables: %w", err)
	}
	return nil
}

// Record creates or refreshes the workspace row named workspace and replaces
// its variables, in one transaction.
func (w *Workspaces) Record(ctx context.Context, workspace, path string, vars map[string]string) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workspaces := NewRepository[Workspace](tx)
		variables := NewRepository[EnvironmentVariable](tx)

		found, err := workspaces.List(ctx, "name = ?", workspace)
		if err != nil {
			return err
		}
		var ws Workspace
		if len(found) > 0 {
			ws = found[0]
			ws.Path = path
			if err := workspaces.Update(ctx, &ws); err != nil {
				return err
			}
			if err := tx.Where("workspace_id = ?", ws.ID).Delete(&EnvironmentVariable{}).Error; err != nil {
				return fmt.Errorf("clear variables of %s: %w", workspace, err)
			}
		} else {
			ws = Workspace{Name: workspace, Path: path, Description: "blitz workspace " + workspace}
			if err := workspaces.Create(ctx, &ws); err != nil {
				return err
			}
		}

		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := EnvironmentVariable{WorkspaceID: ws.ID, Name: name, Value: vars[name]}
			if err := variables.Create(ctx, &v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ByName loads a workspace with its variables.
func (w *Workspaces) ByName(ctx context.Context, name string) (*Workspace, error) {
	var ws Workspace
	err := w.db.WithContext(ctx).Preload("Variables").First(&ws, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundf("workspace %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", name, err)
	}
	return &ws, nil
}

// Forget deletes a workspace and its variables.
func (w *Workspaces) Forget(ctx context.Context, name string) error {
	ws, err := w.ByName(ctx, name)
	if err != nil {
		return err
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", ws.ID).Delete(&EnvironmentVariable{}).Error; err != nil {
			return fmt.Errorf("delete variables of %s: %w", name, err)
		}
		return NewRepository[Workspace](tx).Delete(ctx, ws.ID)
	})
}

func (w *Workspaces) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
