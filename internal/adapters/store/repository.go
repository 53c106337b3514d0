package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/melih/blitzkrieg/internal/core/domain"
)

// Repository provides CRUD for one model type.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](db *gorm.DB) Repository[T] {
	return Repository[T]{db: db}
}

func (r Repository[T]) name() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (r Repository[T]) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(new(T))
}

func (r Repository[T]) Create(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create %s: %w", r.name(), err)
	}
	return nil
}

// Get loads the row with the given primary key.
func (r Repository[T]) Get(ctx context.Context, id any) (*T, error) {
	item := new(T)
	err := r.db.WithContext(ctx).First(item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundf("%s %v", r.name(), id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %v: %w", r.name(), id, err)
	}
	return item, nil
}

// List returns every row matching conds, in gorm's inline condition form.
func (r Repository[T]) List(ctx context.Context, conds ...any) ([]T, error) {
	var items []T
	if err := r.db.WithContext(ctx).Find(&items, conds...).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.name(), err)
	}
	return items, nil
}

func (r Repository[T]) Update(ctx context.Context, item *T) error {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("update %s: %w", r.name(), err)
	}
	return nil
}

func (r Repository[T]) Delete(ctx context.Context, id any) error {
	res := r.db.WithContext(ctx).Delete(new(T), "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete %s %v: %w", r.name(), id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("%s %v", r.name(), id)
	}
	return nil
}
