package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phenrril/storefront/internal/domain"
)

// StateRepo persists client store blobs in the stored_states table.
type StateRepo struct{ db *gorm.DB }

func NewStateRepo(db *gorm.DB) *StateRepo { return &StateRepo{db: db} }

func (r *StateRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.StoredState{})
}

func (r *StateRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var s domain.StoredState
	if err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s.Value, nil
}

func (r *StateRepo) Set(ctx context.Context, key string, value []byte) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return errors.New("empty state key")
	}
	s := domain.StoredState{Key: k, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
}

func (r *StateRepo) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&domain.StoredState{}, "key = ?", key).Error
}

// PurgeBefore drops blobs not written since t and returns how many were removed.
func (r *StateRepo) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("updated_at < ?", t).Delete(&domain.StoredState{})
	return res.RowsAffected, res.Error
}
