package repository

import (
	"context"
	"errors"
	"fmt"

	"friendlymail-backend/internal/assistant/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new instance of roleRepository
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

// lockOwner takes row locks on every role of userID for the rest of tx.
func lockOwner(tx *gorm.DB, userID string) ([]*domain.Role, error) {
	var roles []*domain.Role
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Find(&roles).Error
	return roles, err
}

// deactivateSiblings clears is_active on every other role of the owner
// without touching updated_at.
func deactivateSiblings(tx *gorm.DB, userID, keepID string) error {
	return tx.Model(&domain.Role{}).
		Where("user_id = ? AND id <> ? AND is_active = ?", userID, keepID, true).
		UpdateColumn("is_active", false).Error
}

func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if role.ComplexityLevel == "" {
		role.ComplexityLevel = domain.ComplexitySimple
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if role.IsActive {
			if _, err := lockOwner(tx, role.UserID); err != nil {
				return err
			}
			if err := deactivateSiblings(tx, role.UserID, role.ID); err != nil {
				return err
			}
		}
		return tx.Create(role).Error
	})
	if isUniqueViolation(err) {
		return r.createConflict(ctx, role)
	}
	return err
}

// createConflict reports which uniqueness rule a failed Create broke. The
// translated driver error does not name the index, so the name is checked.
func (r *roleRepository) createConflict(ctx context.Context, role *domain.Role) error {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Role{}).
		Where("user_id = ? AND name = ? AND id <> ?", role.UserID, role.Name, role.ID).
		Count(&n).Error
	if err == nil && n == 0 && role.IsActive {
		return fmt.Errorf("%w: user %s", domain.ErrActiveRoleConflict, role.UserID)
	}
	return fmt.Errorf("%w: %s", domain.ErrRoleNameTaken, role.Name)
}

func (r *roleRepository) Update(ctx context.Context, role *domain.Role) error {
	err := r.db.WithContext(ctx).Model(role).
		Select("name", "context_description", "can_respond_topics", "cannot_respond_topics",
			"allowed_domains", "auto_send", "complexity_level", "updated_at").
		Updates(role).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrRoleNameTaken, role.Name)
	}
	return err
}

func (r *roleRepository) FindByID(ctx context.Context, id string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindActive(ctx context.Context, userID string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Role, error) {
	var roles []*domain.Role
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_active DESC, updated_at DESC").
		Find(&roles).Error
	return roles, err
}

func (r *roleRepository) Activate(ctx context.Context, userID, roleID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := lockOwner(tx, userID)
		if err != nil {
			return err
		}
		var target *domain.Role
		for _, role := range roles {
			if role.ID == roleID {
				target = role
				break
			}
		}
		if target == nil {
			return domain.ErrNotFound
		}
		if err := deactivateSiblings(tx, userID, roleID); err != nil {
			return err
		}
		return tx.Model(target).Update("is_active", true).Error
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: concurrent activation for user %s", domain.ErrIntegrity, userID)
	}
	return err
}

func (r *roleRepository) Delete(ctx context.Context, userID, roleID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := lockOwner(tx, userID)
		if err != nil {
			return err
		}
		var target, successor *domain.Role
		for _, role := range roles {
			if role.ID == roleID {
				target = role
			} else if successor == nil || role.UpdatedAt.After(successor.UpdatedAt) {
				successor = role
			}
		}
		if target == nil {
			return domain.ErrNotFound
		}
		if successor == nil {
			return domain.ErrLastRole
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&domain.TemporalRule{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(target).Error; err != nil {
			return err
		}
		if target.IsActive {
			return tx.Model(successor).Update("is_active", true).Error
		}
		return nil
	})
}
