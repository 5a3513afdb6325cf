package usecase

import (
	"context"
	"fmt"
	"strings"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"

	"go.uber.org/zap"
)

type roleUsecase struct {
	roles    repository.RoleRepository
	contexts repository.ContextRepository
	log      *zap.Logger
}

// NewRoleUsecase creates a new instance of roleUsecase. contexts may be nil
// when no legacy configuration exists.
func NewRoleUsecase(roles repository.RoleRepository, contexts repository.ContextRepository, log *zap.Logger) RoleUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &roleUsecase{roles: roles, contexts: contexts, log: log.Named("roles")}
}

func (u *roleUsecase) GetActiveRole(ctx context.Context, userID string) (*domain.Role, error) {
	role, err := u.roles.FindActive(ctx, userID)
	if err != nil || role != nil {
		return role, err
	}
	if u.contexts == nil {
		return nil, nil
	}
	legacy, err := u.contexts.FindActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.RoleFromLegacyContext(legacy), nil
}

func (u *roleUsecase) ListRoles(ctx context.Context, userID string) ([]*domain.Role, error) {
	return u.roles.ListByUser(ctx, userID)
}

func (u *roleUsecase) GetRole(ctx context.Context, userID, roleID string) (*domain.Role, error) {
	role, err := u.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil || role.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return role, nil
}

func validateRole(role *domain.Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(role.AllowTopics()) == 0 {
		return fmt.Errorf("%w: at least one topic the assistant may respond to is required", domain.ErrValidation)
	}
	switch role.ComplexityLevel {
	case "", domain.ComplexitySimple, domain.ComplexityMedium, domain.ComplexityAdvanced:
	default:
		return fmt.Errorf("%w: unknown complexity level %q", domain.ErrValidation, role.ComplexityLevel)
	}
	return nil
}

// CreateRole stores a new role, active by default.
func (u *roleUsecase) CreateRole(ctx context.Context, role *domain.Role) error {
	if err := validateRole(role); err != nil {
		return err
	}
	role.ID = ""
	role.IsActive = true
	if err := u.roles.Create(ctx, role); err != nil {
		return err
	}
	u.log.Info("role created", zap.String("user_id", role.UserID), zap.String("role_id", role.ID))
	return nil
}

func (u *roleUsecase) UpdateRole(ctx context.Context, userID string, role *domain.Role) (*domain.Role, error) {
	existing, err := u.GetRole(ctx, userID, role.ID)
	if err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}

	existing.Name = role.Name
	existing.ContextDescription = role.ContextDescription
	existing.CanRespondTopics = role.CanRespondTopics
	existing.CannotRespondTopics = role.CannotRespondTopics
	existing.AllowedDomains = role.AllowedDomains
	existing.AutoSend = role.AutoSend
	if role.ComplexityLevel != "" {
		existing.ComplexityLevel = role.ComplexityLevel
	}
	if err := u.roles.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (u *roleUsecase) ActivateRole(ctx context.Context, userID, roleID string) error {
	if err := u.roles.Activate(ctx, userID, roleID); err != nil {
		return err
	}
	u.log.Info("role activated", zap.String("user_id", userID), zap.String("role_id", roleID))
	return nil
}

func (u *roleUsecase) DeleteRole(ctx context.Context, userID, roleID string) error {
	if err := u.roles.Delete(ctx, userID, roleID); err != nil {
		return err
	}
	u.log.Info("role deleted", zap.String("user_id", userID), zap.String("role_id", roleID))
	return nil
}
