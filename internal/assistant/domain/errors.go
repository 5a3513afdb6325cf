package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity marks a storage uniqueness or constraint violation.
	ErrIntegrity = errors.New("integrity violation")
	// ErrOutcomeExists is returned when a message already has a classification outcome.
	ErrOutcomeExists = fmt.Errorf("%w: classification outcome already exists", ErrIntegrity)
	// ErrRoleNameTaken is returned when an owner already has a role with the same name.
	ErrRoleNameTaken = fmt.Errorf("%w: role name already used", ErrIntegrity)
	// ErrActiveRoleConflict is returned when another role of the owner became
	// active at the same time.
	ErrActiveRoleConflict = fmt.Errorf("%w: another role is already active", ErrIntegrity)

	ErrInvalidTransition = errors.New("invalid response status transition")
	ErrDeliveryFailed    = errors.New("response delivery failed")
	ErrLastRole          = errors.New("cannot delete the only remaining role")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("not allowed to access this resource")
	ErrValidation        = errors.New("validation failed")
)
