package repository

import (
	"context"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"golang.org/x/oauth2"
)

// AccountRepository defines persistence for connected mailboxes.
type AccountRepository interface {
	Create(ctx context.Context, account *emaildomain.EmailAccount) error
	FindByID(ctx context.Context, id string) (*emaildomain.EmailAccount, error)
	FindByUserID(ctx context.Context, userID string) ([]*emaildomain.EmailAccount, error)
	FindByAddress(ctx context.Context, provider emaildomain.Provider, address string) (*emaildomain.EmailAccount, error)
	ListActive(ctx context.Context) ([]*emaildomain.EmailAccount, error)
	UpdateTokens(ctx context.Context, id string, token *oauth2.Token) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
}

// EmailRepository defines persistence for inbound messages.
type EmailRepository interface {
	// InsertIfAbsent stores email unless (account, provider id) already
	// exists. It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, email *emaildomain.Email) (bool, error)
	FindByID(ctx context.Context, id string) (*emaildomain.Email, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}
