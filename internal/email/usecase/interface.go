package usecase

import (
	"context"

	emaildomain "friendlymail-backend/internal/email/domain"
)

// MailProvider is implemented by each upstream mail API adapter
// (pkg/gmail, pkg/outlook).
type MailProvider interface {
	Name() string
	FetchRecent(ctx context.Context, account *emaildomain.EmailAccount, limit int, onTokenRefresh emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error)
	Send(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage, onTokenRefresh emaildomain.TokenUpdateFunc) (string, error)
}

// MailWatcher is implemented by providers that can push change
// notifications to a topic.
type MailWatcher interface {
	Watch(ctx context.Context, account *emaildomain.EmailAccount, topic string, onTokenRefresh emaildomain.TokenUpdateFunc) (uint64, error)
}

// MailboxUsecase defines the interface for mailbox use cases
type MailboxUsecase interface {
	ConnectAccount(ctx context.Context, account *emaildomain.EmailAccount) error
	GetAccount(ctx context.Context, id string) (*emaildomain.EmailAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]*emaildomain.EmailAccount, error)
	ListActiveAccounts(ctx context.Context) ([]*emaildomain.EmailAccount, error)
	FindAccountByAddress(ctx context.Context, provider emaildomain.Provider, address string) (*emaildomain.EmailAccount, error)

	// FetchNewMessages pulls recent mail from the provider and returns only
	// messages this account had not stored before, in discovery order.
	FetchNewMessages(ctx context.Context, account *emaildomain.EmailAccount) ([]*emaildomain.Email, error)
	// Deliver sends a reply through the account's provider and returns the
	// provider message id.
	Deliver(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage) (string, error)
	// Watch registers account for push notifications on topic and returns
	// the provider history id it starts from.
	Watch(ctx context.Context, account *emaildomain.EmailAccount, topic string) (uint64, error)
}
