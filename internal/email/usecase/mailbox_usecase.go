package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/internal/email/repository"
	"friendlymail-backend/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type mailboxUsecase struct {
	accounts   repository.AccountRepository
	emails     repository.EmailRepository
	providers  map[emaildomain.Provider]MailProvider
	fetchLimit int
	log        *zap.Logger
}

// NewMailboxUsecase creates a new instance of mailboxUsecase. Providers are
// keyed by their Name().
func NewMailboxUsecase(accounts repository.AccountRepository, emails repository.EmailRepository, fetchLimit int, log *zap.Logger, providers ...MailProvider) MailboxUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	byName := make(map[emaildomain.Provider]MailProvider, len(providers))
	for _, p := range providers {
		byName[emaildomain.Provider(p.Name())] = p
	}
	return &mailboxUsecase{
		accounts:   accounts,
		emails:     emails,
		providers:  byName,
		fetchLimit: fetchLimit,
		log:        log.Named("mailbox"),
	}
}

func (u *mailboxUsecase) ConnectAccount(ctx context.Context, account *emaildomain.EmailAccount) error {
	account.EmailAddress = strings.TrimSpace(account.EmailAddress)
	if account.UserID == "" || account.EmailAddress == "" {
		return errors.New("user and email address are required")
	}
	if _, ok := u.providers[account.Provider]; !ok {
		return fmt.Errorf("%w: %s", emaildomain.ErrUnknownProvider, account.Provider)
	}
	account.IsActive = true
	return u.accounts.Create(ctx, account)
}

func (u *mailboxUsecase) GetAccount(ctx context.Context, id string) (*emaildomain.EmailAccount, error) {
	return u.accounts.FindByID(ctx, id)
}

func (u *mailboxUsecase) ListAccounts(ctx context.Context, userID string) ([]*emaildomain.EmailAccount, error) {
	return u.accounts.FindByUserID(ctx, userID)
}

func (u *mailboxUsecase) ListActiveAccounts(ctx context.Context) ([]*emaildomain.EmailAccount, error) {
	return u.accounts.ListActive(ctx)
}

func (u *mailboxUsecase) FindAccountByAddress(ctx context.Context, provider emaildomain.Provider, address string) (*emaildomain.EmailAccount, error) {
	return u.accounts.FindByAddress(ctx, provider, address)
}

func (u *mailboxUsecase) provider(account *emaildomain.EmailAccount) (MailProvider, error) {
	p, ok := u.providers[account.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", emaildomain.ErrUnknownProvider, account.Provider)
	}
	return p, nil
}

// tokenCallback persists refreshed OAuth tokens back to the account row.
func (u *mailboxUsecase) tokenCallback(ctx context.Context, account *emaildomain.EmailAccount) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		account.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			account.RefreshToken = token.RefreshToken
		}
		return u.accounts.UpdateTokens(ctx, account.ID, token)
	}
}

func (u *mailboxUsecase) FetchNewMessages(ctx context.Context, account *emaildomain.EmailAccount) ([]*emaildomain.Email, error) {
	p, err := u.provider(account)
	if err != nil {
		return nil, err
	}

	fetched, err := p.FetchRecent(ctx, account, u.fetchLimit, u.tokenCallback(ctx, account))
	if err != nil {
		if errors.Is(err, emaildomain.ErrTokenExpired) {
			u.log.Warn("token rejected, account needs reconnection", zap.String("account", account.ID))
			if derr := u.accounts.Deactivate(ctx, account.ID); derr != nil {
				u.log.Error("failed to deactivate account", zap.String("account", account.ID), zap.Error(derr))
			}
		}
		return nil, fmt.Errorf("fetch %s messages: %w", account.Provider, err)
	}

	// Discovery order is preserved through created_at
	base := time.Now()
	fresh := make([]*emaildomain.Email, 0, len(fetched))
	for i, email := range fetched {
		email.ID = ""
		email.AccountID = account.ID
		email.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)

		inserted, err := u.emails.InsertIfAbsent(ctx, email)
		if err != nil {
			return fresh, fmt.Errorf("store message %s: %w", email.ProviderID, err)
		}
		if inserted {
			fresh = append(fresh, email)
		}
	}

	if err := u.accounts.MarkSynced(ctx, account.ID, time.Now()); err != nil {
		u.log.Warn("failed to record sync time", zap.String("account", account.ID), zap.Error(err))
	}
	metrics.RecordSynced(string(account.Provider), len(fresh))
	u.log.Info("sync complete",
		zap.String("account", account.ID),
		zap.Int("fetched", len(fetched)),
		zap.Int("new", len(fresh)))
	return fresh, nil
}

func (u *mailboxUsecase) Deliver(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage) (string, error) {
	p, err := u.provider(account)
	if err != nil {
		return "", err
	}
	id, err := p.Send(ctx, account, msg, u.tokenCallback(ctx, account))
	if err != nil {
		metrics.RecordDelivery(string(account.Provider), "failed")
		return "", err
	}
	metrics.RecordDelivery(string(account.Provider), "sent")
	return id, nil
}

func (u *mailboxUsecase) Watch(ctx context.Context, account *emaildomain.EmailAccount, topic string) (uint64, error) {
	p, err := u.provider(account)
	if err != nil {
		return 0, err
	}
	w, ok := p.(MailWatcher)
	if !ok {
		return 0, fmt.Errorf("%w: %s", emaildomain.ErrWatchUnsupported, account.Provider)
	}
	return w.Watch(ctx, account, topic, u.tokenCallback(ctx, account))
}
