package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *emaildomain.EmailAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*emaildomain.EmailAccount, error) {
	var account emaildomain.EmailAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByUserID(ctx context.Context, userID string) ([]*emaildomain.EmailAccount, error) {
	var accounts []*emaildomain.EmailAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) FindByAddress(ctx context.Context, provider emaildomain.Provider, address string) (*emaildomain.EmailAccount, error) {
	var account emaildomain.EmailAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND LOWER(email_address) = LOWER(?) AND is_active = ?", provider, address, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*emaildomain.EmailAccount, error) {
	var accounts []*emaildomain.EmailAccount
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("user_id ASC, created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) UpdateTokens(ctx context.Context, id string, token *oauth2.Token) error {
	updates := map[string]interface{}{
		"access_token": token.AccessToken,
		"updated_at":   time.Now(),
	}
	// Providers only return a refresh token on rotation
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		updates["token_expiry"] = token.Expiry
	}
	return r.db.WithContext(ctx).Model(&emaildomain.EmailAccount{}).Where("id = ?", id).Updates(updates).Error
}

func (r *accountRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&emaildomain.EmailAccount{}).Where("id = ?", id).Update("last_sync_at", at).Error
}

func (r *accountRepository) Deactivate(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&emaildomain.EmailAccount{}).Where("id = ?", id).Update("is_active", false).Error
}
