package domain

import "time"

// Provider names an upstream mail API.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// EmailAccount is one connected mailbox. Token exchange happens elsewhere;
// this record only carries what the provider adapters need.
type EmailAccount struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"index;not null"`
	Provider     Provider   `json:"provider" gorm:"type:varchar(20);not null"`
	EmailAddress string     `json:"email_address" gorm:"index;not null"`
	AccessToken  string     `json:"-" gorm:"type:text"`
	RefreshToken string     `json:"-" gorm:"type:text"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (EmailAccount) TableName() string {
	return "email_accounts"
}
