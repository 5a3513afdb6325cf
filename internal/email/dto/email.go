package dto

import (
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"
)

type ConnectAccountRequest struct {
	Provider     emaildomain.Provider `json:"provider" binding:"required,oneof=gmail outlook"`
	EmailAddress string               `json:"email_address" binding:"required,email"`
	AccessToken  string               `json:"access_token" binding:"required"`
	RefreshToken string               `json:"refresh_token"`
	TokenExpiry  *time.Time           `json:"token_expiry"`
}

type AccountsResponse struct {
	Accounts []*emaildomain.EmailAccount `json:"accounts"`
}

type SyncResponse struct {
	AccountID string               `json:"account_id"`
	New       int                  `json:"new"`
	Emails    []*emaildomain.Email `json:"emails"`
}
