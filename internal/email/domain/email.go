package domain

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// Email is a provider-independent inbound message. (account_id, provider_id)
// is unique so a re-sync never duplicates a message.
type Email struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	AccountID         string    `json:"account_id" gorm:"not null;uniqueIndex:idx_email_account_provider"`
	ProviderID        string    `json:"provider_id" gorm:"not null;uniqueIndex:idx_email_account_provider"`
	ThreadID          string    `json:"thread_id" gorm:"index"`
	InternetMessageID string    `json:"internet_message_id,omitempty"`
	Subject           string    `json:"subject"`
	Sender            string    `json:"sender" gorm:"index"`
	Recipient         string    `json:"recipient"`
	BodyPlain         string    `json:"body_plain" gorm:"type:text"`
	BodyHTML          string    `json:"body_html,omitempty" gorm:"type:text"`
	ReceivedAt        time.Time `json:"received_at" gorm:"index"`
	IsRead            bool      `json:"is_read"`
	IsImportant       bool      `json:"is_important"`
	CreatedAt         time.Time `json:"created_at" gorm:"index"`

	Account *EmailAccount `json:"-" gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

func (Email) TableName() string {
	return "emails"
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// PlainText returns the plain body, or the HTML body with tags stripped when
// no plain part exists.
func (e *Email) PlainText() string {
	if strings.TrimSpace(e.BodyPlain) != "" {
		return e.BodyPlain
	}
	if e.BodyHTML == "" {
		return ""
	}
	text := htmlTag.ReplaceAllString(e.BodyHTML, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
	).Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// SenderAddress returns the bare address of Sender ("Name <a@b>" -> "a@b").
func (e *Email) SenderAddress() string {
	if addr, err := mail.ParseAddress(e.Sender); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(e.Sender)
}

// SenderDomain is everything after the last "@" of the sender address, or ""
// when the address has none.
func (e *Email) SenderDomain() string {
	addr := e.SenderAddress()
	idx := strings.LastIndex(addr, "@")
	if idx < 0 {
		return ""
	}
	return strings.TrimSuffix(addr[idx+1:], ">")
}
