package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = emaildomain.TokenUpdateFunc

type Service struct {
	clientID     string
	clientSecret string
	endpoint     string
	log          *zap.Logger
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	log      *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emaildomain.ErrTokenExpired, err)
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.log.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		log:          log.Named("gmail"),
	}
}

// WithEndpoint points the client at another Gmail API root.
func (s *Service) WithEndpoint(endpoint string) *Service {
	s.endpoint = endpoint
	return s
}

func (s *Service) Name() string { return string(emaildomain.ProviderGmail) }

// GetGmailService creates Gmail service with user's access token
func (s *Service) GetGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
		log:      s.log,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, wrappedSource))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// FetchRecent returns up to limit INBOX messages, oldest first, so callers
// process them in discovery order.
func (s *Service) FetchRecent(ctx context.Context, account *emaildomain.EmailAccount, limit int, onTokenRefresh TokenUpdateFunc) ([]*emaildomain.Email, error) {
	srv, err := s.GetGmailService(ctx, account.AccessToken, account.RefreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500 // Gmail API maximum
	}

	user := "me"
	listResp, err := srv.Users.Messages.List(user).LabelIds("INBOX").MaxResults(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(err)
	}

	type emailResult struct {
		email *emaildomain.Email
		err   error
	}
	results := make(chan emailResult, len(listResp.Messages))

	// Fetch emails in parallel (with reasonable concurrency limit)
	semaphore := make(chan struct{}, 10)

	for _, msg := range listResp.Messages {
		go func(msgID string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			full, err := srv.Users.Messages.Get(user, msgID).Format("full").Context(ctx).Do()
			if err != nil {
				results <- emailResult{nil, err}
				return
			}
			results <- emailResult{convertGmailMessageToEmail(full), nil}
		}(msg.Id)
	}

	emails := make([]*emaildomain.Email, 0, len(listResp.Messages))
	for i := 0; i < len(listResp.Messages); i++ {
		result := <-results
		if result.err != nil {
			s.log.Warn("skipping message that failed to load", zap.Error(result.err))
			continue
		}
		emails = append(emails, result.email)
	}

	// Parallel fetching returns in random order
	sort.SliceStable(emails, func(i, j int) bool {
		if emails[i].ReceivedAt.Equal(emails[j].ReceivedAt) {
			return emails[i].ProviderID < emails[j].ProviderID
		}
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})
	return emails, nil
}

// Send delivers msg in the original thread and returns the Gmail message id.
func (s *Service) Send(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage, onTokenRefresh TokenUpdateFunc) (string, error) {
	srv, err := s.GetGmailService(ctx, account.AccessToken, account.RefreshToken, onTokenRefresh)
	if err != nil {
		return "", err
	}

	if msg.From == "" {
		msg.From = account.EmailAddress
	}
	raw, err := BuildReply(msg, time.Now())
	if err != nil {
		return "", err
	}

	sent, err := srv.Users.Messages.Send("me", &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: msg.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError(err)
	}
	return sent.Id, nil
}

// Watch sets up push notifications for the user's mailbox
func (s *Service) Watch(ctx context.Context, account *emaildomain.EmailAccount, topicName string, onTokenRefresh TokenUpdateFunc) (uint64, error) {
	srv, err := s.GetGmailService(ctx, account.AccessToken, account.RefreshToken, onTokenRefresh)
	if err != nil {
		return 0, err
	}

	// Only one push client is allowed per mailbox
	_ = srv.Users.Stop("me").Context(ctx).Do()

	resp, err := srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, wrapAPIError(err)
	}
	s.log.Info("watch started", zap.String("account", account.ID), zap.Uint64("history_id", resp.HistoryId))
	return resp.HistoryId, nil
}

// BuildReply renders msg as an RFC 5322 text/plain message.
func BuildReply(msg emaildomain.OutgoingMessage, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	if msg.From != "" {
		h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	}
	to, err := mail.ParseAddressList(msg.To)
	if err != nil || len(to) == 0 {
		to = []*mail.Address{{Address: msg.To}}
	}
	h.SetAddressList("To", to)

	if msg.InReplyToMessageID != "" {
		h.Set("In-Reply-To", msg.InReplyToMessageID)
		h.Set("References", msg.InReplyToMessageID)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("write reply body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close reply: %w", err)
	}
	return buf.Bytes(), nil
}

func wrapAPIError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &emaildomain.ProviderError{
			Provider:   emaildomain.ProviderGmail,
			StatusCode: gErr.Code,
			Err:        emaildomain.ClassifyStatus(gErr.Code, errors.New(gErr.Message)),
		}
	}
	return err
}

// Helper functions

func convertGmailMessageToEmail(msg *gmail.Message) *emaildomain.Email {
	email := &emaildomain.Email{
		ProviderID:  msg.Id,
		ThreadID:    msg.ThreadId,
		ReceivedAt:  time.UnixMilli(msg.InternalDate),
		IsRead:      !hasLabel(msg.LabelIds, "UNREAD"),
		IsImportant: hasLabel(msg.LabelIds, "IMPORTANT"),
	}
	if msg.Payload == nil {
		return email
	}

	headers := msg.Payload.Headers
	email.Subject = getHeader(headers, "Subject")
	email.Sender = getHeader(headers, "From")
	email.Recipient = getHeader(headers, "To")
	email.InternetMessageID = getHeader(headers, "Message-ID")
	email.BodyPlain, email.BodyHTML = getEmailBody(msg.Payload)
	return email
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody walks the MIME tree and returns the first text/plain and
// text/html parts.
func getEmailBody(payload *gmail.MessagePart) (plain, html string) {
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" {
			if data, err := decodeBody(part.Body.Data); err == nil {
				switch {
				case part.MimeType == "text/html" && html == "":
					html = data
				case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
					plain = data
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return plain, html
}

// decodeBody accepts padded and unpadded base64url.
func decodeBody(data string) (string, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
