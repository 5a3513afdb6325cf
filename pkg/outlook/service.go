package outlook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const defaultGraphURL = "https://graph.microsoft.com/v1.0"

// Service talks to Microsoft Graph mail endpoints on behalf of one account.
type Service struct {
	clientID     string
	clientSecret string
	tenant       string
	graphURL     string
	log          *zap.Logger
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback emaildomain.TokenUpdateFunc
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

func NewService(clientID, clientSecret, tenant string, log *zap.Logger) *Service {
	if tenant == "" {
		tenant = "common"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		tenant:       tenant,
		graphURL:     defaultGraphURL,
		log:          log.Named("outlook"),
	}
}

// WithGraphURL points the client at another Graph root.
func (s *Service) WithGraphURL(u string) *Service {
	s.graphURL = strings.TrimRight(u, "/")
	return s
}

func (s *Service) Name() string { return string(emaildomain.ProviderOutlook) }

func (s *Service) httpClient(ctx context.Context, account *emaildomain.EmailAccount, onTokenRefresh emaildomain.TokenUpdateFunc) *http.Client {
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    "Bearer",
	}
	if account.TokenExpiry != nil {
		token.Expiry = *account.TokenExpiry
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(s.tenant),
		Scopes:       []string{"https://graph.microsoft.com/Mail.ReadWrite", "https://graph.microsoft.com/Mail.Send", "offline_access"},
	}
	src := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
		log:      s.log,
	}
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 60 * time.Second
	return client
}

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name,omitempty"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversationId"`
	InternetMessageID string         `json:"internetMessageId"`
	Subject           string         `json:"subject"`
	From              *graphAddress  `json:"from"`
	ToRecipients      []graphAddress `json:"toRecipients"`
	ReceivedDateTime  time.Time      `json:"receivedDateTime"`
	Body              struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	IsRead     bool   `json:"isRead"`
	Importance string `json:"importance"`
}

// FetchRecent returns up to limit inbox messages, oldest first.
func (s *Service) FetchRecent(ctx context.Context, account *emaildomain.EmailAccount, limit int, onTokenRefresh emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("$top", strconv.Itoa(limit))
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$select", "id,conversationId,internetMessageId,subject,from,toRecipients,receivedDateTime,body,isRead,importance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.graphURL+"/me/mailFolders/inbox/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := s.do(s.httpClient(ctx, account, onTokenRefresh), req, &page); err != nil {
		return nil, err
	}

	emails := make([]*emaildomain.Email, 0, len(page.Value))
	for _, m := range page.Value {
		emails = append(emails, convertGraphMessage(m))
	}
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})
	return emails, nil
}

// Send delivers msg through sendMail. Graph answers 202 without an id, so
// the returned provider id is empty.
func (s *Service) Send(ctx context.Context, account *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage, onTokenRefresh emaildomain.TokenUpdateFunc) (string, error) {
	var to graphAddress
	to.EmailAddress.Address = bareAddress(msg.To)

	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": "Text",
				"content":     msg.Body,
			},
			"toRecipients": []graphAddress{to},
		},
		"saveToSentItems": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.graphURL+"/me/sendMail", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(s.httpClient(ctx, account, onTokenRefresh), req, nil); err != nil {
		return "", err
	}
	return "", nil
}

func (s *Service) do(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		var pErr *emaildomain.ProviderError
		if errors.As(err, &pErr) {
			return err
		}
		return fmt.Errorf("outlook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		cause := errors.New(strings.TrimSpace(string(respBody)))
		return &emaildomain.ProviderError{
			Provider:   emaildomain.ProviderOutlook,
			StatusCode: resp.StatusCode,
			Err:        emaildomain.ClassifyStatus(resp.StatusCode, cause),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func convertGraphMessage(m graphMessage) *emaildomain.Email {
	e := &emaildomain.Email{
		ProviderID:        m.ID,
		ThreadID:          m.ConversationID,
		InternetMessageID: m.InternetMessageID,
		Subject:           m.Subject,
		ReceivedAt:        m.ReceivedDateTime,
		IsRead:            m.IsRead,
		IsImportant:       strings.EqualFold(m.Importance, "high"),
	}
	if m.From != nil {
		e.Sender = formatAddress(*m.From)
	}
	if len(m.ToRecipients) > 0 {
		e.Recipient = m.ToRecipients[0].EmailAddress.Address
	}
	if strings.EqualFold(m.Body.ContentType, "html") {
		e.BodyHTML = m.Body.Content
	} else {
		e.BodyPlain = m.Body.Content
	}
	return e
}

func formatAddress(a graphAddress) string {
	if a.EmailAddress.Name != "" && a.EmailAddress.Name != a.EmailAddress.Address {
		return fmt.Sprintf("%s <%s>", a.EmailAddress.Name, a.EmailAddress.Address)
	}
	return a.EmailAddress.Address
}

func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "<"); i >= 0 {
		if j := strings.LastIndex(s, ">"); j > i {
			return s[i+1 : j]
		}
	}
	return s
}
