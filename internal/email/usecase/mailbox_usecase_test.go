package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/internal/email/repository"
	"friendlymail-backend/internal/testutil"

	"golang.org/x/oauth2"
)

type fakeProvider struct {
	name     string
	messages []*emaildomain.Email
	fetchErr error
	sendErr  error
	sent     []emaildomain.OutgoingMessage
	refresh  *oauth2.Token
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchRecent(_ context.Context, _ *emaildomain.EmailAccount, limit int, cb emaildomain.TokenUpdateFunc) ([]*emaildomain.Email, error) {
	if f.refresh != nil && cb != nil {
		if err := cb(f.refresh); err != nil {
			return nil, err
		}
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	// hand out fresh copies so repeated syncs look like a real API
	out := make([]*emaildomain.Email, 0, len(f.messages))
	for i, m := range f.messages {
		if i >= limit {
			break
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeProvider) Send(_ context.Context, _ *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage, _ emaildomain.TokenUpdateFunc) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("sent-%d", len(f.sent)), nil
}

func newMailbox(t *testing.T, p *fakeProvider) (MailboxUsecase, repository.AccountRepository, repository.EmailRepository) {
	t.Helper()
	db := testutil.NewDB(t, &emaildomain.EmailAccount{}, &emaildomain.Email{})
	accounts := repository.NewAccountRepository(db)
	emails := repository.NewEmailRepository(db)
	return NewMailboxUsecase(accounts, emails, 50, nil, p), accounts, emails
}

func TestFetchNewMessages_OnlyReturnsUnseen(t *testing.T) {
	p := &fakeProvider{name: "gmail", messages: []*emaildomain.Email{
		{ProviderID: "m1", Subject: "one", Sender: "a@uni.edu"},
		{ProviderID: "m2", Subject: "two", Sender: "b@uni.edu"},
	}}
	uc, accounts, emails := newMailbox(t, p)
	ctx := context.Background()

	account := &emaildomain.EmailAccount{UserID: "u1", Provider: emaildomain.ProviderGmail, EmailAddress: "me@uni.edu"}
	if err := uc.ConnectAccount(ctx, account); err != nil {
		t.Fatalf("ConnectAccount: %v", err)
	}

	fresh, err := uc.FetchNewMessages(ctx, account)
	if err != nil {
		t.Fatalf("FetchNewMessages: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("first sync returned %d messages, want 2", len(fresh))
	}
	if fresh[0].ProviderID != "m1" || !fresh[0].CreatedAt.Before(fresh[1].CreatedAt) {
		t.Error("discovery order must be kept in created_at")
	}

	p.messages = append(p.messages, &emaildomain.Email{ProviderID: "m3", Subject: "three"})
	fresh, err = uc.FetchNewMessages(ctx, account)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(fresh) != 1 || fresh[0].ProviderID != "m3" {
		t.Fatalf("second sync returned %+v, want only m3", fresh)
	}

	n, _ := emails.CountByAccount(ctx, account.ID)
	if n != 3 {
		t.Errorf("stored %d emails, want 3", n)
	}
	stored, _ := accounts.FindByID(ctx, account.ID)
	if stored.LastSyncAt == nil {
		t.Error("LastSyncAt should be set after a sync")
	}
}

func TestFetchNewMessages_PersistsRefreshedToken(t *testing.T) {
	p := &fakeProvider{name: "gmail", refresh: &oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh"}}
	uc, accounts, _ := newMailbox(t, p)
	ctx := context.Background()

	account := &emaildomain.EmailAccount{UserID: "u1", Provider: emaildomain.ProviderGmail, EmailAddress: "me@uni.edu", AccessToken: "old"}
	if err := uc.ConnectAccount(ctx, account); err != nil {
		t.Fatalf("ConnectAccount: %v", err)
	}
	if _, err := uc.FetchNewMessages(ctx, account); err != nil {
		t.Fatalf("FetchNewMessages: %v", err)
	}
	stored, _ := accounts.FindByID(ctx, account.ID)
	if stored.AccessToken != "new-access" || stored.RefreshToken != "new-refresh" {
		t.Errorf("tokens not persisted: %q / %q", stored.AccessToken, stored.RefreshToken)
	}
}

func TestFetchNewMessages_ExpiredTokenDeactivates(t *testing.T) {
	p := &fakeProvider{name: "gmail", fetchErr: fmt.Errorf("%w: revoked", emaildomain.ErrTokenExpired)}
	uc, accounts, _ := newMailbox(t, p)
	ctx := context.Background()

	account := &emaildomain.EmailAccount{UserID: "u1", Provider: emaildomain.ProviderGmail, EmailAddress: "me@uni.edu"}
	if err := uc.ConnectAccount(ctx, account); err != nil {
		t.Fatalf("ConnectAccount: %v", err)
	}
	_, err := uc.FetchNewMessages(ctx, account)
	if !errors.Is(err, emaildomain.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	active, _ := accounts.ListActive(ctx)
	if len(active) != 0 {
		t.Error("account with a revoked token should be deactivated")
	}
}

func TestConnectAccount_UnknownProvider(t *testing.T) {
	uc, _, _ := newMailbox(t, &fakeProvider{name: "gmail"})
	err := uc.ConnectAccount(context.Background(), &emaildomain.EmailAccount{UserID: "u1", Provider: "yahoo", EmailAddress: "x@y.com"})
	if !errors.Is(err, emaildomain.ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestDeliver(t *testing.T) {
	p := &fakeProvider{name: "gmail"}
	uc, _, _ := newMailbox(t, p)
	account := &emaildomain.EmailAccount{ID: "a1", Provider: emaildomain.ProviderGmail}

	id, err := uc.Deliver(context.Background(), account, emaildomain.OutgoingMessage{To: "s@uni.edu", Subject: "Re: hi"})
	if err != nil || id != "sent-1" {
		t.Fatalf("Deliver = %q, %v", id, err)
	}

	p.sendErr = errors.New("boom")
	if _, err := uc.Deliver(context.Background(), account, emaildomain.OutgoingMessage{}); err == nil {
		t.Fatal("expected send failure to surface")
	}
}

type watchingProvider struct {
	fakeProvider
	topic string
}

func (w *watchingProvider) Watch(_ context.Context, _ *emaildomain.EmailAccount, topic string, _ emaildomain.TokenUpdateFunc) (uint64, error) {
	w.topic = topic
	return 42, nil
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	account := &emaildomain.EmailAccount{ID: "a1", UserID: "u1", Provider: emaildomain.ProviderGmail, EmailAddress: "me@uni.edu"}

	plain := NewMailboxUsecase(nil, nil, 10, nil, &fakeProvider{name: "gmail"})
	if _, err := plain.Watch(ctx, account, "topic"); !errors.Is(err, emaildomain.ErrWatchUnsupported) {
		t.Errorf("err = %v, want ErrWatchUnsupported", err)
	}

	w := &watchingProvider{fakeProvider: fakeProvider{name: "gmail"}}
	uc := NewMailboxUsecase(nil, nil, 10, nil, w)
	historyID, err := uc.Watch(ctx, account, "projects/p/topics/gmail-updates")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if historyID != 42 || w.topic != "projects/p/topics/gmail-updates" {
		t.Errorf("historyID = %d topic = %q", historyID, w.topic)
	}
}
