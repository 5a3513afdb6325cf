package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/usecase"
	emaildomain "friendlymail-backend/internal/email/domain"
	emailusecase "friendlymail-backend/internal/email/usecase"
)

type fakeMailbox struct {
	emailusecase.MailboxUsecase
	accounts []*emaildomain.EmailAccount
	failSync map[string]bool

	mu     sync.Mutex
	synced []string
}

func (f *fakeMailbox) ListActiveAccounts(context.Context) ([]*emaildomain.EmailAccount, error) {
	return f.accounts, nil
}

func (f *fakeMailbox) ListAccounts(_ context.Context, userID string) ([]*emaildomain.EmailAccount, error) {
	var out []*emaildomain.EmailAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeMailbox) FetchNewMessages(_ context.Context, account *emaildomain.EmailAccount) ([]*emaildomain.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, account.ID)
	if f.failSync[account.ID] {
		return nil, errors.New("provider down")
	}
	return []*emaildomain.Email{{ID: account.ID + "-m1"}}, nil
}

type fakeEngine struct {
	usecase.DecisionEngine
	drafted map[string][]string

	mu    sync.Mutex
	users []string
	ran   chan struct{}
}

func (f *fakeEngine) ProcessPending(_ context.Context, userID string, limit int) (usecase.BatchSummary, error) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return usecase.BatchSummary{Processed: 1, Responses: 1, AutoSendIDs: f.drafted[userID]}, nil
}

type fakeRoles struct {
	usecase.RoleUsecase
	autoSend map[string]bool
}

func (f fakeRoles) GetActiveRole(_ context.Context, userID string) (*domain.Role, error) {
	return &domain.Role{ID: "role-" + userID, UserID: userID, AutoSend: f.autoSend[userID]}, nil
}

type fakeLifecycle struct {
	usecase.ResponseLifecycle
	failing map[string]bool

	mu       sync.Mutex
	approved []string
}

func (f *fakeLifecycle) Approve(_ context.Context, _, id string) (*domain.AIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, id)
	if f.failing[id] {
		return &domain.AIResponse{ID: id, Status: domain.StatusApproved}, domain.ErrDeliveryFailed
	}
	return &domain.AIResponse{ID: id, Status: domain.StatusSent}, nil
}

func accounts() []*emaildomain.EmailAccount {
	return []*emaildomain.EmailAccount{
		{ID: "a1", UserID: "u1", IsActive: true},
		{ID: "a2", UserID: "u1", IsActive: true},
		{ID: "a3", UserID: "u2", IsActive: true},
		{ID: "a4", UserID: "u3", IsActive: true},
	}
}

func TestRunOnce(t *testing.T) {
	mailbox := &fakeMailbox{accounts: accounts(), failSync: map[string]bool{"a4": true}}
	engine := &fakeEngine{drafted: map[string][]string{
		"u1": {"d1", "d2"},
		"u2": {"d3"},
	}}
	lifecycle := &fakeLifecycle{failing: map[string]bool{"d2": true}}
	roles := fakeRoles{autoSend: map[string]bool{"u1": true}}

	s := New(mailbox, roles, engine, lifecycle, usecase.NewLocalLocker(), Options{Workers: 2, BatchLimit: 5, LockTTL: time.Minute}, nil)
	summary := s.RunOnce(context.Background())

	if summary.Owners != 3 {
		t.Errorf("Owners = %d, want 3", summary.Owners)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("Succeeded/Failed = %d/%d, want 2/1", summary.Succeeded, summary.Failed)
	}
	if summary.Synced != 3 {
		t.Errorf("Synced = %d, want 3", summary.Synced)
	}
	if summary.Batch.Processed != 3 {
		t.Errorf("Processed = %d, want 3 (one batch per owner)", summary.Batch.Processed)
	}
	// only u1 auto-sends, d2 fails delivery and stays approved
	if summary.AutoSent != 1 {
		t.Errorf("AutoSent = %d, want 1", summary.AutoSent)
	}
	sort.Strings(lifecycle.approved)
	if len(lifecycle.approved) != 2 || lifecycle.approved[0] != "d1" || lifecycle.approved[1] != "d2" {
		t.Errorf("approved = %v, want [d1 d2]", lifecycle.approved)
	}

	sort.Strings(engine.users)
	if len(engine.users) != 3 || engine.users[0] != "u1" || engine.users[2] != "u3" {
		t.Errorf("processed users = %v", engine.users)
	}
}

func TestAutoSendOnlyDraftsFromThisPass(t *testing.T) {
	mailbox := &fakeMailbox{accounts: accounts()[:1]}
	// drafts still pending from earlier passes are not reported by the batch
	// and must not be approved; only "fresh" was drafted now
	engine := &fakeEngine{drafted: map[string][]string{"u1": {"fresh"}}}
	lifecycle := &fakeLifecycle{}
	roles := fakeRoles{autoSend: map[string]bool{"u1": true}}

	s := New(mailbox, roles, engine, lifecycle, usecase.NewLocalLocker(), Options{}, nil)
	summary := s.RunOnce(context.Background())

	if summary.AutoSent != 1 {
		t.Errorf("AutoSent = %d, want 1", summary.AutoSent)
	}
	if len(lifecycle.approved) != 1 || lifecycle.approved[0] != "fresh" {
		t.Errorf("approved = %v, want [fresh]", lifecycle.approved)
	}
}

func TestAutoSendSkippedWhenRoleNoLongerAllows(t *testing.T) {
	mailbox := &fakeMailbox{accounts: accounts()[:1]}
	engine := &fakeEngine{drafted: map[string][]string{"u1": {"fresh"}}}
	lifecycle := &fakeLifecycle{}

	s := New(mailbox, fakeRoles{}, engine, lifecycle, usecase.NewLocalLocker(), Options{}, nil)
	if summary := s.RunOnce(context.Background()); summary.AutoSent != 0 {
		t.Errorf("AutoSent = %d, want 0", summary.AutoSent)
	}
	if len(lifecycle.approved) != 0 {
		t.Errorf("approved = %v, want none", lifecycle.approved)
	}
}

func TestRunSkipsBusyOwner(t *testing.T) {
	mailbox := &fakeMailbox{accounts: accounts()}
	engine := &fakeEngine{}
	locker := usecase.NewLocalLocker()
	unlock, ok, _ := locker.TryLock(context.Background(), usecase.OwnerLockKey("u2"), time.Minute)
	if !ok {
		t.Fatal("TryLock failed")
	}
	defer unlock()

	s := New(mailbox, fakeRoles{}, engine, &fakeLifecycle{}, locker, Options{Workers: 3}, nil)
	summary := s.RunOnce(context.Background())
	if summary.Busy != 1 {
		t.Errorf("Busy = %d, want 1", summary.Busy)
	}
	for _, id := range mailbox.synced {
		if id == "a3" {
			t.Error("busy owner's account was synced")
		}
	}

	err := s.RunAccount(context.Background(), &emaildomain.EmailAccount{ID: "a3", UserID: "u2"})
	if !errors.Is(err, ErrOwnerBusy) {
		t.Errorf("RunAccount err = %v, want ErrOwnerBusy", err)
	}
}

func TestRunUserOnlyActiveAccounts(t *testing.T) {
	accs := accounts()
	accs[1].IsActive = false
	mailbox := &fakeMailbox{accounts: accs}

	s := New(mailbox, fakeRoles{}, &fakeEngine{}, &fakeLifecycle{}, usecase.NewLocalLocker(), Options{}, nil)
	summary, err := s.RunUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunUser: %v", err)
	}
	if summary.Owners != 1 || summary.Synced != 1 {
		t.Errorf("summary = %+v, want one owner with one synced account", summary)
	}
	if len(mailbox.synced) != 1 || mailbox.synced[0] != "a1" {
		t.Errorf("synced = %v, want [a1]", mailbox.synced)
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	engine := &fakeEngine{ran: make(chan struct{}, 1)}
	mailbox := &fakeMailbox{accounts: accounts()[:1]}
	s := New(mailbox, fakeRoles{}, engine, &fakeLifecycle{}, usecase.NewLocalLocker(), Options{Interval: time.Hour}, nil)

	s.Start(context.Background())
	select {
	case <-engine.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not run at start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	// second Stop is a no-op
	s.Stop()
}
