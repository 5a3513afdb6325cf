package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	"friendlymail-backend/internal/assistant/repository"
	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/internal/testutil"
	"friendlymail-backend/pkg/ai"

	"gorm.io/gorm"
)

// fakeLLM answers classification (JSON mode) and generation requests
// separately and counts calls.
type fakeLLM struct {
	mu            sync.Mutex
	classifyReply string
	classifyErr   error
	generateReply string
	generateErr   error
	classifyCalls int
	generateCalls int
	lastClassify  ai.CompletionRequest
	lastGenerate  ai.CompletionRequest
}

var _ ai.Completer = (*fakeLLM)(nil)

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.JSONMode {
		f.classifyCalls++
		f.lastClassify = req
		return f.classifyReply, f.classifyErr
	}
	f.generateCalls++
	f.lastGenerate = req
	return f.generateReply, f.generateErr
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []emaildomain.OutgoingMessage
}

func (s *fakeSender) Deliver(_ context.Context, _ *emaildomain.EmailAccount, msg emaildomain.OutgoingMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("provider-%d", len(s.sent)), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []EventKind
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type accountLookup struct{ db *gorm.DB }

func (a accountLookup) GetAccount(ctx context.Context, id string) (*emaildomain.EmailAccount, error) {
	var account emaildomain.EmailAccount
	if err := a.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	llm       *fakeLLM
	sender    *fakeSender
	notifier  *recordingNotifier
	roles     RoleUsecase
	roleRepo  repository.RoleRepository
	rules     repository.RuleRepository
	intents   repository.IntentRepository
	responses repository.ResponseRepository
	engine    DecisionEngine
	lifecycle ResponseLifecycle
	account   *emaildomain.EmailAccount
	seq       int
}

func newFixture(t *testing.T, opts EngineOptions) *fixture {
	t.Helper()
	db := testutil.NewDB(t,
		&emaildomain.EmailAccount{}, &emaildomain.Email{},
		&domain.AIContext{}, &domain.Role{}, &domain.TemporalRule{},
		&domain.EmailIntent{}, &domain.AIResponse{},
	)
	f := &fixture{
		t:         t,
		db:        db,
		llm:       &fakeLLM{generateReply: "Hello,\n\nThe midterm is on March 20.\n\nProf. Smith"},
		sender:    &fakeSender{},
		notifier:  &recordingNotifier{},
		roleRepo:  repository.NewRoleRepository(db),
		rules:     repository.NewRuleRepository(db),
		intents:   repository.NewIntentRepository(db),
		responses: repository.NewResponseRepository(db),
	}
	f.roles = NewRoleUsecase(f.roleRepo, repository.NewContextRepository(db), nil)
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	f.engine = NewDecisionEngine(
		f.roles,
		accountLookup{db: db},
		f.intents,
		f.responses,
		NewClassifier(f.llm, time.Second, nil),
		NewRuleMatcher(f.rules),
		NewGenerator(f.llm, time.Second, nil),
		f.notifier,
		opts,
		nil,
	)
	f.lifecycle = NewResponseLifecycle(f.responses, f.intents, f.sender, f.notifier, time.Second, nil)

	f.account = &emaildomain.EmailAccount{ID: "acct-1", UserID: "u1", Provider: emaildomain.ProviderGmail, EmailAddress: "prof@school.edu", IsActive: true}
	if err := db.Create(f.account).Error; err != nil {
		t.Fatalf("Create account: %v", err)
	}
	return f
}

func (f *fixture) role(r *domain.Role) *domain.Role {
	f.t.Helper()
	if r.UserID == "" {
		r.UserID = "u1"
	}
	if r.CanRespondTopics == "" {
		r.CanRespondTopics = "exam dates"
	}
	if err := f.roles.CreateRole(context.Background(), r); err != nil {
		f.t.Fatalf("CreateRole: %v", err)
	}
	return r
}

func (f *fixture) rule(role *domain.Role, name, keywords string, priority int) *domain.TemporalRule {
	f.t.Helper()
	roleID := role.ID
	r := &domain.TemporalRule{
		RoleID:           &roleID,
		Name:             name,
		Keywords:         keywords,
		ResponseTemplate: "template for " + name,
		Status:           domain.RuleStatusActive,
		Priority:         priority,
		StartDate:        testNow.Add(-24 * time.Hour),
		EndDate:          testNow.Add(24 * time.Hour),
	}
	if err := f.rules.Create(context.Background(), r); err != nil {
		f.t.Fatalf("Create rule: %v", err)
	}
	return r
}

func (f *fixture) email(sender, subject, body string) *emaildomain.Email {
	f.t.Helper()
	f.seq++
	e := &emaildomain.Email{
		ID:         fmt.Sprintf("email-%d", f.seq),
		AccountID:  f.account.ID,
		ProviderID: fmt.Sprintf("p-%d", f.seq),
		ThreadID:   fmt.Sprintf("t-%d", f.seq),
		Sender:     sender,
		Subject:    subject,
		BodyPlain:  body,
		ReceivedAt: testNow.Add(-time.Hour),
		CreatedAt:  testNow.Add(time.Duration(f.seq) * time.Microsecond),
	}
	if err := f.db.Create(e).Error; err != nil {
		f.t.Fatalf("Create email: %v", err)
	}
	return e
}

func (f *fixture) countResponses() int64 {
	f.t.Helper()
	var n int64
	f.db.Model(&domain.AIResponse{}).Count(&n)
	return n
}

func (f *fixture) countIntents() int64 {
	f.t.Helper()
	var n int64
	f.db.Model(&domain.EmailIntent{}).Count(&n)
	return n
}
