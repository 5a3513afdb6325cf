package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"friendlymail-backend/internal/assistant/domain"
	emaildomain "friendlymail-backend/internal/email/domain"
	"friendlymail-backend/internal/testutil"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewDB(t,
		&emaildomain.EmailAccount{}, &emaildomain.Email{},
		&domain.AIContext{}, &domain.Role{}, &domain.TemporalRule{},
		&domain.EmailIntent{}, &domain.AIResponse{},
	)
}

func countActive(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Role{}).Where("user_id = ? AND is_active = ?", userID, true).Count(&n).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	return n
}

func TestRoleRepository_CreateActiveDeactivatesSiblings(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	first := &domain.Role{UserID: "u1", Name: "Professor", IsActive: true}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := &domain.Role{UserID: "u1", Name: "Advisor", IsActive: true}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if n := countActive(t, db, "u1"); n != 1 {
		t.Fatalf("active roles = %d, want 1", n)
	}
	active, err := repo.FindActive(ctx, "u1")
	if err != nil || active == nil || active.ID != second.ID {
		t.Fatalf("FindActive = %+v, %v", active, err)
	}
	if first.ComplexityLevel != domain.ComplexitySimple {
		t.Errorf("ComplexityLevel default = %q", first.ComplexityLevel)
	}

	err = repo.Create(ctx, &domain.Role{UserID: "u1", Name: "Advisor"})
	if !errors.Is(err, domain.ErrRoleNameTaken) || !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("duplicate name err = %v", err)
	}
	// names are unique per owner only
	if err := repo.Create(ctx, &domain.Role{UserID: "u2", Name: "Advisor"}); err != nil {
		t.Fatalf("other owner same name: %v", err)
	}
}

func TestRoleRepository_CreateConflictKinds(t *testing.T) {
	db := newTestDB(t)
	repo := &roleRepository{db: db}
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.Role{UserID: "u1", Name: "Professor", IsActive: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// a second active role whose name is free lost an activation race
	err := repo.createConflict(ctx, &domain.Role{ID: "r2", UserID: "u1", Name: "Advisor", IsActive: true})
	if !errors.Is(err, domain.ErrActiveRoleConflict) || errors.Is(err, domain.ErrRoleNameTaken) {
		t.Errorf("active clash err = %v", err)
	}
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("active clash should be an integrity error: %v", err)
	}

	err = repo.createConflict(ctx, &domain.Role{ID: "r3", UserID: "u1", Name: "Professor", IsActive: true})
	if !errors.Is(err, domain.ErrRoleNameTaken) {
		t.Errorf("name clash err = %v", err)
	}
}

func TestRoleRepository_FindActiveNone(t *testing.T) {
	repo := NewRoleRepository(newTestDB(t))
	role, err := repo.FindActive(context.Background(), "nobody")
	if err != nil || role != nil {
		t.Fatalf("FindActive = %+v, %v; want nil, nil", role, err)
	}
}

func TestRoleRepository_ConcurrentActivation(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		role := &domain.Role{UserID: "u1", Name: fmt.Sprintf("role-%d", i)}
		if err := repo.Create(ctx, role); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, role.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- repo.Activate(ctx, "u1", id)
		}(ids[i%len(ids)])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && !errors.Is(err, domain.ErrIntegrity) {
			t.Errorf("Activate: %v", err)
		}
	}

	if n := countActive(t, db, "u1"); n != 1 {
		t.Fatalf("active roles after concurrent activation = %d, want 1", n)
	}
}

func TestRoleRepository_ActivateUnknown(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	role := &domain.Role{UserID: "u1", Name: "Professor"}
	if err := repo.Create(ctx, role); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Activate(ctx, "u2", role.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("activating someone else's role: %v", err)
	}
}

func TestRoleRepository_ListOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "newest", "active"} {
		role := &domain.Role{UserID: "u1", Name: name, IsActive: name == "active"}
		if err := repo.Create(ctx, role); err != nil {
			t.Fatalf("Create: %v", err)
		}
		updated := base.Add(time.Duration(i) * time.Hour)
		if name == "active" {
			updated = base.Add(-time.Hour)
		}
		db.Model(role).UpdateColumn("updated_at", updated)
	}

	roles, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	var got []string
	for _, r := range roles {
		got = append(got, r.Name)
	}
	want := []string{"active", "newest", "old"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRoleRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewRoleRepository(db)
	rules := NewRuleRepository(db)
	ctx := context.Background()

	only := &domain.Role{UserID: "u1", Name: "Professor", IsActive: true}
	if err := repo.Create(ctx, only); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, "u1", only.ID); !errors.Is(err, domain.ErrLastRole) {
		t.Fatalf("deleting last role: %v", err)
	}

	older := &domain.Role{UserID: "u1", Name: "TA"}
	newer := &domain.Role{UserID: "u1", Name: "Advisor"}
	for _, r := range []*domain.Role{older, newer} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	db.Model(older).UpdateColumn("updated_at", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	db.Model(newer).UpdateColumn("updated_at", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	roleID := only.ID
	rule := &domain.TemporalRule{RoleID: &roleID, Name: "midterm", StartDate: time.Now(), EndDate: time.Now()}
	if err := rules.Create(ctx, rule); err != nil {
		t.Fatalf("Create rule: %v", err)
	}

	if err := repo.Delete(ctx, "u1", only.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	active, _ := repo.FindActive(ctx, "u1")
	if active == nil || active.ID != newer.ID {
		t.Fatalf("successor = %+v, want most recently updated sibling", active)
	}
	if got, _ := rules.FindByID(ctx, rule.ID); got != nil {
		t.Error("rules of a deleted role must be removed")
	}

	// deleting an inactive role leaves activation alone
	if err := repo.Delete(ctx, "u1", older.ID); err != nil {
		t.Fatalf("Delete inactive: %v", err)
	}
	active, _ = repo.FindActive(ctx, "u1")
	if active == nil || active.ID != newer.ID {
		t.Fatal("active role changed after deleting an inactive one")
	}
}

func TestRuleRepository_FindEligible(t *testing.T) {
	db := newTestDB(t)
	roles := NewRoleRepository(db)
	repo := NewRuleRepository(db)
	ctx := context.Background()

	role := &domain.Role{UserID: "u1", Name: "Professor", IsActive: true}
	if err := roles.Create(ctx, role); err != nil {
		t.Fatalf("Create role: %v", err)
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	roleID := role.ID
	mk := func(name string, status domain.RuleStatus, prio int, start, end time.Time, created time.Time) {
		t.Helper()
		r := &domain.TemporalRule{RoleID: &roleID, Name: name, Status: status, Priority: prio, StartDate: start, EndDate: end, CreatedAt: created}
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create rule: %v", err)
		}
	}
	day := 24 * time.Hour
	mk("low", domain.RuleStatusActive, 1, now.Add(-day), now.Add(day), now.Add(-3*day))
	mk("high-old", domain.RuleStatusActive, 10, now.Add(-day), now.Add(day), now.Add(-2*day))
	mk("high-new", domain.RuleStatusActive, 10, now.Add(-day), now.Add(day), now.Add(-day))
	mk("expired-window", domain.RuleStatusActive, 50, now.Add(-3*day), now.Add(-day), now.Add(-day))
	mk("scheduled", domain.RuleStatusScheduled, 50, now.Add(-day), now.Add(day), now.Add(-day))

	got, err := repo.FindEligible(ctx, domain.ScopeFor(role), now)
	if err != nil {
		t.Fatalf("FindEligible: %v", err)
	}
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	want := []string{"high-new", "high-old", "low"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("eligible = %v, want %v", names, want)
	}

	var blank domain.TemporalRule
	if err := repo.Create(ctx, &domain.TemporalRule{RoleID: &roleID, Name: "defaults", StartDate: now, EndDate: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	db.Where("name = ?", "defaults").First(&blank)
	if blank.Status != domain.RuleStatusDraft || blank.Priority != 1 {
		t.Errorf("stored defaults = %q/%d", blank.Status, blank.Priority)
	}
}

func seedEmails(t *testing.T, db *gorm.DB, userID string, n int) (*emaildomain.EmailAccount, []*emaildomain.Email) {
	t.Helper()
	account := &emaildomain.EmailAccount{ID: "acct-" + userID, UserID: userID, Provider: emaildomain.ProviderGmail, EmailAddress: userID + "@uni.edu", IsActive: true}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Create account: %v", err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var emails []*emaildomain.Email
	for i := 0; i < n; i++ {
		e := &emaildomain.Email{
			ID:         fmt.Sprintf("%s-e%d", userID, i),
			AccountID:  account.ID,
			ProviderID: fmt.Sprintf("p%d", i),
			Subject:    fmt.Sprintf("message %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Microsecond),
		}
		if err := db.Create(e).Error; err != nil {
			t.Fatalf("Create email: %v", err)
		}
		emails = append(emails, e)
	}
	return account, emails
}

func TestIntentRepository_OneOutcomePerEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()
	_, emails := seedEmails(t, db, "u1", 1)

	first := &domain.EmailIntent{EmailID: emails[0].ID, IntentType: domain.IntentExamInfo, Decision: domain.DecisionRespond, ConfidenceScore: 0.9}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := repo.Create(ctx, &domain.EmailIntent{EmailID: emails[0].ID, IntentType: domain.IntentSpam, Decision: domain.DecisionIgnore})
	if !errors.Is(err, domain.ErrOutcomeExists) || !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("second outcome err = %v, want ErrOutcomeExists", err)
	}

	stored, err := repo.FindByEmailID(ctx, emails[0].ID)
	if err != nil || stored == nil || stored.Decision != domain.DecisionRespond {
		t.Fatalf("first write must win: %+v, %v", stored, err)
	}
}

func TestIntentRepository_FindUnprocessed(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()
	_, emails := seedEmails(t, db, "u1", 4)
	seedEmails(t, db, "u2", 2)

	if err := repo.Create(ctx, &domain.EmailIntent{EmailID: emails[1].ID, IntentType: domain.IntentSpam, Decision: domain.DecisionIgnore}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindUnprocessed(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("FindUnprocessed: %v", err)
	}
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	want := []string{"u1-e0", "u1-e2", "u1-e3"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("unprocessed = %v, want %v", ids, want)
	}

	limited, _ := repo.FindUnprocessed(ctx, "u1", 2)
	if len(limited) != 2 || limited[0].ID != "u1-e0" {
		t.Fatalf("limit not applied in order: %v", limited)
	}

	counts, err := repo.CountByDecision(ctx, "u1")
	if err != nil || counts[domain.DecisionIgnore] != 1 {
		t.Fatalf("CountByDecision = %v, %v", counts, err)
	}
}

func TestResponseRepository_TransitionAndQueries(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	repo := NewResponseRepository(db)
	ctx := context.Background()
	_, emails := seedEmails(t, db, "u1", 2)

	var responses []*domain.AIResponse
	for _, e := range emails {
		intent := &domain.EmailIntent{EmailID: e.ID, IntentType: domain.IntentExamInfo, Decision: domain.DecisionRespond}
		if err := intents.Create(ctx, intent); err != nil {
			t.Fatalf("Create intent: %v", err)
		}
		resp := &domain.AIResponse{EmailIntentID: intent.ID, ResponseText: "hello", ResponseSubject: "Re: " + e.Subject, Status: domain.StatusPendingApproval}
		if err := repo.Create(ctx, resp); err != nil {
			t.Fatalf("Create response: %v", err)
		}
		responses = append(responses, resp)
	}

	dup := &domain.AIResponse{EmailIntentID: responses[0].EmailIntentID, ResponseText: "again", Status: domain.StatusPendingApproval}
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("second draft for one outcome: %v", err)
	}

	ok, err := repo.Transition(ctx, responses[0].ID, []domain.ResponseStatus{domain.StatusPendingApproval}, map[string]interface{}{"status": domain.StatusApproved})
	if err != nil || !ok {
		t.Fatalf("Transition = %v, %v", ok, err)
	}
	ok, err = repo.Transition(ctx, responses[0].ID, []domain.ResponseStatus{domain.StatusPendingApproval}, map[string]interface{}{"status": domain.StatusRejected})
	if err != nil || ok {
		t.Fatalf("stale transition applied: %v, %v", ok, err)
	}

	loaded, err := repo.FindByID(ctx, responses[0].ID)
	if err != nil || loaded == nil {
		t.Fatalf("FindByID: %v", err)
	}
	if loaded.Status != domain.StatusApproved {
		t.Errorf("status = %q", loaded.Status)
	}
	if loaded.EmailIntent == nil || loaded.EmailIntent.Email == nil || loaded.EmailIntent.Email.Account == nil {
		t.Fatal("FindByID should preload intent, email and account")
	}
	if loaded.EmailIntent.Email.Account.UserID != "u1" {
		t.Errorf("owner = %q", loaded.EmailIntent.Email.Account.UserID)
	}

	pending, total, err := repo.ListByUser(ctx, "u1", domain.StatusPendingApproval, 10, 0)
	if err != nil || total != 1 || len(pending) != 1 || pending[0].ID != responses[1].ID {
		t.Fatalf("ListByUser pending = %v (total %d), %v", pending, total, err)
	}
	if others, total, _ := repo.ListByUser(ctx, "u2", "", 10, 0); len(others) != 0 || total != 0 {
		t.Error("another user must not see u1's responses")
	}

	counts, err := repo.CountByStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.StatusApproved] != 1 || counts[domain.StatusPendingApproval] != 1 || counts[domain.StatusSent] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Error("gorm.ErrDuplicatedKey should be recognised")
	}
	if !isUniqueViolation(errors.New("UNIQUE constraint failed: email_intents.email_id")) {
		t.Error("sqlite message should be recognised")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Error("unrelated error misclassified")
	}
}
