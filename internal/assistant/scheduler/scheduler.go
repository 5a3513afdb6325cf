// Package scheduler runs the periodic sync, process and auto-send pass over
// every active mailbox.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"friendlymail-backend/internal/assistant/usecase"
	emaildomain "friendlymail-backend/internal/email/domain"
	emailusecase "friendlymail-backend/internal/email/usecase"
	"friendlymail-backend/pkg/metrics"

	"go.uber.org/zap"
)

// ErrOwnerBusy is returned by RunAccount when another run holds the owner.
var ErrOwnerBusy = errors.New("owner is already being processed")

type Options struct {
	Interval   time.Duration
	Workers    int
	BatchLimit int
	LockTTL    time.Duration
}

// RunSummary is what one pass over all owners did.
type RunSummary struct {
	Owners    int
	Succeeded int
	Failed    int
	Busy      int
	Synced    int
	Batch     usecase.BatchSummary
	AutoSent  int
}

func (s *RunSummary) add(r ownerResult) {
	switch {
	case r.busy:
		s.Busy++
	case r.err != nil:
		s.Failed++
	default:
		s.Succeeded++
	}
	s.Synced += r.synced
	s.Batch.Processed += r.batch.Processed
	s.Batch.Responses += r.batch.Responses
	s.Batch.Escalated += r.batch.Escalated
	s.Batch.Ignored += r.batch.Ignored
	s.Batch.Skipped += r.batch.Skipped
	s.Batch.Failed += r.batch.Failed
	s.Batch.AutoSendIDs = append(s.Batch.AutoSendIDs, r.batch.AutoSendIDs...)
	s.AutoSent += r.autoSent
}

type ownerResult struct {
	busy     bool
	err      error
	synced   int
	batch    usecase.BatchSummary
	autoSent int
}

// Scheduler drives auto-sync. Owners are fanned out to a bounded worker pool
// and each owner runs under its lock.
type Scheduler struct {
	mailbox   emailusecase.MailboxUsecase
	roles     usecase.RoleUsecase
	engine    usecase.DecisionEngine
	lifecycle usecase.ResponseLifecycle
	locker    usecase.Locker
	opts      Options
	log       *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func New(mailbox emailusecase.MailboxUsecase, roles usecase.RoleUsecase, engine usecase.DecisionEngine, lifecycle usecase.ResponseLifecycle, locker usecase.Locker, opts Options, log *zap.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		mailbox:   mailbox,
		roles:     roles,
		engine:    engine,
		lifecycle: lifecycle,
		locker:    locker,
		opts:      opts,
		log:       log.Named("scheduler"),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until Stop is
// called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting auto-sync scheduler",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("workers", s.opts.Workers))

	go func() {
		defer close(s.done)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-s.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.RunOnce(ctx)

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				s.log.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the running pass and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

// RunOnce performs one pass over every active account.
func (s *Scheduler) RunOnce(ctx context.Context) RunSummary {
	accounts, err := s.mailbox.ListActiveAccounts(ctx)
	if err != nil {
		s.log.Error("list active accounts", zap.Error(err))
		return RunSummary{}
	}
	return s.run(ctx, accounts)
}

// RunUser performs one pass over the active accounts of userID.
func (s *Scheduler) RunUser(ctx context.Context, userID string) (RunSummary, error) {
	accounts, err := s.mailbox.ListAccounts(ctx, userID)
	if err != nil {
		return RunSummary{}, err
	}
	active := accounts[:0]
	for _, a := range accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return s.run(ctx, active), nil
}

// RunAccount syncs and processes a single account, as when a push
// notification arrives for it.
func (s *Scheduler) RunAccount(ctx context.Context, account *emaildomain.EmailAccount) error {
	r := s.runOwner(ctx, account.UserID, []*emaildomain.EmailAccount{account})
	if r.busy {
		return ErrOwnerBusy
	}
	return r.err
}

func (s *Scheduler) run(ctx context.Context, accounts []*emaildomain.EmailAccount) RunSummary {
	start := time.Now()

	byOwner := make(map[string][]*emaildomain.EmailAccount)
	var owners []string
	for _, a := range accounts {
		if _, ok := byOwner[a.UserID]; !ok {
			owners = append(owners, a.UserID)
		}
		byOwner[a.UserID] = append(byOwner[a.UserID], a)
	}

	jobs := make(chan string)
	results := make(chan ownerResult)
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for owner := range jobs {
				results <- s.runOwner(ctx, owner, byOwner[owner])
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, owner := range owners {
			select {
			case jobs <- owner:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := RunSummary{Owners: len(owners)}
	for r := range results {
		summary.add(r)
	}

	s.log.Info("auto-sync pass finished",
		zap.Int("owners", summary.Owners),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("busy", summary.Busy),
		zap.Int("synced", summary.Synced),
		zap.Int("processed", summary.Batch.Processed),
		zap.Int("auto_sent", summary.AutoSent),
		zap.Duration("took", time.Since(start)))
	return summary
}

func (s *Scheduler) runOwner(ctx context.Context, userID string, accounts []*emaildomain.EmailAccount) (result ownerResult) {
	log := s.log.With(zap.String("user_id", userID))
	defer func() {
		switch {
		case result.busy:
			metrics.RecordOwnerRun("busy")
		case result.err != nil:
			metrics.RecordOwnerRun("error")
		default:
			metrics.RecordOwnerRun("ok")
		}
	}()

	unlock, ok, err := s.locker.TryLock(ctx, usecase.OwnerLockKey(userID), s.opts.LockTTL)
	if err != nil {
		log.Error("acquire owner lock", zap.Error(err))
		return ownerResult{err: err}
	}
	if !ok {
		log.Debug("owner busy, skipping")
		return ownerResult{busy: true}
	}
	defer unlock()

	var errs []error
	for _, account := range accounts {
		stored, err := s.mailbox.FetchNewMessages(ctx, account)
		if err != nil {
			log.Warn("sync failed", zap.String("account_id", account.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		result.synced += len(stored)
	}

	result.batch, err = s.engine.ProcessPending(ctx, userID, s.opts.BatchLimit)
	if err != nil {
		log.Error("process pending", zap.Error(err))
		errs = append(errs, err)
	}

	sent, err := s.autoSend(ctx, userID, result.batch.AutoSendIDs)
	if err != nil {
		errs = append(errs, err)
	}
	result.autoSent = sent
	result.err = errors.Join(errs...)
	return result
}

// autoSend approves the drafts this pass created under an auto-send role,
// provided the active role still allows it. Older pending drafts are left
// for review. A failed send leaves the draft approved for a later resend.
func (s *Scheduler) autoSend(ctx context.Context, userID string, draftIDs []string) (int, error) {
	if len(draftIDs) == 0 {
		return 0, nil
	}
	role, err := s.roles.GetActiveRole(ctx, userID)
	if err != nil || role == nil || !role.AutoSend {
		return 0, err
	}

	sent := 0
	for _, id := range draftIDs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if _, err := s.lifecycle.Approve(ctx, userID, id); err != nil {
			s.log.Warn("auto-send failed",
				zap.String("user_id", userID),
				zap.String("response_id", id),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
