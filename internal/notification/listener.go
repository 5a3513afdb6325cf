// Package notification connects the assistant to push channels: Gmail watch
// notifications arriving over Pub/Sub and device alerts sent through FCM.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// AccountFinder resolves the mailbox a notification names.
type AccountFinder interface {
	FindAccountByAddress(ctx context.Context, provider emaildomain.Provider, address string) (*emaildomain.EmailAccount, error)
}

// AccountRunner syncs and processes one mailbox.
type AccountRunner interface {
	RunAccount(ctx context.Context, account *emaildomain.EmailAccount) error
}

// MailboxWatcher registers mailboxes for Gmail push notifications.
type MailboxWatcher interface {
	ListActiveAccounts(ctx context.Context) ([]*emaildomain.EmailAccount, error)
	Watch(ctx context.Context, account *emaildomain.EmailAccount, topic string) (uint64, error)
}

type Listener struct {
	pubsubClient *pubsub.Client
	accounts     AccountFinder
	runner       AccountRunner
	projectID    string
	topicName    string
	subName      string
	log          *zap.Logger

	mu sync.Mutex
	// lastHistoryID per account, notifications at or below it are duplicates
	lastHistoryID map[string]uint64
}

func NewListener(ctx context.Context, projectID, topicName, subName, credentialsFile string, accounts AccountFinder, runner AccountRunner, log *zap.Logger) (*Listener, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	l := newListener(accounts, runner, log)
	l.pubsubClient = client
	l.projectID = projectID
	l.topicName = topicName
	l.subName = subName
	return l, nil
}

func newListener(accounts AccountFinder, runner AccountRunner, log *zap.Logger) *Listener {
	return &Listener{
		accounts:      accounts,
		runner:        runner,
		log:           log.Named("pubsub"),
		lastHistoryID: make(map[string]uint64),
	}
}

// Start blocks receiving messages until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	sub, err := l.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	l.log.Info("listening for gmail notifications", zap.String("subscription", l.subName))
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		l.handleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// WatchAccounts renews the Gmail watch of every active Gmail account and
// records the returned history id as already seen. It returns the number of
// mailboxes watched.
func (l *Listener) WatchAccounts(ctx context.Context, watcher MailboxWatcher) (int, error) {
	accounts, err := watcher.ListActiveAccounts(ctx)
	if err != nil {
		return 0, err
	}
	topic := fmt.Sprintf("projects/%s/topics/%s", l.projectID, l.topicName)

	watched := 0
	for _, account := range accounts {
		if account.Provider != emaildomain.ProviderGmail {
			continue
		}
		historyID, err := watcher.Watch(ctx, account, topic)
		if err != nil {
			l.log.Warn("watch mailbox", zap.String("account_id", account.ID), zap.Error(err))
			continue
		}
		l.markSeen(account.ID, historyID)
		watched++
	}
	return watched, nil
}

func (l *Listener) Close() error {
	return l.pubsubClient.Close()
}

func (l *Listener) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := l.pubsubClient.Subscription(l.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := l.pubsubClient.Topic(l.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", l.topicName)
	}

	sub, err = l.pubsubClient.CreateSubscription(ctx, l.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	l.log.Info("created subscription", zap.String("subscription", l.subName))
	return sub, nil
}

// handleMessage triggers a run for the notified account. Duplicate and
// malformed messages are dropped; all messages are acked.
func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		l.log.Warn("malformed notification", zap.Error(err))
		return
	}

	account, err := l.accounts.FindAccountByAddress(ctx, emaildomain.ProviderGmail, n.EmailAddress)
	if err != nil {
		l.log.Error("find account", zap.String("address", n.EmailAddress), zap.Error(err))
		return
	}
	if account == nil || !account.IsActive {
		l.log.Debug("no active account for notification", zap.String("address", n.EmailAddress))
		return
	}

	if !l.markSeen(account.ID, n.HistoryID) {
		l.log.Debug("duplicate notification",
			zap.String("account_id", account.ID),
			zap.Uint64("history_id", n.HistoryID))
		return
	}

	if err := l.runner.RunAccount(ctx, account); err != nil {
		l.log.Warn("run account after notification", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (l *Listener) markSeen(accountID string, historyID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHistoryID[accountID]; ok && historyID <= last {
		return false
	}
	l.lastHistoryID[accountID] = historyID
	return true
}
