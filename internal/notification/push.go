package notification

import (
	"context"
	"fmt"
	"time"

	authrepo "friendlymail-backend/internal/auth/repository"
	"friendlymail-backend/internal/assistant/usecase"
	"friendlymail-backend/pkg/fcm"

	"go.uber.org/zap"
)

// Pusher is satisfied by *fcm.Client.
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// PushNotifier alerts a user's devices about drafts awaiting approval,
// escalated mail and failed sends.
type PushNotifier struct {
	pusher  Pusher
	fcmRepo authrepo.FCMTokenRepository
	timeout time.Duration
	log     *zap.Logger
}

var _ usecase.Notifier = (*PushNotifier)(nil)

func NewPushNotifier(pusher Pusher, fcmRepo authrepo.FCMTokenRepository, log *zap.Logger) *PushNotifier {
	return &PushNotifier{
		pusher:  pusher,
		fcmRepo: fcmRepo,
		timeout: 15 * time.Second,
		log:     log.Named("push"),
	}
}

// Notify sends in the background and returns immediately.
func (n *PushNotifier) Notify(ctx context.Context, event usecase.Event) {
	go n.push(context.WithoutCancel(ctx), event)
}

func (n *PushNotifier) push(ctx context.Context, event usecase.Event) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	tokens, err := n.fcmRepo.GetTokensByUserID(ctx, event.UserID)
	if err != nil {
		n.log.Warn("load device tokens", zap.String("user_id", event.UserID), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}
	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	stale, err := n.pusher.SendToDevices(ctx, tokenStrings, buildNotification(event))
	if err != nil {
		n.log.Warn("push failed", zap.String("user_id", event.UserID), zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}
	for _, token := range stale {
		if err := n.fcmRepo.DeleteToken(ctx, token); err != nil {
			n.log.Warn("delete stale token", zap.Error(err))
		}
	}
}

func buildNotification(event usecase.Event) fcm.NotificationData {
	subject := event.Subject
	if r := []rune(subject); len(r) > 100 {
		subject = string(r[:97]) + "..."
	}
	if subject == "" {
		subject = "(no subject)"
	}

	data := map[string]string{
		"type":        string(event.Kind),
		"email_id":    event.EmailID,
		"response_id": event.ResponseID,
	}

	switch event.Kind {
	case usecase.EventDraftPending:
		return fcm.NotificationData{
			Title:       "Reply ready for review",
			Body:        subject,
			Data:        data,
			ClickAction: fmt.Sprintf("/assistant/responses/%s", event.ResponseID),
		}
	case usecase.EventEscalated:
		body := subject
		if event.Reason != "" {
			body = fmt.Sprintf("%s: %s", subject, event.Reason)
		}
		return fcm.NotificationData{
			Title:       "Email needs your attention",
			Body:        body,
			Data:        data,
			ClickAction: fmt.Sprintf("/inbox/%s", event.EmailID),
		}
	default:
		return fcm.NotificationData{
			Title:       "Reply could not be sent",
			Body:        subject,
			Data:        data,
			ClickAction: fmt.Sprintf("/assistant/responses/%s", event.ResponseID),
		}
	}
}
