package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	emaildomain "friendlymail-backend/internal/email/domain"

	"google.golang.org/api/gmail/v1"
)

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestBuildReply(t *testing.T) {
	raw, err := BuildReply(emaildomain.OutgoingMessage{
		From:               "prof@school.edu",
		To:                 "Student <student@school.edu>",
		Subject:            "Re: Midterm",
		Body:               "Hello there, the exam is on Friday.",
		InReplyToMessageID: "<abc@mail.gmail.com>",
	}, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildReply: %v", err)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got := msg.Header.Get("Subject"); got != "Re: Midterm" {
		t.Errorf("Subject = %q", got)
	}
	if got := msg.Header.Get("To"); !strings.Contains(got, "student@school.edu") {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("In-Reply-To"); got != "<abc@mail.gmail.com>" {
		t.Errorf("In-Reply-To = %q", got)
	}
	if got := msg.Header.Get("References"); got != "<abc@mail.gmail.com>" {
		t.Errorf("References = %q", got)
	}
	body, _ := io.ReadAll(msg.Body)
	if !strings.Contains(string(body), "the exam is on Friday.") {
		t.Errorf("body = %q", body)
	}
}

func TestConvertGmailMessageToEmail(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		InternalDate: 1767225600000,
		LabelIds:     []string{"INBOX", "IMPORTANT"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "When is the midterm?"},
				{Name: "From", Value: "Student <s@school.edu>"},
				{Name: "To", Value: "prof@school.edu"},
				{Name: "Message-Id", Value: "<m1@mail>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("exam date please")}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>exam date please</p>")}},
			},
		},
	}

	e := convertGmailMessageToEmail(msg)
	if e.ProviderID != "m1" || e.ThreadID != "t1" {
		t.Errorf("ids = %q/%q", e.ProviderID, e.ThreadID)
	}
	if e.BodyPlain != "exam date please" || e.BodyHTML != "<p>exam date please</p>" {
		t.Errorf("bodies = %q / %q", e.BodyPlain, e.BodyHTML)
	}
	if !e.IsRead || !e.IsImportant {
		t.Errorf("flags read=%v important=%v", e.IsRead, e.IsImportant)
	}
	if e.InternetMessageID != "<m1@mail>" {
		t.Errorf("InternetMessageID = %q", e.InternetMessageID)
	}
	if !e.ReceivedAt.Equal(time.UnixMilli(1767225600000)) {
		t.Errorf("ReceivedAt = %v", e.ReceivedAt)
	}
}

func newGmailTestServer(t *testing.T, sent *gmail.Message) *httptest.Server {
	t.Helper()
	messages := map[string]*gmail.Message{
		"new": {Id: "new", ThreadId: "t2", InternalDate: 2000, Payload: &gmail.MessagePart{
			MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("second")},
			Headers: []*gmail.MessagePartHeader{{Name: "Subject", Value: "B"}},
		}},
		"old": {Id: "old", ThreadId: "t1", InternalDate: 1000, Payload: &gmail.MessagePart{
			MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("first")},
			Headers: []*gmail.MessagePartHeader{{Name: "Subject", Value: "A"}},
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"invalid credentials"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		path := r.URL.Path
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(path, "/messages/send"):
			_ = json.NewDecoder(r.Body).Decode(sent)
			_, _ = w.Write([]byte(`{"id":"sent-1","threadId":"t1"}`))
		case strings.HasSuffix(path, "/users/me/messages"):
			_, _ = w.Write([]byte(`{"messages":[{"id":"new"},{"id":"old"}]}`))
		case strings.Contains(path, "/users/me/messages/"):
			id := path[strings.LastIndex(path, "/")+1:]
			_ = json.NewEncoder(w).Encode(messages[id])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestService_FetchRecentOldestFirst(t *testing.T) {
	srv := newGmailTestServer(t, &gmail.Message{})
	svc := NewService("id", "secret", nil).WithEndpoint(srv.URL + "/")

	emails, err := svc.FetchRecent(context.Background(), &emaildomain.EmailAccount{AccessToken: "access"}, 10, nil)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("got %d emails, want 2", len(emails))
	}
	if emails[0].ProviderID != "old" || emails[1].ProviderID != "new" {
		t.Errorf("order = %s,%s, want old,new", emails[0].ProviderID, emails[1].ProviderID)
	}
	if emails[0].BodyPlain != "first" {
		t.Errorf("BodyPlain = %q", emails[0].BodyPlain)
	}
}

func TestService_SendThreadsReply(t *testing.T) {
	var sent gmail.Message
	srv := newGmailTestServer(t, &sent)
	svc := NewService("id", "secret", nil).WithEndpoint(srv.URL + "/")

	id, err := svc.Send(context.Background(), &emaildomain.EmailAccount{AccessToken: "access", EmailAddress: "prof@school.edu"},
		emaildomain.OutgoingMessage{To: "s@school.edu", Subject: "Re: A", Body: "hi", ThreadID: "t1"}, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "sent-1" {
		t.Errorf("id = %q", id)
	}
	if sent.ThreadId != "t1" || sent.Raw == "" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestService_UnauthorizedIsTokenExpired(t *testing.T) {
	srv := newGmailTestServer(t, &gmail.Message{})
	svc := NewService("id", "secret", nil).WithEndpoint(srv.URL + "/")

	_, err := svc.FetchRecent(context.Background(), &emaildomain.EmailAccount{AccessToken: "wrong"}, 10, nil)
	if !errors.Is(err, emaildomain.ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}
