package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
)

type stubSender struct {
	mu      sync.Mutex
	notices []AssignmentNotice
	err     error
}

func (s *stubSender) Send(_ context.Context, notice AssignmentNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
	return s.err
}

func (s *stubSender) sent() []AssignmentNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AssignmentNotice(nil), s.notices...)
}

func TestAssignmentNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	sender := &stubSender{}
	notifications := NewNotificationService(f.dispatcher, sender, zap.NewNop(), config.NotificationConfig{EmailFrom: "ops@city.example"})
	notifications.RegisterHandlers()

	issue := f.assigned(t, f.worker1)
	if _, err := f.assignments.Reassign(context.Background(), f.officer, issue.ID, f.worker1.ID, f.worker2.ID); err != nil {
		t.Fatal(err)
	}
	notifications.Wait()

	got := sender.sent()
	if len(got) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(got))
	}
	byAssignee := map[string]AssignmentNotice{}
	for _, n := range got {
		byAssignee[n.AssigneeID] = n
	}
	first, second := byAssignee[f.worker1.ID], byAssignee[f.worker2.ID]
	if first.Reassigned || first.TicketNumber != issue.TicketNumber || first.From != "ops@city.example" {
		t.Fatalf("unexpected assignment notice %+v", first)
	}
	if !second.Reassigned || second.PreviousAssigneeID == nil || *second.PreviousAssigneeID != f.worker1.ID {
		t.Fatalf("unexpected reassignment notice %+v", second)
	}
}

func TestNotificationFailureDoesNotFailAssignment(t *testing.T) {
	f := newFixture(t)
	sender := &stubSender{err: errors.New("smtp down")}
	notifications := NewNotificationService(f.dispatcher, sender, zap.NewNop(), config.NotificationConfig{})
	notifications.RegisterHandlers()

	issue := f.report(t, "w1", "HIGH")
	assigned, err := f.lifecycle.Assign(context.Background(), f.admin, issue.ID, f.worker1.ID)
	if err != nil {
		t.Fatalf("assignment failed because of notification: %v", err)
	}
	notifications.Wait()

	if len(sender.sent()) != 1 {
		t.Fatal("notification was not attempted")
	}
	if !assigned.IsAssignedTo(f.worker1.ID) {
		t.Fatal("assignment not applied")
	}
}

func TestWebhookSender(t *testing.T) {
	if NewWebhookSender("", 0) != nil {
		t.Fatal("empty url should disable the webhook")
	}

	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhookSender(srv.URL, 0)
	if err := hook.Send(context.Background(), AssignmentNotice{IssueID: "i1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := received.Load(); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	if err := NewWebhookSender(failing.URL, 0).Send(context.Background(), AssignmentNotice{}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}
