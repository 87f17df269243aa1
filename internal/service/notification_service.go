package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/events"
)

// AssignmentNotice is what an assignee is told about new work.
type AssignmentNotice struct {
	EventID            string    `json:"eventId"`
	IssueID            string    `json:"issueId"`
	TicketNumber       string    `json:"ticketNumber"`
	WardID             string    `json:"wardId"`
	Priority           string    `json:"priority"`
	Status             string    `json:"status"`
	AssigneeID         string    `json:"assigneeId"`
	AssigneeName       string    `json:"assigneeName"`
	AssigneeEmail      string    `json:"assigneeEmail"`
	PreviousAssigneeID *string   `json:"previousAssigneeId,omitempty"`
	Reassigned         bool      `json:"reassigned"`
	From               string    `json:"from"`
	SentAt             time.Time `json:"sentAt"`
}

// Sender delivers one notice.
type Sender interface {
	Send(ctx context.Context, notice AssignmentNotice) error
}

// WebhookSender posts notices as JSON to a fixed URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender returns nil when url is empty.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

// Send posts notice to the webhook.
func (w *WebhookSender) Send(ctx context.Context, notice AssignmentNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// logSender only logs; used when no webhook is configured.
type logSender struct {
	logger *zap.Logger
}

func (l logSender) Send(_ context.Context, notice AssignmentNotice) error {
	l.logger.Info("assignment notice",
		zap.String("issue_id", notice.IssueID),
		zap.String("assignee_id", notice.AssigneeID),
		zap.String("assignee_email", notice.AssigneeEmail))
	return nil
}

// NotificationService tells assignees about new work. Delivery runs in
// the background; failures are logged and never reach the caller.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     Sender
	limiter    *rate.Limiter
	logger     *zap.Logger
	cfg        config.NotificationConfig
	clock      Clock
	inflight   sync.WaitGroup
}

// NewNotificationService creates the service. A nil sender falls back to
// the configured webhook, or to logging when none is set.
func NewNotificationService(dispatcher events.Dispatcher, sender Sender, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	logger = loggerOrNop(logger)
	if sender == nil {
		if hook := NewWebhookSender(cfg.WebhookURL, cfg.Timeout()); hook != nil {
			sender = hook
		} else {
			sender = logSender{logger: logger}
		}
	}
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		cfg:        cfg,
		clock:      SystemClock(),
	}
}

// RegisterHandlers subscribes to assignment events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueAssigned, n.handleAssigned)
	n.dispatcher.Subscribe(events.EventIssueReassigned, n.handleAssigned)
}

func (n *NotificationService) handleAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueAssignedPayload)
	if !ok {
		n.logger.Warn("unexpected assignment payload", zap.String("event_id", event.ID))
		return nil
	}
	n.NotifyAssignment(ctx, AssignmentNotice{
		EventID:            event.ID,
		IssueID:            event.IssueID,
		TicketNumber:       payload.TicketNumber,
		WardID:             payload.WardID,
		Priority:           string(payload.Priority),
		Status:             string(payload.Status),
		AssigneeID:         payload.AssigneeID,
		AssigneeName:       payload.AssigneeName,
		AssigneeEmail:      payload.AssigneeEmail,
		PreviousAssigneeID: payload.PreviousAssigneeID,
		Reassigned:         event.Type == events.EventIssueReassigned,
	})
	return nil
}

// NotifyAssignment queues delivery of notice and returns at once. The
// delivery is bounded by the configured timeout and outlives ctx.
func (n *NotificationService) NotifyAssignment(ctx context.Context, notice AssignmentNotice) {
	notice.From = n.cfg.EmailFrom
	notice.SentAt = n.clock.Now()
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.Timeout())
		defer cancel()
		if err := n.limiter.Wait(deliveryCtx); err != nil {
			n.logger.Warn("assignment notice dropped",
				zap.String("issue_id", notice.IssueID),
				zap.Error(err))
			return
		}
		if err := n.sender.Send(deliveryCtx, notice); err != nil {
			n.logger.Warn("assignment notice failed",
				zap.String("issue_id", notice.IssueID),
				zap.String("assignee_id", notice.AssigneeID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until queued deliveries finish.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}
