package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification mirrors the reward/event payload shape used across the
// pack's notification dispatchers: a source+reason tag plus free-form
// metadata, so Notifier can template the right message without the
// core knowing anything about delivery channels.
type Notification struct {
	UserID   string         `json:"userId"`
	Source   string         `json:"source"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Notifier is the external notification dispatcher. Every call site in
// the core treats it as advisory: failures are logged and swallowed,
// never propagated as request errors, since winner notifications are
// fire-and-forget.
type Notifier interface {
	HealthChecker
	Send(ctx context.Context, n Notification) error
}

type notifierClient struct {
	baseURL string
	client  *http.Client
	auth    string
	logger  zerolog.Logger
}

func NewNotifierClient(baseURL string, pool *ConnectionPool, timeout time.Duration, serviceAuth string, logger zerolog.Logger) Notifier {
	return &notifierClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  pool.Client("notifier", timeout),
		auth:    serviceAuth,
		logger:  logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *notifierClient) Name() string { return "notifier" }

func (n *notifierClient) HealthCheck(ctx context.Context) error {
	return doHealthGET(ctx, n.client, n.auth, n.baseURL+"/healthz")
}

func (n *notifierClient) Send(ctx context.Context, notif Notification) error {
	body, _ := json.Marshal(notif)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/internal/notifications", newReader(body))
	if err != nil {
		return err
	}
	setCommonHeaders(req, n.auth)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("userId", notif.UserID).Str("reason", notif.Reason).Msg("notifier send failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("notifier send: status %d", resp.StatusCode)
		n.logger.Warn().Err(err).Str("userId", notif.UserID).Msg("notifier send failed")
		return err
	}
	return nil
}

// SendBestEffort calls Send and logs-only on error, for call sites that
// must never fail the parent operation over a notification hiccup.
func SendBestEffort(ctx context.Context, n Notifier, notif Notification, logger zerolog.Logger) {
	if err := n.Send(ctx, notif); err != nil {
		logger.Warn().Err(err).Str("userId", notif.UserID).Msg("best-effort notification dropped")
	}
}
