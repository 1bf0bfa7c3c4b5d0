package report

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autorenew/internal/logging"
)

// Notifier delivers the finished run report as one message to a chat-bot
// endpoint. Delivery is best effort: a failure is logged and never retried.
type Notifier struct {
	http     *http.Client
	apiHost  string
	botToken string
	chatID   string
	log      logging.Sugared
}

// NewNotifier creates a Telegram notifier
func NewNotifier(apiHost, botToken, chatID string, timeout time.Duration, log logging.Sugared) *Notifier {
	return &Notifier{
		http:     &http.Client{Timeout: timeout},
		apiHost:  strings.TrimRight(apiHost, "/"),
		botToken: botToken,
		chatID:   chatID,
		log:      log,
	}
}

// Configured reports whether a notification channel is set up
func (n *Notifier) Configured() bool {
	return n.apiHost != "" && n.botToken != "" && n.chatID != ""
}

// Send posts the report text as a single message
func (n *Notifier) Send(ctx context.Context, text string) error {
	body := url.Values{
		"chat_id":                  {n.chatID},
		"text":                     {"<b>AutoRenew Run Report</b>\n\n" + text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"true"},
	}

	endpoint := n.apiHost + "/bot" + n.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	n.log.Infow("run report delivered")
	return nil
}
