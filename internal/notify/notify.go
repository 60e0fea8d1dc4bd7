// Package notify sends run notifications to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"zapp/internal/apiclient"
	"zapp/internal/retry"
	"zapp/pkg/logging"
)

// Mode selects which runs are notified.
type Mode string

const (
	Disable   Mode = "disable"
	Always    Mode = "always"
	OnErrors  Mode = "on_errors"
	OnSuccess Mode = "on_success"
)

// ParseMode parses TG_NOTIFICATION_MODE case-insensitively.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case Disable, Always, OnErrors, OnSuccess:
		return m, true
	default:
		return Disable, false
	}
}

// Outcome is the overall result of a run.
type Outcome int

const (
	// Broken runs executed no scenario successfully and failed none.
	Broken Outcome = iota
	Succeeded
	Failed
)

// OutcomeOf classifies a run from its scenario counts.
func OutcomeOf(passed, failed int) Outcome {
	switch {
	case failed > 0:
		return Failed
	case passed > 0:
		return Succeeded
	default:
		return Broken
	}
}

// DefaultAPIURL is the Telegram bot API.
const DefaultAPIURL = "https://api.telegram.org/"

// Config configures a Notifier.
type Config struct {
	Mode     Mode
	Token    string
	ChatID   string
	Nickname string
	APIURL   string
}

// Notifier posts run results to Telegram.
type Notifier struct {
	cfg Config
	api *apiclient.Client
}

// New returns a notifier sending through api.
func New(cfg Config, api *apiclient.Client) *Notifier {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if !strings.HasSuffix(cfg.APIURL, "/") {
		cfg.APIURL += "/"
	}
	return &Notifier{cfg: cfg, api: api}
}

// Message returns the text for outcome, or false when the mode does not
// notify it.
func (n *Notifier) Message(o Outcome, sessionURL string) (string, bool) {
	var text string
	switch {
	case o == Succeeded && (n.cfg.Mode == OnSuccess || n.cfg.Mode == Always):
		text = "Тесты прошли успешно, ссылка на результаты: "
	case o == Failed && (n.cfg.Mode == OnErrors || n.cfg.Mode == Always):
		text = "Тесты прошли неуспешно, ссылка на результаты: "
	case o == Broken && (n.cfg.Mode == OnErrors || n.cfg.Mode == Always):
		text = "В процессе запуска что-то пошло не так, ссылка на результаты: "
	default:
		return "", false
	}
	return n.cfg.Nickname + "\n" + text + sessionURL, true
}

// Notify sends the message for outcome when the mode asks for it.
func (n *Notifier) Notify(ctx context.Context, o Outcome, sessionURL string) error {
	text, ok := n.Message(o, sessionURL)
	if !ok {
		return nil
	}

	once := retry.Attempts(1, 0)
	resp, err := n.api.Request(ctx, http.MethodPost, n.cfg.APIURL+"bot"+n.cfg.Token+"/sendMessage", nil, apiclient.Options{
		JSON:  map[string]string{"chat_id": n.cfg.ChatID, "text": text},
		Retry: &once,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("telegram answered %d: %s", resp.StatusCode, resp.Body)
	}
	logging.Debug("Notify", "Telegram notification sent to chat %s", n.cfg.ChatID)
	return nil
}
