package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Supported webhook platforms.
const (
	PlatformFeishu   = "feishu"
	PlatformDingTalk = "dingtalk"
	PlatformWeCom    = "wecom"
	PlatformSlack    = "slack"
	PlatformCustom   = "custom"
)

// DefaultSource identifies this service in alert payloads.
const DefaultSource = "credit-guardian"

const defaultTimeout = 10 * time.Second

type formatter func(a Alert, source string, now time.Time) any

// Config describes one webhook endpoint.
type Config struct {
	URL          string
	Type         string
	Secret       string
	Source       string
	SlackChannel string
	Timeout      time.Duration
}

// DeliveryError is a failed webhook attempt. StatusCode is 0 for transport errors.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("send webhook alert: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed: transport errors and 5xx.
func (e *DeliveryError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// WebhookNotifier posts platform-formatted JSON to a webhook URL.
type WebhookNotifier struct {
	url      string
	secret   string
	source   string
	platform string
	format   formatter
	client   *http.Client
	now      func() time.Time
}

// NewWebhookNotifier creates a notifier for cfg.Type. Unknown types fall back
// to the custom format. If cfg.Secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookNotifier(cfg Config, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}

	platform := strings.ToLower(strings.TrimSpace(cfg.Type))
	var format formatter
	switch platform {
	case PlatformFeishu:
		format = formatFeishu
	case PlatformDingTalk:
		format = formatDingTalk
	case PlatformWeCom:
		format = formatWeCom
	case PlatformSlack:
		format = slackFormatter(cfg.SlackChannel)
	case PlatformCustom, "":
		platform = PlatformCustom
		format = formatCustom
	default:
		logger.Warn("unknown webhook type, using custom", "type", cfg.Type)
		platform = PlatformCustom
		format = formatCustom
	}

	return &WebhookNotifier{
		url:      cfg.URL,
		secret:   cfg.Secret,
		source:   cfg.Source,
		platform: platform,
		format:   format,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Name returns the resolved platform.
func (w *WebhookNotifier) Name() string { return w.platform }

// Payload renders the JSON body for a.
func (w *WebhookNotifier) Payload(a Alert) ([]byte, error) {
	payload := w.format(a, w.source, w.now())
	if payload == nil {
		return nil, fmt.Errorf("unsupported alert type %T", a)
	}
	return json.Marshal(payload)
}

func (w *WebhookNotifier) Send(ctx context.Context, a Alert) error {
	body, err := w.Payload(a)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Credit-Guardian/1.0")

	if w.secret != "" {
		sig := computeHMAC(body, []byte(w.secret))
		req.Header.Set("X-Signature-256", "sha256="+sig)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type customResource map[string]any

type customNotification struct {
	Type      string           `json:"Type"`
	RuleName  string           `json:"RuleName"`
	Level     Level            `json:"Level"`
	Resources []customResource `json:"Resources"`
}

type customMessage struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func formatCustom(a Alert, source string, now time.Time) any {
	switch a := a.(type) {
	case BalanceAlert:
		return customNotification{
			Type:     "AlarmNotification",
			RuleName: a.ProjectName + " " + a.KindLabel() + " alert",
			Level:    LevelCritical,
			Resources: []customResource{{
				"ProjectName":  a.ProjectName,
				"Provider":     a.Provider,
				"BalanceType":  a.KindLabel(),
				"CurrentValue": a.Value,
				"Threshold":    a.Threshold,
				"Unit":         a.Unit(),
				"Message":      balanceMessage(a),
			}},
		}
	case SubscriptionAlert:
		return customNotification{
			Type:     "SubscriptionReminder",
			RuleName: a.Name + " renewal reminder",
			Level:    a.Level(),
			Resources: []customResource{{
				"SubscriptionName": a.Name,
				"CycleType":        a.CycleType,
				"RenewalDay":       a.RenewalDay,
				"DaysUntilRenewal": a.DaysUntilRenewal,
				"Amount":           a.Amount,
				"Currency":         a.Currency,
				"Message":          subscriptionMessage(a),
			}},
		}
	case CustomAlert:
		return customMessage{
			Title:     a.Title,
			Content:   a.Content,
			Source:    source,
			Timestamp: now.Format(time.RFC3339),
		}
	}
	return nil
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// IsRetryable reports whether err from Notifier.Send is worth retrying.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
