package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/logger"
)

var (
	errInvalidJSON       = errors.New("invalid JSON generated")
	errWebhookStatus     = errors.New("webhook returned non-200 status")
	errTemplateParse     = errors.New("template parsing failed")
	errTemplateExecution = errors.New("template execution failed")
)

type WebhookConfig struct {
	Enabled  bool            `json:"enabled" toml:"enabled"`
	URL      string          `json:"url" toml:"url"`
	Headers  []Header        `json:"headers,omitempty" toml:"headers"`   // Custom headers
	Template string          `json:"template,omitempty" toml:"template"` // Optional JSON template
	Discord  bool            `json:"discord,omitempty" toml:"discord"`   // Use the Discord embed template
	Cooldown config.Duration `json:"cooldown,omitempty" toml:"cooldown"`
	// RateInterval is the minimum spacing between requests once the burst
	// is used up.
	RateInterval config.Duration `json:"rate_interval,omitempty" toml:"rate_interval"`
	RateBurst    int             `json:"rate_burst,omitempty" toml:"rate_burst"`
}

type Header struct {
	Key   string `json:"key" toml:"key"`
	Value string `json:"value" toml:"value"`
}

type WebhookNotifier struct {
	config     WebhookConfig
	client     *http.Client
	limiter    *rate.Limiter
	cooldown   *cooldownTracker
	bufferPool *sync.Pool
	logger     logger.Logger
}

func NewWebhookNotifier(cfg WebhookConfig, log logger.Logger) *WebhookNotifier {
	if log == nil {
		log = logger.NewTestLogger()
	}

	if cfg.Discord && cfg.Template == "" {
		cfg.Template = DiscordTemplate
	}

	return &WebhookNotifier{
		config:   cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:  newLimiter(cfg.RateInterval.Std(), cfg.RateBurst),
		cooldown: newCooldownTracker(cfg.Cooldown.Std()),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
		logger:   logger.Wrap(log.WithComponent("webhook")),
	}
}

func (w *WebhookNotifier) IsEnabled() bool {
	return w.config.Enabled
}

func (w *WebhookNotifier) getTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (string, error) {
			buf := w.bufferPool.Get().(*bytes.Buffer)
			buf.Reset()
			defer w.bufferPool.Put(buf)

			enc := json.NewEncoder(buf)
			if err := enc.Encode(v); err != nil {
				return "", fmt.Errorf("JSON marshaling failed: %w", err)
			}

			return strings.TrimSpace(buf.String()), nil
		},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, alert *Alert) error {
	if !w.IsEnabled() {
		return ErrDisabled
	}

	if err := w.checkCooldown(alert); err != nil {
		return err
	}

	alert.ensureTimestamp()

	payload, err := w.preparePayload(alert)
	if err != nil {
		return fmt.Errorf("failed to prepare payload: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookNotifier) checkCooldown(alert *Alert) error {
	if w.cooldown.allow(alert.cooldownKey()) {
		return nil
	}

	w.logger.Debug().Str("alert", alert.Title).Str("device", alert.DeviceHash).Msg("Alert within cooldown period, skipping")

	return ErrCooldown
}

func (w *WebhookNotifier) preparePayload(alert *Alert) ([]byte, error) {
	if w.config.Template == "" {
		buf := w.bufferPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer w.bufferPool.Put(buf)

		enc := json.NewEncoder(buf)
		if err := enc.Encode(alert); err != nil {
			return nil, fmt.Errorf("failed to marshal alert: %w", err)
		}

		return append([]byte(nil), buf.Bytes()...), nil
	}

	return w.executeTemplate(alert)
}

func (w *WebhookNotifier) executeTemplate(alert *Alert) ([]byte, error) {
	tmpl, err := template.New("webhook").
		Funcs(w.getTemplateFuncs()).
		Parse(w.config.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateParse, err)
	}

	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	if err := tmpl.Execute(buf, map[string]interface{}{
		"alert": alert,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateExecution, err)
	}

	if !json.Valid(buf.Bytes()) {
		return nil, errInvalidJSON
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (w *WebhookNotifier) sendRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			w.logger.Debug().Err(err).Msg("Failed to close response body")
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("%w: status=%d body=%s", errWebhookStatus, resp.StatusCode, body)
	}

	return nil
}

func (w *WebhookNotifier) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}
