package alerts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/logger"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"

	DefaultTelegramTemplate = "Killswitch notification:\n" +
		"  {{.Time}}\n" +
		"  Host: `{{.Host}}`\n" +
		"  Status: {{.Status}}\n" +
		"  Act: `{{.Act}}`"
)

var errTelegramStatus = errors.New("telegram returned non-200 status")

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Token    string `json:"token" toml:"token"`
	ChatID   int64  `json:"chat_id" toml:"chat_id"`
	Template string `json:"template,omitempty" toml:"template"`
	// Settings are extra sendMessage parameters such as parse_mode.
	Settings     map[string]string `json:"settings,omitempty" toml:"settings"`
	APIURL       string            `json:"api_url,omitempty" toml:"api_url"`
	Cooldown     config.Duration   `json:"cooldown,omitempty" toml:"cooldown"`
	RateInterval config.Duration   `json:"rate_interval,omitempty" toml:"rate_interval"`
	RateBurst    int               `json:"rate_burst,omitempty" toml:"rate_burst"`
}

// telegramMessage is the data available to the message template.
type telegramMessage struct {
	Time   string
	Host   string
	Status string
	Act    string
	Alert  *Alert
}

// TelegramNotifier posts alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	config   TelegramConfig
	client   *http.Client
	limiter  *rate.Limiter
	template *template.Template
	cooldown *cooldownTracker
	logger   logger.Logger
}

func NewTelegramNotifier(cfg TelegramConfig, log logger.Logger) (*TelegramNotifier, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	if cfg.Template == "" {
		cfg.Template = DefaultTelegramTemplate
	}

	if cfg.APIURL == "" {
		cfg.APIURL = defaultTelegramAPI
	}

	tmpl, err := template.New("telegram").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateParse, err)
	}

	return &TelegramNotifier{
		config:   cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  newLimiter(cfg.RateInterval.Std(), cfg.RateBurst),
		template: tmpl,
		cooldown: newCooldownTracker(cfg.Cooldown.Std()),
		logger:   logger.Wrap(log.WithComponent("telegram")),
	}, nil
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.config.Enabled
}

func (t *TelegramNotifier) Notify(ctx context.Context, alert *Alert) error {
	if !t.IsEnabled() {
		return ErrDisabled
	}

	if !t.cooldown.allow(alert.cooldownKey()) {
		return ErrCooldown
	}

	alert.ensureTimestamp()

	text, err := t.render(alert)
	if err != nil {
		return err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	return t.send(ctx, text)
}

func (t *TelegramNotifier) render(alert *Alert) (string, error) {
	var buf bytes.Buffer

	host := alert.Hostname
	if host == "" {
		host = alert.DeviceHash
	}

	if err := t.template.Execute(&buf, telegramMessage{
		Time:   alert.Timestamp,
		Host:   host,
		Status: alert.Title,
		Act:    alert.Action,
		Alert:  alert,
	}); err != nil {
		return "", fmt.Errorf("%w: %w", errTemplateExecution, err)
	}

	return buf.String(), nil
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(t.config.ChatID, 10))
	form.Set("text", text)

	for k, v := range t.config.Settings {
		form.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.config.APIURL, t.config.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// the error text carries the URL, which carries the token
		return fmt.Errorf("failed to send telegram message: %w", errors.Unwrap(err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.logger.Debug().Err(err).Msg("Failed to close response body")
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("%w: status=%d body=%s", errTelegramStatus, resp.StatusCode, body)
	}

	return nil
}
