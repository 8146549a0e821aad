package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendsMessage(t *testing.T) {
	var (
		path string
		form map[string]string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path

		require.NoError(t, r.ParseForm())

		form = map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		}

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{
		Enabled:  true,
		Token:    "T0KEN",
		ChatID:   -100,
		APIURL:   srv.URL,
		Settings: map[string]string{"parse_mode": "Markdown"},
	}, nil)
	require.NoError(t, err)

	alert := testAlert()
	alert.Timestamp = "2026-05-01T10:00:00Z"

	require.NoError(t, n.Notify(context.Background(), alert))

	assert.Equal(t, "/botT0KEN/sendMessage", path)
	assert.Equal(t, "-100", form["chat_id"])
	assert.Equal(t, "Markdown", form["parse_mode"])
	assert.Equal(t,
		"Killswitch notification:\n  2026-05-01T10:00:00Z\n  Host: `web-01`\n  Status: Device Inactive\n  Act: `inactive`",
		form["text"])
}

func TestTelegramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{Enabled: true, Token: "x", APIURL: srv.URL}, nil)
	require.NoError(t, err)

	require.ErrorIs(t, n.Notify(context.Background(), testAlert()), errTelegramStatus)
}

func TestTelegramBadTemplate(t *testing.T) {
	_, err := NewTelegramNotifier(TelegramConfig{Template: "{{.Nope"}, nil)
	require.ErrorIs(t, err, errTemplateParse)
}
