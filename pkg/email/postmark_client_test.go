package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/email"
)

func validConfig() email.Config {
	return email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "sender@example.com",
		SupportEmail:         "support@example.com",
	}
}

// postmarkAPI records the requests made to a fake Postmark API.
type postmarkAPI struct {
	*httptest.Server
	mu       sync.Mutex
	tokens   []string
	messages []map[string]any
	code     int
}

func newPostmarkAPI(t *testing.T) *postmarkAPI {
	t.Helper()
	api := &postmarkAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]any
		_ = json.NewDecoder(r.Body).Decode(&msg)

		api.mu.Lock()
		api.tokens = append(api.tokens, r.Header.Get("X-Postmark-Server-Token"))
		api.messages = append(api.messages, msg)
		code := api.code
		api.mu.Unlock()

		message := "OK"
		if code > 0 {
			message = "Invalid 'To' address"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"To":        msg["To"],
			"MessageID": "b7bc2f4a-e38e-4336-af7d-e6c392c2f817",
			"ErrorCode": code,
			"Message":   message,
		})
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *postmarkAPI) setCode(code int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.code = code
}

func (a *postmarkAPI) sent() ([]string, []map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tokens...), append([]map[string]any(nil), a.messages...)
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		client, err := email.NewPostmarkClient(validConfig())
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("account token is optional", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.PostmarkAccountToken = ""
		_, err := email.NewPostmarkClient(cfg)
		require.NoError(t, err)
	})

	tests := []struct {
		name   string
		mutate func(*email.Config)
		errMsg string
	}{
		{"empty server token", func(c *email.Config) { c.PostmarkServerToken = "" }, "PostmarkServerToken is required"},
		{"missing sender", func(c *email.Config) { c.SenderEmail = "" }, "SenderEmail is required"},
		{"invalid sender", func(c *email.Config) { c.SenderEmail = "nope" }, "SenderEmail must be a valid email address"},
		{"missing support", func(c *email.Config) { c.SupportEmail = "" }, "SupportEmail is required"},
		{"invalid support", func(c *email.Config) { c.SupportEmail = "a@b" }, "SupportEmail must be a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)

			client, err := email.NewPostmarkClient(cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("must panics on invalid config", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { email.MustNewPostmarkClient(email.Config{}) })
	})
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	params := email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Welcome",
		BodyHTML: "<p>Hi</p>",
		Tag:      "welcome",
	}

	t.Run("sends through the api", func(t *testing.T) {
		t.Parallel()
		api := newPostmarkAPI(t)
		client := email.MustNewPostmarkClient(validConfig(), email.WithBaseURL(api.URL))

		require.NoError(t, client.SendEmail(ctx, params))

		tokens, messages := api.sent()
		require.Len(t, messages, 1)
		assert.Equal(t, "server-token", tokens[0])
		msg := messages[0]
		assert.Equal(t, "sender@example.com", msg["From"])
		assert.Equal(t, "support@example.com", msg["ReplyTo"])
		assert.Equal(t, "user@example.com", msg["To"])
		assert.Equal(t, "Welcome", msg["Subject"])
		assert.Equal(t, "welcome", msg["Tag"])
		assert.Equal(t, "HtmlOnly", msg["TrackLinks"])
	})

	t.Run("api error code", func(t *testing.T) {
		t.Parallel()
		api := newPostmarkAPI(t)
		api.setCode(300)
		client := email.MustNewPostmarkClient(validConfig(), email.WithBaseURL(api.URL))

		err := client.SendEmail(ctx, params)
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
		assert.True(t, strings.Contains(err.Error(), "300"))
	})

	t.Run("unreachable api", func(t *testing.T) {
		t.Parallel()
		api := newPostmarkAPI(t)
		url := api.URL
		api.Close()
		client := email.MustNewPostmarkClient(validConfig(), email.WithBaseURL(url), email.WithHTTPClient(http.DefaultClient))

		assert.ErrorIs(t, client.SendEmail(ctx, params), email.ErrFailedToSendEmail)
	})

	t.Run("invalid params never reach the api", func(t *testing.T) {
		t.Parallel()
		api := newPostmarkAPI(t)
		client := email.MustNewPostmarkClient(validConfig(), email.WithBaseURL(api.URL))

		err := client.SendEmail(ctx, email.SendEmailParams{SendTo: "bad", Subject: "s", BodyHTML: "b"})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
		_, messages := api.sent()
		assert.Empty(t, messages)
	})
}
