package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/config"
)

// GmailTransport sends messages via the Gmail API
type GmailTransport struct {
	service    *gmail.Service
	userEmail  string
	maxRetries int
	backoff    func(attempt int) time.Duration
	now        func() time.Time
}

// NewGmailTransport creates a Gmail transport. Without opts it authenticates
// with the configured OAuth2 refresh token.
func NewGmailTransport(ctx context.Context, cfg config.GmailConfig, maxRetries int, opts ...option.ClientOption) (*GmailTransport, error) {
	if len(opts) == 0 {
		oauth2Config := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
		}
		tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opts = append(opts, option.WithTokenSource(tokenSource))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &GmailTransport{
		service:    service,
		userEmail:  cfg.UserEmail,
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		now: time.Now,
	}, nil
}

func (g *GmailTransport) Name() string { return "gmail" }

// Send sends m, retrying with backoff while Gmail reports a quota or rate limit.
func (g *GmailTransport) Send(ctx context.Context, m Message) error {
	raw, err := BuildMIME(m, g.now())
	if err != nil {
		return err
	}
	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		_, err := g.service.Users.Messages.Send(g.userID(), message).Context(ctx).Do()
		if err == nil {
			return nil
		}

		lastErr = err
		logrus.Warnf("Failed to send digest to %s (attempt %d/%d): %v", m.To, attempt, g.maxRetries, err)

		if !isRateLimited(err) || attempt == g.maxRetries {
			break
		}

		waitTime := g.backoff(attempt)
		logrus.Infof("Rate limited, waiting %v before retry", waitTime)
		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("gmail: failed to send to %s: %w", m.To, lastErr)
}

func (g *GmailTransport) userID() string {
	if g.userEmail == "" {
		return "me"
	}
	return g.userEmail
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate")
}

// TestConnection tests the Gmail API connection
func (g *GmailTransport) TestConnection(ctx context.Context) error {
	if _, err := g.service.Users.GetProfile(g.userID()).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}
