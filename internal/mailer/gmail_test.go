package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"mail-digest-go/internal/config"
)

func gmailServer(t *testing.T, handler func(w http.ResponseWriter, call int32)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/digest@example.org/messages/send") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, err := base64.URLEncoding.DecodeString(body.Raw)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "Subject: Weekly digest #7")

		w.Header().Set("Content-Type", "application/json")
		handler(w, calls.Add(1))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestGmail(t *testing.T, srv *httptest.Server) *GmailTransport {
	t.Helper()
	g, err := NewGmailTransport(context.Background(),
		config.GmailConfig{UserEmail: "digest@example.org"}, 3,
		option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	g.backoff = func(int) time.Duration { return time.Millisecond }
	return g
}

func testMessage() Message {
	return Message{
		From:    "news@example.org",
		To:      "reader@example.com",
		Subject: "Weekly digest #7",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
	}
}

func TestGmailTransportRetriesRateLimit(t *testing.T) {
	srv, calls := gmailServer(t, func(w http.ResponseWriter, call int32) {
		if call == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"User-rate limit exceeded","errors":[{"reason":"rateLimitExceeded"}]}}`))
			return
		}
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	require.NoError(t, newTestGmail(t, srv).Send(context.Background(), testMessage()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGmailTransportDoesNotRetryOtherErrors(t *testing.T) {
	srv, calls := gmailServer(t, func(w http.ResponseWriter, call int32) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid to header","errors":[{"reason":"invalidArgument"}]}}`))
	})

	err := newTestGmail(t, srv).Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "Invalid to header")
	assert.Equal(t, int32(1), calls.Load())
}
