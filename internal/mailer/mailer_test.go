package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-digest-go/internal/config"
	"mail-digest-go/internal/digest"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []Message
	reject map[string]bool
	block  bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Send(ctx context.Context, m Message) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[m.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

func testDirectory() *StaticDirectory {
	return NewStaticDirectory(config.DirectoryConfig{
		Groups: map[string][]string{
			"subscribers": {"a@example.com", "b@example.com"},
			"editors":     {"ed@example.com", "A@example.com"},
			"empty":       nil,
		},
		Contacts: map[string]string{
			"42": "validator@example.com",
		},
		Senders: map[string]string{
			"newsroom": "Newsroom <news@example.org>",
		},
	})
}

func testDigest() *digest.RenderedDigest {
	return &digest.RenderedDigest{
		DigestID:  7,
		Subject:   "Weekly digest #7",
		HTML:      "<h1>Weekly digest #7</h1>\n<p>Budget &amp; taxes</p><p>Second item</p>",
		ViewURL:   "https://news.example.org/api/v1/digests/7/view",
		FromGroup: "newsroom",
	}
}

func TestStaticDirectory(t *testing.T) {
	dir := testDirectory()

	assert.Equal(t,
		[]string{"a@example.com", "b@example.com", "ed@example.com"},
		dir.GroupAddresses([]string{"subscribers", "Editors", "unknown"}))
	assert.Equal(t, []string{"validator@example.com"}, dir.ContactAddresses([]string{"42", "43"}))
	assert.Empty(t, dir.GroupAddresses([]string{"empty"}))

	from, err := dir.Sender("NEWSROOM")
	require.NoError(t, err)
	assert.Equal(t, "Newsroom <news@example.org>", from)

	_, err = dir.Sender("sports")
	assert.Error(t, err)
}

func TestDispatcherSendsOneMessagePerRecipient(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testDirectory())

	require.NoError(t, d.Send(context.Background(), testDigest(), []string{"subscribers", "editors"}))

	require.Len(t, tr.sent, 3)
	for _, m := range tr.sent {
		assert.Equal(t, "Newsroom <news@example.org>", m.From)
		assert.Equal(t, "Weekly digest #7", m.Subject)
		assert.Equal(t, "7", m.Headers["X-Digest-Id"])
		assert.Equal(t, "send", m.Headers["X-Digest-Kind"])
		assert.Contains(t, m.Text, "Budget & taxes")
	}
}

func TestDispatcherTestSubject(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testDirectory())

	require.NoError(t, d.SendTest(context.Background(), testDigest(), []string{"editors"}))
	require.Len(t, tr.sent, 2)
	assert.Equal(t, "[TEST] Weekly digest #7", tr.sent[0].Subject)
}

func TestDispatcherPreviewUsesContacts(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(tr, testDirectory())

	require.NoError(t, d.SendPreview(context.Background(), testDigest(), []string{"42"}))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "validator@example.com", tr.sent[0].To)
}

func TestDispatcherPartialFailureSucceeds(t *testing.T) {
	tr := &fakeTransport{reject: map[string]bool{"a@example.com": true}}
	d := NewDispatcher(tr, testDirectory())

	require.NoError(t, d.Send(context.Background(), testDigest(), []string{"subscribers"}))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "b@example.com", tr.sent[0].To)
}

func TestDispatcherAllRejectedFails(t *testing.T) {
	tr := &fakeTransport{reject: map[string]bool{"a@example.com": true, "b@example.com": true}}
	d := NewDispatcher(tr, testDirectory())

	err := d.Send(context.Background(), testDigest(), []string{"subscribers"})
	assert.ErrorContains(t, err, "mailbox unavailable")
}

func TestDispatcherNoRecipients(t *testing.T) {
	d := NewDispatcher(&fakeTransport{}, testDirectory())

	err := d.Send(context.Background(), testDigest(), []string{"empty"})
	assert.ErrorIs(t, err, digest.ErrNoRecipients)
}

func TestDispatcherUnknownSender(t *testing.T) {
	d := NewDispatcher(&fakeTransport{}, testDirectory())
	rd := testDigest()
	rd.FromGroup = "sports"

	assert.Error(t, d.Send(context.Background(), rd, []string{"subscribers"}))
}

func TestDispatcherHonorsDeadline(t *testing.T) {
	d := NewDispatcher(&fakeTransport{block: true}, testDirectory())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Send(ctx, testDigest(), []string{"subscribers"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildMIME(t *testing.T) {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	raw, err := BuildMIME(Message{
		From:    "Newsroom <news@example.org>",
		To:      "reader@example.com",
		Subject: "Weekly digest #7",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
		Headers: map[string]string{"X-Digest-Id": "7"},
	}, now)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Weekly digest #7", subject)
	assert.Equal(t, "7", mr.Header.Get("X-Digest-Id"))

	date, err := mr.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(now))

	msgID, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msgID, "@example.org"))

	bodies := map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies[ct] = string(b)
	}
	assert.Equal(t, "Hello", bodies["text/plain"])
	assert.Equal(t, "<p>Hello</p>", bodies["text/html"])
}

func TestBuildMIMEInvalidAddress(t *testing.T) {
	_, err := BuildMIME(Message{From: "not an address", To: "reader@example.com"}, time.Now())
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	html := "<h1>Weekly digest #7</h1>\n<p><a href=\"x\">View it online</a></p>\n" +
		"<article><h2>Budget</h2>\n<p>Council &amp; mayor agree.</p></article>\n<script>evil()</script>"

	text := PlainText(html)
	assert.True(t, strings.HasPrefix(text, "Weekly digest #7\n"))
	assert.Contains(t, text, "View it online")
	assert.Contains(t, text, "Budget\n\nCouncil & mayor agree.")
	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "evil")
	assert.NotContains(t, text, "\n\n\n")
}
