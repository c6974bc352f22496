package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/config"
)

// Source returns the raw header blocks of messages sent since a point in time.
type Source interface {
	Mailbox() string
	Fetch(ctx context.Context, since time.Time) ([][]byte, error)
}

// IMAPSource reads the sent mailbox over IMAP. It connects per fetch.
type IMAPSource struct {
	addr     string
	user     string
	password string
	mailbox  string
}

// NewIMAPSource creates a source for the configured sent mailbox
func NewIMAPSource(cfg config.GmailConfig) *IMAPSource {
	return &IMAPSource{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		mailbox:  cfg.SentMailbox,
	}
}

func (s *IMAPSource) Mailbox() string { return s.mailbox }

// Fetch returns the headers of messages in the mailbox since the given day.
// IMAP SINCE has day granularity, so callers see some messages again.
func (s *IMAPSource) Fetch(ctx context.Context, since time.Time) ([][]byte, error) {
	c, err := client.DialTLS(s.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	if err := c.Login(s.user, s.password); err != nil {
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := c.Select(s.mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	criteria.Header.Add(HeaderContentID, "")

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var headers [][]byte
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			logrus.Warnf("IMAP message %d returned no header section", msg.SeqNum)
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			logrus.Warnf("Failed to read IMAP message %d: %v", msg.SeqNum, err)
			continue
		}
		headers = append(headers, buf.Bytes())
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return headers, nil
}
