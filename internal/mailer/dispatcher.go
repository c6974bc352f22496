// Package mailer delivers assembled digests to validators, test groups and
// the digest audience.
package mailer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/digest"
)

// Dispatcher implements digest.Dispatcher on top of a Transport. Each
// recipient gets an individual message; a dispatch succeeds when at least one
// recipient accepted it.
type Dispatcher struct {
	transport Transport
	directory Directory
}

var _ digest.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(transport Transport, directory Directory) *Dispatcher {
	return &Dispatcher{transport: transport, directory: directory}
}

// SendPreview sends the digest to the validator contacts.
func (d *Dispatcher) SendPreview(ctx context.Context, rd *digest.RenderedDigest, contactIDs []string) error {
	return d.deliver(ctx, "preview", rd, rd.Subject, d.directory.ContactAddresses(contactIDs))
}

// SendTest sends the digest to the test groups.
func (d *Dispatcher) SendTest(ctx context.Context, rd *digest.RenderedDigest, groupIDs []string) error {
	return d.deliver(ctx, "test", rd, "[TEST] "+rd.Subject, d.directory.GroupAddresses(groupIDs))
}

// Send sends the digest to its audience.
func (d *Dispatcher) Send(ctx context.Context, rd *digest.RenderedDigest, groupIDs []string) error {
	return d.deliver(ctx, "send", rd, rd.Subject, d.directory.GroupAddresses(groupIDs))
}

func (d *Dispatcher) deliver(ctx context.Context, kind string, rd *digest.RenderedDigest, subject string, recipients []string) error {
	if len(recipients) == 0 {
		return digest.ErrNoRecipients
	}

	from, err := d.directory.Sender(rd.FromGroup)
	if err != nil {
		return err
	}

	text := PlainText(rd.HTML)
	headers := map[string]string{"X-Digest-Kind": kind}
	if rd.DigestID != 0 {
		headers["X-Digest-Id"] = strconv.FormatUint(uint64(rd.DigestID), 10)
	}
	if rd.ViewURL != "" {
		headers["X-Digest-View-Url"] = rd.ViewURL
	}

	log := logrus.WithFields(logrus.Fields{
		"digest_id": rd.DigestID,
		"kind":      kind,
		"transport": d.transport.Name(),
	})

	accepted := 0
	var lastErr error
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := d.transport.Send(ctx, Message{
			From:    from,
			To:      to,
			Subject: subject,
			HTML:    rd.HTML,
			Text:    text,
			Headers: headers,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
			log.WithField("recipient", to).Warnf("Recipient rejected digest: %v", err)
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return fmt.Errorf("no recipient accepted the digest (%d tried): %w", len(recipients), lastErr)
	}

	log.Infof("Digest delivered to %d/%d recipients", accepted, len(recipients))
	return nil
}
