package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"mail-digest-go/internal/model"
)

// Headers set by the mailing platform on every content mailing.
const (
	HeaderContentID   = "X-Digest-Content-Id"
	HeaderContentType = "X-Digest-Content-Type"
	HeaderMailingID   = "X-Mailing-Id"
)

// ErrNotAMailing is returned for messages without digest content headers.
var ErrNotAMailing = errors.New("message carries no digest content headers")

// ParseMailing turns the header block of a sent message into mailing
// records, one per content id listed in X-Digest-Content-Id.
func ParseMailing(r io.Reader) ([]model.MailingRecord, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	h := mail.Header{Header: message.Header{Header: th}}

	contentIDs := splitList(h.Get(HeaderContentID))
	if len(contentIDs) == 0 {
		return nil, ErrNotAMailing
	}
	contentTypes := splitList(h.Get(HeaderContentType))
	if len(contentTypes) != 1 && len(contentTypes) != len(contentIDs) {
		return nil, fmt.Errorf("%s lists %d types for %d content ids", HeaderContentType, len(contentTypes), len(contentIDs))
	}

	mailingID := strings.TrimSpace(h.Get(HeaderMailingID))
	if mailingID == "" {
		if mailingID, err = h.MessageID(); err != nil || mailingID == "" {
			return nil, errors.New("message has neither a mailing id nor a message id")
		}
	}

	sentAt, err := h.Date()
	if err != nil || sentAt.IsZero() {
		return nil, fmt.Errorf("message %s has no usable date", mailingID)
	}

	language := "und"
	if langs := splitList(h.Get("Content-Language")); len(langs) > 0 {
		language = strings.ToLower(langs[0])
	}

	records := make([]model.MailingRecord, 0, len(contentIDs))
	for i, id := range contentIDs {
		contentType := contentTypes[0]
		if len(contentTypes) > 1 {
			contentType = contentTypes[i]
		}
		records = append(records, model.MailingRecord{
			MailingID:   mailingID,
			ContentID:   id,
			ContentType: contentType,
			Language:    language,
			SentAt:      sentAt.UTC().Truncate(time.Second),
		})
	}
	return records, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
