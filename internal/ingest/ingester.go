// Package ingest fills the mailing log from the outbound mailbox.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/metrics"
	"mail-digest-go/internal/model"
)

// Store is the part of the repository the ingester writes to
type Store interface {
	Append(ctx context.Context, records []model.MailingRecord) (int64, error)
	Checkpoint(ctx context.Context, mailbox string) (time.Time, bool, error)
	SaveCheckpoint(ctx context.Context, mailbox string, lastSeenAt time.Time) error
}

// Ingester copies mailings from a Source into the mailing log.
type Ingester struct {
	source   Source
	store    Store
	metrics  *metrics.Metrics
	lookback time.Duration
	now      func() time.Time
}

// NewIngester creates an ingester. Without a checkpoint it starts lookback ago.
func NewIngester(source Source, store Store, m *metrics.Metrics, lookback time.Duration) *Ingester {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Ingester{source: source, store: store, metrics: m, lookback: lookback, now: time.Now}
}

// Run ingests everything sent since the last checkpoint and returns the
// number of new mailing records.
func (i *Ingester) Run(ctx context.Context) (int64, error) {
	mailbox := i.source.Mailbox()
	since, ok, err := i.store.Checkpoint(ctx, mailbox)
	if err != nil {
		return 0, err
	}
	if !ok {
		since = i.now().Add(-i.lookback)
	}

	headers, err := i.source.Fetch(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch from %s: %w", mailbox, err)
	}

	var records []model.MailingRecord
	latest := since
	for _, h := range headers {
		parsed, err := ParseMailing(bytes.NewReader(h))
		if err != nil {
			if !errors.Is(err, ErrNotAMailing) {
				logrus.Warnf("Skipping unparseable mailing: %v", err)
			}
			continue
		}
		for _, r := range parsed {
			if r.SentAt.After(latest) {
				latest = r.SentAt
			}
		}
		records = append(records, parsed...)
	}

	added, err := i.store.Append(ctx, records)
	if err != nil {
		return 0, err
	}
	if i.metrics != nil {
		i.metrics.MailingsIngested.Add(float64(added))
	}

	if err := i.store.SaveCheckpoint(ctx, mailbox, latest); err != nil {
		return added, err
	}

	logrus.WithFields(logrus.Fields{
		"mailbox":  mailbox,
		"messages": len(headers),
		"added":    added,
	}).Info("Mailing ingestion completed")
	return added, nil
}
