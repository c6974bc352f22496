package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/model"
)

// Repository is the gorm backed Mailing Log and Digest Store. Every time it
// writes or compares is in UTC; sqlite stores times as text and compares
// them as strings.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ digest.MailingLog = (*Repository)(nil)
	_ digest.Store      = (*Repository)(nil)
)

// Recent returns mailing records sent after q.Since, newest first.
func (r *Repository) Recent(ctx context.Context, q digest.MailingQuery) ([]model.MailingRecord, error) {
	tx := r.db.WithContext(ctx).Where("sent_at > ?", q.Since.UTC())
	if q.Language != "" {
		tx = tx.Where("language = ?", q.Language)
	}
	if len(q.ContentTypes) > 0 {
		tx = tx.Where("content_type IN ?", q.ContentTypes)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var records []model.MailingRecord
	if err := tx.Order("sent_at DESC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query mailings: %w", err)
	}
	return records, nil
}

// Append stores mailing records, skipping ones already logged for the same
// mailing and content. It returns how many rows were added.
func (r *Repository) Append(ctx context.Context, records []model.MailingRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	records = slices.Clone(records)
	for i := range records {
		records[i].SentAt = records[i].SentAt.UTC()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mailing_id"}, {Name: "content_id"}},
			DoNothing: true,
		}).
		Create(&records)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to append mailings: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Checkpoint returns the last ingested send time of a mailbox.
func (r *Repository) Checkpoint(ctx context.Context, mailbox string) (time.Time, bool, error) {
	var cp model.IngestCheckpoint
	result := r.db.WithContext(ctx).Where("mailbox = ?", mailbox).First(&cp)
	if result.Error == nil {
		return cp.LastSeenAt, true, nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	return time.Time{}, false, fmt.Errorf("database error reading checkpoint: %w", result.Error)
}

// SaveCheckpoint records how far a mailbox has been ingested.
func (r *Repository) SaveCheckpoint(ctx context.Context, mailbox string, lastSeenAt time.Time) error {
	cp := model.IngestCheckpoint{Mailbox: mailbox, LastSeenAt: lastSeenAt.UTC(), UpdatedAt: time.Now().UTC()}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mailbox"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "updated_at"}),
		}).
		Create(&cp)
	if result.Error != nil {
		return fmt.Errorf("failed to save checkpoint: %w", result.Error)
	}
	return nil
}
