package digest

import (
	"context"
	"time"

	"mail-digest-go/internal/model"
)

// MailingQuery selects mailing log rows for a selection run.
type MailingQuery struct {
	ContentTypes []string // empty means all types
	Language     string
	Since        time.Time // exclusive
	Limit        int
	Offset       int
}

// MailingLog is the read side of the mailing log.
type MailingLog interface {
	// Recent returns matching rows ordered by send time, newest first.
	Recent(ctx context.Context, q MailingQuery) ([]model.MailingRecord, error)
}

// NewDigest is the input of Store.Create.
type NewDigest struct {
	Items     []model.DigestItem
	CreatedAt time.Time
	// AfterID is the newest digest id the selection saw; Create fails with
	// ErrConcurrentPrepare when a newer digest exists.
	AfterID uint
}

// StatusMeta carries the values recorded alongside a status change.
type StatusMeta struct {
	SentAt        *time.Time
	FailureReason string
}

// Store persists digests and enforces the status transition table.
type Store interface {
	Create(ctx context.Context, d NewDigest) (*model.Digest, error)
	Get(ctx context.Context, id uint) (*model.Digest, error)
	SetStatus(ctx context.Context, id uint, to model.DigestStatus, meta StatusMeta) (*model.Digest, error)
	// List returns every digest, newest first.
	List(ctx context.Context) ([]model.Digest, error)
}

// Fragment is one rendered content item.
type Fragment struct {
	Title string
	HTML  string
}

// Renderer turns a content reference into a displayable fragment.
type Renderer interface {
	Render(ctx context.Context, contentID, contentType, viewMode string) (Fragment, error)
}

// Dispatcher delivers rendered digests.
type Dispatcher interface {
	SendPreview(ctx context.Context, rd *RenderedDigest, contactIDs []string) error
	SendTest(ctx context.Context, rd *RenderedDigest, groupIDs []string) error
	Send(ctx context.Context, rd *RenderedDigest, groupIDs []string) error
}
