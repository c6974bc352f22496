package model

import "time"

// DigestStatus is the persisted workflow state of a digest.
type DigestStatus int

const (
	StatusCreated DigestStatus = iota
	StatusPrepared
	StatusSent
	StatusFailed
)

// Label returns the human readable status name.
func (s DigestStatus) Label() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusPrepared:
		return "Prepared"
	case StatusSent:
		return "Sent"
	case StatusFailed:
		return "Failed"
	}
	return "Unknown status"
}

func (s DigestStatus) String() string {
	return s.Label()
}

// Terminal reports whether no further transition is possible.
func (s DigestStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// DigestItem is one content item frozen into a digest at creation time
type DigestItem struct {
	ContentID   string   `json:"content_id"`
	ContentType string   `json:"content_type"`
	MailingIDs  []string `json:"mailing_ids"`
}

// Digest represents a bundle of previously mailed content items
type Digest struct {
	ID            uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	Status        DigestStatus `json:"status" gorm:"type:smallint;not null;default:0;index"`
	Items         []DigestItem `json:"items" gorm:"type:text;serializer:json;not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;index"`
	SentAt        *time.Time   `json:"sent_at"`
	FailureReason *string      `json:"failure_reason" gorm:"type:text"`
}

// TableName specifies the table name for Digest
func (Digest) TableName() string {
	return "digests"
}

// ContentIDs returns the content ids of the digest items in order.
func (d Digest) ContentIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		ids = append(ids, item.ContentID)
	}
	return ids
}
