package model

import "time"

// IngestCheckpoint remembers how far a mailbox has been scanned for mailings
type IngestCheckpoint struct {
	Mailbox    string    `json:"mailbox" gorm:"type:varchar(255);primaryKey"`
	LastSeenAt time.Time `json:"last_seen_at" gorm:"not null"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for IngestCheckpoint
func (IngestCheckpoint) TableName() string {
	return "ingest_checkpoints"
}
