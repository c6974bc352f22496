package model

import "time"

// MailingRecord is one historical send of one content item
type MailingRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MailingID   string    `json:"mailing_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_mailing_content,priority:1"`
	ContentID   string    `json:"content_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_mailing_content,priority:2"`
	ContentType string    `json:"content_type" gorm:"type:varchar(64);not null;index"`
	Language    string    `json:"language" gorm:"type:varchar(12);not null;index"`
	SentAt      time.Time `json:"sent_at" gorm:"not null;index"`
}

// TableName specifies the table name for MailingRecord
func (MailingRecord) TableName() string {
	return "entity_mailings"
}
