package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/model"
)

// Create stores a new digest in the Created state. It fails with
// digest.ErrConcurrentPrepare when a digest newer than nd.AfterID exists.
func (r *Repository) Create(ctx context.Context, nd digest.NewDigest) (*model.Digest, error) {
	seen := make(map[string]bool, len(nd.Items))
	for _, item := range nd.Items {
		if seen[item.ContentID] {
			return nil, digest.ErrDuplicateContent
		}
		seen[item.ContentID] = true
	}

	createdAt := nd.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	d := model.Digest{
		Status:    model.StatusCreated,
		Items:     nd.Items,
		CreatedAt: createdAt.UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest []model.Digest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Order("id DESC").Limit(1).Find(&latest).Error; err != nil {
			return err
		}
		if len(latest) > 0 && latest[0].ID > nd.AfterID {
			return digest.ErrConcurrentPrepare
		}
		return tx.Create(&d).Error
	})
	if err != nil {
		if errors.Is(err, digest.ErrConcurrentPrepare) {
			return nil, err
		}
		return nil, &digest.PersistenceError{Op: "create", Err: err}
	}
	return &d, nil
}

// Get returns one digest or digest.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id uint) (*model.Digest, error) {
	var d model.Digest
	result := r.db.WithContext(ctx).First(&d, id)
	if result.Error == nil {
		return &d, nil
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, digest.ErrNotFound
	}
	return nil, &digest.PersistenceError{Op: "get", Err: result.Error}
}

// SetStatus moves a digest along the transition table. The update is
// conditional on the status read inside the transaction, so of two racing
// callers only one can win.
func (r *Repository) SetStatus(ctx context.Context, id uint, to model.DigestStatus, meta digest.StatusMeta) (*model.Digest, error) {
	var d model.Digest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, id).Error; err != nil {
			return err
		}
		from := d.Status
		if !digest.CanTransition(from, to) {
			return &digest.TransitionError{DigestID: id, From: from, To: to}
		}

		updates := map[string]any{"status": to}
		if meta.SentAt != nil {
			updates["sent_at"] = meta.SentAt.UTC()
		}
		if meta.FailureReason != "" {
			updates["failure_reason"] = meta.FailureReason
		}
		result := tx.Model(&model.Digest{}).Where("id = ? AND status = ?", id, from).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &digest.TransitionError{DigestID: id, From: from, To: to}
		}
		return tx.First(&d, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, digest.ErrNotFound
		}
		if errors.Is(err, digest.ErrIllegalTransition) {
			return nil, err
		}
		return nil, &digest.PersistenceError{Op: "set status", Err: err}
	}
	return &d, nil
}

// List returns every digest, newest first.
func (r *Repository) List(ctx context.Context) ([]model.Digest, error) {
	var digests []model.Digest
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&digests).Error; err != nil {
		return nil, &digest.PersistenceError{Op: "list", Err: err}
	}
	return digests, nil
}
