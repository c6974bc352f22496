package digest

import (
	"cmp"
	"slices"
	"time"

	"mail-digest-go/internal/model"
)

// CandidateRef is a content item eligible for the next digest.
type CandidateRef struct {
	ContentID    string    `json:"content_id"`
	ContentType  string    `json:"content_type"`
	MailingIDs   []string  `json:"mailing_ids"`
	LatestSentAt time.Time `json:"latest_sent_at"`
}

// Item freezes the candidate into a digest item.
func (c CandidateRef) Item() model.DigestItem {
	return model.DigestItem{
		ContentID:   c.ContentID,
		ContentType: c.ContentType,
		MailingIDs:  slices.Clone(c.MailingIDs),
	}
}

// History maps a content id to the creation time of the most recent digest
// that contains it.
type History map[string]time.Time

// NewHistory builds the history view of all digests, whatever their status.
func NewHistory(digests []model.Digest) History {
	h := make(History)
	for _, d := range digests {
		for _, item := range d.Items {
			if last, ok := h[item.ContentID]; !ok || d.CreatedAt.After(last) {
				h[item.ContentID] = d.CreatedAt
			}
		}
	}
	return h
}

// SelectCandidates computes the ordered candidates for the next digest.
// It has no side effects and returns the same list for the same inputs.
func SelectCandidates(cfg Config, records []model.MailingRecord, history History, now time.Time) []CandidateRef {
	cutoff := cfg.Cutoff(now)

	// mailing ids are collected most recent first
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b model.MailingRecord) int {
		if c := b.SentAt.Compare(a.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.MailingID, b.MailingID)
	})

	byContent := make(map[string]*CandidateRef)
	var order []string
	for _, rec := range sorted {
		if !rec.SentAt.After(cutoff) || !cfg.Allows(rec.ContentType) || rec.Language != cfg.Language {
			continue
		}
		c, ok := byContent[rec.ContentID]
		if !ok {
			c = &CandidateRef{ContentID: rec.ContentID, ContentType: rec.ContentType}
			byContent[rec.ContentID] = c
			order = append(order, rec.ContentID)
		}
		if !slices.Contains(c.MailingIDs, rec.MailingID) {
			c.MailingIDs = append(c.MailingIDs, rec.MailingID)
		}
		if rec.SentAt.After(c.LatestSentAt) {
			c.LatestSentAt = rec.SentAt
		}
	}

	candidates := make([]CandidateRef, 0, len(order))
	for _, id := range order {
		c := byContent[id]
		if digestedAt, ok := history[id]; ok {
			if !cfg.IncludeUpdates || !c.LatestSentAt.After(digestedAt) {
				continue
			}
		}
		candidates = append(candidates, *c)
	}

	slices.SortFunc(candidates, func(a, b CandidateRef) int {
		if c := b.LatestSentAt.Compare(a.LatestSentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ContentID, b.ContentID)
	})

	if limit := max(cfg.QuantityLimit, 0); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
