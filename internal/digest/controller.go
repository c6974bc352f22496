package digest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/lock"
	"mail-digest-go/internal/metrics"
	"mail-digest-go/internal/model"
)

const prepareLockKey = "digest:prepare"

// PrepareResult is the outcome of PrepareDigest. Empty reports that there was
// nothing to digest; it is not an error.
type PrepareResult struct {
	Digest     *model.Digest
	Candidates []CandidateRef
	Empty      bool
}

// Controller drives the digest workflow: prepare, notify validators, test
// send and final send.
type Controller struct {
	mailings   MailingLog
	store      Store
	renderer   Renderer
	dispatcher Dispatcher
	locker     lock.Locker
	sendLocks  *lock.Keyed
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewController creates a workflow controller
func NewController(mailings MailingLog, store Store, renderer Renderer, dispatcher Dispatcher, locker lock.Locker, m *metrics.Metrics) *Controller {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Controller{
		mailings:   mailings,
		store:      store,
		renderer:   renderer,
		dispatcher: dispatcher,
		locker:     locker,
		sendLocks:  lock.NewKeyed(),
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SelectCandidates runs candidate selection against the current mailing log
// and digest history. It never writes.
func (c *Controller) SelectCandidates(ctx context.Context, s Settings) ([]CandidateRef, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	candidates, _, err := c.selectAt(ctx, s, c.now())
	return candidates, err
}

// HasNextDigestContent reports whether a digest could be prepared now.
func (c *Controller) HasNextDigestContent(ctx context.Context, s Settings) (bool, error) {
	candidates, err := c.SelectCandidates(ctx, s)
	if err != nil {
		return false, err
	}
	return len(candidates) > 0, nil
}

// selectAt returns the candidates and the newest digest id the selection saw.
func (c *Controller) selectAt(ctx context.Context, s Settings, now time.Time) ([]CandidateRef, uint, error) {
	start := time.Now()
	defer func() {
		c.metrics.SelectionDuration.Observe(time.Since(start).Seconds())
	}()

	digests, err := c.store.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	var latestID uint
	for _, d := range digests {
		if d.ID > latestID {
			latestID = d.ID
		}
	}

	records, err := c.recentMailings(ctx, s, now)
	if err != nil {
		return nil, 0, &SelectionError{Err: err}
	}

	candidates := SelectCandidates(s.Selection, records, NewHistory(digests), now)
	c.metrics.LastCandidates.Set(float64(len(candidates)))
	return candidates, latestID, nil
}

// recentMailings reads every mailing of the selection window, scan_limit
// rows at a time. Already digested content may fill whole pages, so the
// window is never cut short.
func (c *Controller) recentMailings(ctx context.Context, s Settings, now time.Time) ([]model.MailingRecord, error) {
	q := MailingQuery{
		ContentTypes: s.Selection.AllowedTypes,
		Language:     s.Selection.Language,
		Since:        s.Selection.Cutoff(now),
		Limit:        s.scanLimit(),
	}
	var records []model.MailingRecord
	for {
		page, err := c.mailings.Recent(ctx, q)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if len(page) < q.Limit {
			return records, nil
		}
		q.Offset += len(page)
	}
}

// PrepareDigest selects candidates and, when there are any, creates a new
// digest in the Created state. Only one preparation runs at a time.
func (c *Controller) PrepareDigest(ctx context.Context, s Settings) (*PrepareResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	unlock, err := c.locker.TryLock(ctx, prepareLockKey)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, ErrPrepareInProgress
		}
		return nil, fmt.Errorf("failed to acquire prepare lock: %w", err)
	}
	defer unlock()

	now := c.now()
	candidates, latestID, err := c.selectAt(ctx, s, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		c.metrics.EmptySelections.Inc()
		logrus.Info("No content available for the next digest")
		return &PrepareResult{Empty: true}, nil
	}

	items := make([]model.DigestItem, 0, len(candidates))
	for _, cand := range candidates {
		items = append(items, cand.Item())
	}

	d, err := c.store.Create(ctx, NewDigest{Items: items, CreatedAt: now, AfterID: latestID})
	if err != nil {
		return nil, err
	}

	c.metrics.DigestsPrepared.Inc()
	logrus.WithFields(logrus.Fields{
		"digest_id": d.ID,
		"items":     len(items),
	}).Info("Digest created")

	return &PrepareResult{Digest: d, Candidates: candidates}, nil
}

// PreviewDigest renders what the next digest would contain without creating
// it. ok is false when there is no content.
func (c *Controller) PreviewDigest(ctx context.Context, s Settings) (rd *RenderedDigest, ok bool, err error) {
	candidates, err := c.SelectCandidates(ctx, s)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}

	items := make([]model.DigestItem, 0, len(candidates))
	for _, cand := range candidates {
		items = append(items, cand.Item())
	}
	rd, err = c.assemble(ctx, s, 0, items)
	if err != nil {
		return nil, false, err
	}
	return rd, true, nil
}

// ViewDigest renders the frozen items of an existing digest.
func (c *Controller) ViewDigest(ctx context.Context, s Settings, id uint) (*RenderedDigest, error) {
	d, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.assemble(ctx, s, d.ID, d.Items)
}

// NotifyValidators renders the digest and sends it to the validator contacts.
// A successful render moves a Created digest to Prepared, whether or not the
// preview can be delivered.
func (c *Controller) NotifyValidators(ctx context.Context, s Settings, id uint) (*model.Digest, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(s.ValidationContacts) == 0 {
		return nil, &ConfigurationError{Field: "validation_contacts", Err: errors.New("at least one contact is required")}
	}

	d, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.StatusCreated && d.Status != model.StatusPrepared {
		return nil, &StateError{DigestID: id, Op: "notify validators", Status: d.Status}
	}

	rd, err := c.assemble(ctx, s, d.ID, d.Items)
	if err != nil {
		return nil, err
	}

	if d.Status == model.StatusCreated {
		d, err = c.markPrepared(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	if err := c.dispatch(ctx, s, "preview", id, func(ctx context.Context) error {
		return c.dispatcher.SendPreview(ctx, rd, s.ValidationContacts)
	}); err != nil {
		return d, err
	}

	logrus.WithField("digest_id", id).Infof("Validators notified (%d contacts)", len(s.ValidationContacts))
	return d, nil
}

// markPrepared moves a digest to Prepared, tolerating a concurrent caller
// that already did so.
func (c *Controller) markPrepared(ctx context.Context, id uint) (*model.Digest, error) {
	d, err := c.store.SetStatus(ctx, id, model.StatusPrepared, StatusMeta{})
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrIllegalTransition) {
		return nil, err
	}
	current, getErr := c.store.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != model.StatusPrepared {
		return nil, err
	}
	return current, nil
}

// SendTestDigest sends a Prepared digest to the test groups. It never
// changes the digest status.
func (c *Controller) SendTestDigest(ctx context.Context, s Settings, id uint) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(s.TestGroups) == 0 {
		return &ConfigurationError{Field: "test_groups", Err: errors.New("at least one group is required")}
	}

	d, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != model.StatusPrepared {
		return &StateError{DigestID: id, Op: "send test digest", Status: d.Status}
	}

	rd, err := c.assemble(ctx, s, d.ID, d.Items)
	if err != nil {
		return err
	}

	if err := c.dispatch(ctx, s, "test", id, func(ctx context.Context) error {
		return c.dispatcher.SendTest(ctx, rd, s.TestGroups)
	}); err != nil {
		return err
	}

	logrus.WithField("digest_id", id).Infof("Test digest sent to %d groups", len(s.TestGroups))
	return nil
}

// SendDigest dispatches a Prepared digest to its full audience. Success moves
// it to Sent; a dispatch failure or timeout moves it to Failed with a reason.
func (c *Controller) SendDigest(ctx context.Context, s Settings, id uint) (*model.Digest, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	unlock := c.sendLocks.Lock(strconv.FormatUint(uint64(id), 10))
	defer unlock()

	d, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.StatusPrepared {
		return nil, &StateError{DigestID: id, Op: "send digest", Status: d.Status}
	}

	rd, err := c.assemble(ctx, s, d.ID, d.Items)
	if err != nil {
		return nil, err
	}

	// the outcome must be recorded even if the caller has gone away
	storeCtx := context.WithoutCancel(ctx)

	dispatchErr := c.dispatch(ctx, s, "send", id, func(ctx context.Context) error {
		return c.dispatcher.Send(ctx, rd, s.ToGroups)
	})
	if dispatchErr != nil {
		failed, err := c.store.SetStatus(storeCtx, id, model.StatusFailed, StatusMeta{FailureReason: dispatchErr.Error()})
		if err != nil {
			return nil, errors.Join(dispatchErr, err)
		}
		c.metrics.DigestsFailed.Inc()
		logrus.WithField("digest_id", id).Errorf("Digest send failed: %v", dispatchErr)
		return failed, dispatchErr
	}

	sentAt := c.now()
	sent, err := c.store.SetStatus(storeCtx, id, model.StatusSent, StatusMeta{SentAt: &sentAt})
	if err != nil {
		return nil, err
	}

	c.metrics.DigestsSent.Inc()
	logrus.WithField("digest_id", id).Info("Digest sent")
	return sent, nil
}

// dispatch runs send under the dispatch timeout and classifies its failure.
func (c *Controller) dispatch(ctx context.Context, s Settings, kind string, id uint, send func(context.Context) error) error {
	timeout := s.dispatchTimeout()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := send(dctx)
	if err == nil && dctx.Err() != nil {
		// a dispatcher that returns late without error still timed out
		err = dctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		c.metrics.DispatchFailures.WithLabelValues(kind).Inc()
		return &DispatchError{Kind: kind, DigestID: id, Err: err}
	}

	c.metrics.Notifications.WithLabelValues(kind).Inc()
	return nil
}

// GetDigests lists every digest, newest first.
func (c *Controller) GetDigests(ctx context.Context) ([]model.Digest, error) {
	return c.store.List(ctx)
}

// GetDigest returns one digest.
func (c *Controller) GetDigest(ctx context.Context, id uint) (*model.Digest, error) {
	return c.store.Get(ctx, id)
}
