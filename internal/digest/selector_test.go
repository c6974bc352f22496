package digest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-digest-go/internal/model"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return testNow.Add(-time.Duration(d) * 24 * time.Hour)
}

func mailing(contentID, mailingID string, sentAt time.Time) model.MailingRecord {
	return model.MailingRecord{
		ContentID:   contentID,
		ContentType: "article",
		Language:    "en",
		MailingID:   mailingID,
		SentAt:      sentAt,
	}
}

func testConfig() Config {
	return Config{QuantityLimit: 10, MaxAgeDays: 30, Language: "en"}
}

func contentIDs(candidates []CandidateRef) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ContentID)
	}
	return ids
}

func scenarioLog() []model.MailingRecord {
	return []model.MailingRecord{
		mailing("A", "m1", daysAgo(5)),
		mailing("B", "m2", daysAgo(2)),
		mailing("C", "m3", daysAgo(40)),
	}
}

func TestSelectCandidatesOrdersByRecencyAndDropsOldContent(t *testing.T) {
	got := SelectCandidates(testConfig(), scenarioLog(), nil, testNow)
	assert.Equal(t, []string{"B", "A"}, contentIDs(got))
}

func TestSelectCandidatesRespectsQuantityLimit(t *testing.T) {
	cfg := testConfig()
	cfg.QuantityLimit = 1

	got := SelectCandidates(cfg, scenarioLog(), nil, testNow)
	assert.Equal(t, []string{"B"}, contentIDs(got))
}

func TestSelectCandidatesExcludesPreviouslyDigestedContent(t *testing.T) {
	history := NewHistory([]model.Digest{{
		ID:        1,
		Status:    model.StatusPrepared,
		CreatedAt: daysAgo(1),
		Items:     []model.DigestItem{{ContentID: "A", ContentType: "article", MailingIDs: []string{"m1"}}},
	}})

	got := SelectCandidates(testConfig(), scenarioLog(), history, testNow)
	assert.Equal(t, []string{"B"}, contentIDs(got))
}

func TestSelectCandidatesIncludesUpdatesOnlyAfterResend(t *testing.T) {
	records := append(scenarioLog(), mailing("A", "m4", daysAgo(1)))
	history := NewHistory([]model.Digest{{
		ID:        1,
		Status:    model.StatusSent,
		CreatedAt: daysAgo(3),
		Items: []model.DigestItem{
			{ContentID: "A", ContentType: "article", MailingIDs: []string{"m1"}},
			{ContentID: "B", ContentType: "article", MailingIDs: []string{"m2"}},
		},
	}})

	cfg := testConfig()
	cfg.IncludeUpdates = true
	got := SelectCandidates(cfg, records, history, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ContentID)
	assert.Equal(t, []string{"m4", "m1"}, got[0].MailingIDs)
	assert.Equal(t, daysAgo(1), got[0].LatestSentAt)

	cfg.IncludeUpdates = false
	assert.Empty(t, SelectCandidates(cfg, records, history, testNow))
}

func TestSelectCandidatesUsesLatestDigestForUpdates(t *testing.T) {
	records := []model.MailingRecord{mailing("A", "m1", daysAgo(4))}
	history := NewHistory([]model.Digest{
		{ID: 1, CreatedAt: daysAgo(6), Items: []model.DigestItem{{ContentID: "A"}}},
		{ID: 2, CreatedAt: daysAgo(2), Items: []model.DigestItem{{ContentID: "A"}}},
	})

	cfg := testConfig()
	cfg.IncludeUpdates = true
	assert.Empty(t, SelectCandidates(cfg, records, history, testNow))
}

func TestSelectCandidatesFilters(t *testing.T) {
	records := []model.MailingRecord{
		mailing("A", "m1", daysAgo(1)),
		{ContentID: "B", ContentType: "event", Language: "en", MailingID: "m2", SentAt: daysAgo(1)},
		{ContentID: "C", ContentType: "article", Language: "fr", MailingID: "m3", SentAt: daysAgo(1)},
		mailing("D", "m4", daysAgo(30)),
	}

	cfg := testConfig()
	cfg.AllowedTypes = []string{"article"}
	got := SelectCandidates(cfg, records, nil, testNow)
	assert.Equal(t, []string{"A"}, contentIDs(got))

	cfg.AllowedTypes = nil
	got = SelectCandidates(cfg, records, nil, testNow)
	assert.Equal(t, []string{"A", "B"}, contentIDs(got))
}

func TestSelectCandidatesGroupsMailingsPerContent(t *testing.T) {
	records := []model.MailingRecord{
		mailing("A", "m1", daysAgo(10)),
		mailing("A", "m2", daysAgo(3)),
		mailing("A", "m2", daysAgo(3)),
		mailing("A", "m3", daysAgo(45)),
	}

	got := SelectCandidates(testConfig(), records, nil, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"m2", "m1"}, got[0].MailingIDs)
	assert.Equal(t, daysAgo(3), got[0].LatestSentAt)
}

func TestSelectCandidatesBreaksTiesByContentID(t *testing.T) {
	sentAt := daysAgo(2)
	records := []model.MailingRecord{
		mailing("c", "m1", sentAt),
		mailing("a", "m2", sentAt),
		mailing("b", "m3", sentAt),
	}

	cfg := testConfig()
	cfg.QuantityLimit = 2
	got := SelectCandidates(cfg, records, nil, testNow)
	assert.Equal(t, []string{"a", "b"}, contentIDs(got))
}

func TestSelectCandidatesKeepsTheMostRecentWhenTruncating(t *testing.T) {
	var records []model.MailingRecord
	for i := 1; i <= 20; i++ {
		records = append(records, mailing(fmt.Sprintf("c%02d", i), fmt.Sprintf("m%02d", i), daysAgo(i)))
	}

	cfg := testConfig()
	cfg.QuantityLimit = 5
	got := SelectCandidates(cfg, records, nil, testNow)
	assert.Equal(t, []string{"c01", "c02", "c03", "c04", "c05"}, contentIDs(got))
	for _, c := range got {
		assert.True(t, c.LatestSentAt.After(cfg.Cutoff(testNow)))
	}
}

func TestSelectCandidatesIsIdempotent(t *testing.T) {
	records := []model.MailingRecord{
		mailing("x", "m1", daysAgo(3)),
		mailing("y", "m2", daysAgo(3)),
		mailing("z", "m3", daysAgo(1)),
		mailing("x", "m4", daysAgo(2)),
	}
	reversed := []model.MailingRecord{records[3], records[2], records[1], records[0]}

	first := SelectCandidates(testConfig(), records, nil, testNow)
	second := SelectCandidates(testConfig(), records, nil, testNow)
	third := SelectCandidates(testConfig(), reversed, nil, testNow)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestSelectCandidatesEmpty(t *testing.T) {
	got := SelectCandidates(testConfig(), nil, nil, testNow)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.QuantityLimit = 0
	var cerr *ConfigurationError
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.Equal(t, "quantity_limit", cerr.Field)

	cfg = testConfig()
	cfg.MaxAgeDays = -1
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.Equal(t, "age_in_days", cerr.Field)

	cfg = testConfig()
	cfg.Language = " "
	require.ErrorAs(t, cfg.Validate(), &cerr)
	assert.Equal(t, "language", cerr.Field)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.StatusCreated, model.StatusPrepared))
	assert.True(t, CanTransition(model.StatusCreated, model.StatusFailed))
	assert.True(t, CanTransition(model.StatusPrepared, model.StatusSent))
	assert.True(t, CanTransition(model.StatusPrepared, model.StatusFailed))

	assert.False(t, CanTransition(model.StatusCreated, model.StatusSent))
	assert.False(t, CanTransition(model.StatusPrepared, model.StatusCreated))
	assert.False(t, CanTransition(model.StatusSent, model.StatusFailed))
	assert.False(t, CanTransition(model.StatusFailed, model.StatusPrepared))
	assert.False(t, CanTransition(model.StatusFailed, model.StatusSent))
}
