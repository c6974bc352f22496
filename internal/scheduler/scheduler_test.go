package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-digest-go/internal/config"
	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/model"
)

type fakeRunner struct {
	result    *digest.PrepareResult
	err       error
	notified  []uint
	notifyErr error
}

func (f *fakeRunner) PrepareDigest(ctx context.Context, s digest.Settings) (*digest.PrepareResult, error) {
	return f.result, f.err
}

func (f *fakeRunner) NotifyValidators(ctx context.Context, s digest.Settings, id uint) (*model.Digest, error) {
	f.notified = append(f.notified, id)
	return &model.Digest{ID: id, Status: model.StatusPrepared}, f.notifyErr
}

type staticSettings struct{ s digest.Settings }

func (s staticSettings) Settings() digest.Settings { return s.s }

type countingIngester struct{ runs int }

func (c *countingIngester) Run(ctx context.Context) (int64, error) {
	c.runs++
	return 3, nil
}

func testSchedulerConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{WeekDay: 1, Hour: 8, IngestIntervalMinutes: 60}
}

func TestDigestCron(t *testing.T) {
	assert.Equal(t, "0 0 8 * * 1", DigestCron(testSchedulerConfig()))
}

func TestSchedulerRestart(t *testing.T) {
	sched := NewScheduler(testSchedulerConfig(), &fakeRunner{}, &countingIngester{}, staticSettings{})

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	assert.Error(t, sched.Start())

	next := sched.GetNextRun()
	assert.False(t, next.IsZero())
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 8, next.Hour())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.True(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	// context should be active after restart
	require.NotNil(t, sched.ctx)
	assert.NoError(t, sched.ctx.Err())
	require.NoError(t, sched.Stop())
}

func TestRunOncePreparesAndNotifies(t *testing.T) {
	runner := &fakeRunner{result: &digest.PrepareResult{Digest: &model.Digest{ID: 4}}}
	sched := NewScheduler(testSchedulerConfig(), runner, nil, staticSettings{digest.Settings{Active: true}})

	res, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(4), res.Digest.ID)
	assert.Equal(t, []uint{4}, runner.notified)
}

func TestRunOnceEmptySelection(t *testing.T) {
	runner := &fakeRunner{result: &digest.PrepareResult{Empty: true}}
	sched := NewScheduler(testSchedulerConfig(), runner, nil, staticSettings{digest.Settings{Active: true}})

	res, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, runner.notified)
}

func TestRunOnceInactiveSkips(t *testing.T) {
	runner := &fakeRunner{err: errors.New("must not be called")}
	sched := NewScheduler(testSchedulerConfig(), runner, nil, staticSettings{})

	res, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Empty)
}

func TestRunOnceErrors(t *testing.T) {
	runner := &fakeRunner{err: digest.ErrPrepareInProgress}
	sched := NewScheduler(testSchedulerConfig(), runner, nil, staticSettings{digest.Settings{Active: true}})

	_, err := sched.RunOnce(context.Background())
	assert.ErrorIs(t, err, digest.ErrPrepareInProgress)

	runner = &fakeRunner{
		result:    &digest.PrepareResult{Digest: &model.Digest{ID: 2}},
		notifyErr: digest.ErrNothingRendered,
	}
	sched = NewScheduler(testSchedulerConfig(), runner, nil, staticSettings{digest.Settings{Active: true}})
	res, err := sched.RunOnce(context.Background())
	assert.ErrorIs(t, err, digest.ErrNothingRendered)
	assert.Equal(t, uint(2), res.Digest.ID)
}

func TestIngestOnce(t *testing.T) {
	ing := &countingIngester{}
	sched := NewScheduler(testSchedulerConfig(), &fakeRunner{}, ing, staticSettings{})

	n, err := sched.IngestOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, ing.runs)

	n, err = NewScheduler(testSchedulerConfig(), &fakeRunner{}, nil, staticSettings{}).IngestOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type blockingIngester struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingIngester) Run(ctx context.Context) (int64, error) {
	close(b.started)
	<-b.release
	return 1, nil
}

func TestWaitDrainsJobsAndRejectsNewRuns(t *testing.T) {
	ing := &blockingIngester{started: make(chan struct{}), release: make(chan struct{})}
	runner := &fakeRunner{err: errors.New("prepare after shutdown")}
	sched := NewScheduler(testSchedulerConfig(), runner, ing, staticSettings{digest.Settings{Active: true}})

	go func() { _, _ = sched.IngestOnce(context.Background()) }()
	<-ing.started

	waited := make(chan struct{})
	go func() {
		sched.Wait()
		close(waited)
	}()

	require.Eventually(t, func() bool {
		_, err := sched.RunOnce(context.Background())
		return errors.Is(err, ErrClosing)
	}, time.Second, 5*time.Millisecond)

	select {
	case <-waited:
		t.Fatal("Wait returned while an ingestion was running")
	default:
	}

	close(ing.release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the ingestion finished")
	}

	_, err := sched.IngestOnce(context.Background())
	assert.ErrorIs(t, err, ErrClosing)
	assert.ErrorIs(t, sched.Start(), ErrClosing)
	assert.Empty(t, runner.notified)
}
