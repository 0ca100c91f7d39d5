package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/keypath"
	"webhook-migrate/internal/models"
)

type fakeUploader struct {
	mu       sync.Mutex
	calls    map[string]int
	failFor  func(src string, call int) bool
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (f *fakeUploader) Upload(ctx context.Context, r *models.Request) (*models.UploadResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[r.SourceURL]++
	call := f.calls[r.SourceURL]
	f.mu.Unlock()

	if f.failFor != nil && f.failFor(r.SourceURL, call) {
		return nil, failure.Transport(fmt.Errorf("boom %d", call))
	}
	return &models.UploadResult{URL: "http://new" + r.SourceURL, ResizeURL: "http://img" + r.SourceURL}, nil
}

func (f *fakeUploader) count(src string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[src]
}

func noDelay(int) time.Duration { return 0 }

func batch(n int) []*models.Request {
	reqs := make([]*models.Request, n)
	for i := range reqs {
		reqs[i] = &models.Request{
			Keypath:   keypath.Of("data", "posts", fmt.Sprintf("-K%d", i), "hero"),
			Kind:      models.RequestImage,
			SourceURL: fmt.Sprintf("/r%d", i),
		}
	}
	return reqs
}

func TestPersistentFailuresAreIsolated(t *testing.T) {
	up := &fakeUploader{failFor: func(src string, _ int) bool { return src == "/r1" || src == "/r3" }}
	p := &Pipeline{Uploader: up, Delay: noDelay}
	reqs := batch(5)

	part := p.Run(context.Background(), reqs)

	require.Len(t, part.Succeeded, 3)
	require.Len(t, part.Failed, 2)
	for _, r := range part.Succeeded {
		assert.Empty(t, r.Error)
		assert.Equal(t, "http://new"+r.SourceURL, r.Body.URL)
		assert.Equal(t, 1, up.count(r.SourceURL), "succeeded request must not be sent again")
		assert.Equal(t, 1, r.Attempts)
	}
	for _, r := range part.Failed {
		assert.Nil(t, r.Body)
		assert.NotEmpty(t, r.Error)
		assert.Equal(t, failure.KindExhaustedRetries, r.ErrorKind)
		assert.Equal(t, MaxAttempt+1, r.Attempts)
		assert.Equal(t, MaxAttempt+1, up.count(r.SourceURL))
	}
}

func TestRetryClearsError(t *testing.T) {
	up := &fakeUploader{failFor: func(_ string, call int) bool { return call <= 2 }}
	p := &Pipeline{Uploader: up, Delay: noDelay}
	reqs := batch(3)

	part := p.Run(context.Background(), reqs)

	assert.Len(t, part.Succeeded, 3)
	assert.Empty(t, part.Failed)
	for _, r := range reqs {
		assert.Equal(t, 3, r.Attempts)
		assert.Empty(t, r.Error)
		assert.Empty(t, r.ErrorKind)
		assert.NotNil(t, r.Body)
	}
}

func TestAlreadySucceededPassThrough(t *testing.T) {
	up := &fakeUploader{}
	p := &Pipeline{Uploader: up, Delay: noDelay}
	reqs := batch(2)
	done := &models.UploadResult{URL: "kept", ResizeURL: "kept"}
	reqs[0].Succeed(done)

	part := p.Run(context.Background(), reqs)

	assert.Len(t, part.Succeeded, 2)
	assert.Same(t, done, reqs[0].Body)
	assert.Equal(t, 0, up.count("/r0"))
	assert.Equal(t, 1, up.count("/r1"))
}

func TestCustomAttemptCeiling(t *testing.T) {
	up := &fakeUploader{failFor: func(string, int) bool { return true }}
	var attempts []int
	p := &Pipeline{
		Uploader:   up,
		MaxAttempt: 3,
		Delay: func(n int) time.Duration {
			attempts = append(attempts, n)
			return 0
		},
	}
	part := p.Run(context.Background(), batch(1))
	assert.Equal(t, []int{0, 1, 2, 3}, attempts)
	require.Len(t, part.Failed, 1)
	assert.Equal(t, 4, part.Failed[0].Attempts)
}

func TestConcurrencyBound(t *testing.T) {
	up := &fakeUploader{hold: 5 * time.Millisecond}
	p := &Pipeline{Uploader: up, Delay: noDelay, Concurrency: 2}
	part := p.Run(context.Background(), batch(8))
	assert.Len(t, part.Succeeded, 8)
	assert.LessOrEqual(t, up.peak.Load(), int32(2))
}

func TestUnboundedFanOut(t *testing.T) {
	up := &fakeUploader{hold: 20 * time.Millisecond}
	p := &Pipeline{Uploader: up, Delay: noDelay}
	p.Run(context.Background(), batch(6))
	assert.Equal(t, int32(6), up.peak.Load())
}

func TestCancelledBeforeFirstSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	up := &fakeUploader{}
	p := &Pipeline{Uploader: up, Delay: func(int) time.Duration { return time.Hour }}

	part := p.Run(ctx, batch(2))

	assert.Empty(t, part.Succeeded)
	require.Len(t, part.Failed, 2)
	for _, r := range part.Failed {
		assert.True(t, strings.Contains(r.Error, context.Canceled.Error()))
		assert.Zero(t, r.Attempts)
	}
}

func TestEmptyBatch(t *testing.T) {
	p := &Pipeline{Uploader: &fakeUploader{}, Delay: func(int) time.Duration {
		panic("no sweep expected")
	}}
	part := p.Run(context.Background(), nil)
	assert.Empty(t, part.Succeeded)
	assert.Empty(t, part.Failed)
}

func TestDelayBounds(t *testing.T) {
	for n := 0; n <= 40; n++ {
		base := 32000 * time.Millisecond
		if n < 15 {
			base = time.Duration(1<<n) * time.Millisecond
		}
		for i := 0; i < 20; i++ {
			d := Delay(n)
			assert.GreaterOrEqual(t, d, base, "attempt %d", n)
			assert.Less(t, d, base+10*time.Millisecond, "attempt %d", n)
		}
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	sweeps  []int
	errs    int
	oks     int
	summary *Partition
}

func (o *recordingObserver) SweepStarted(attempt, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps = append(o.sweeps, attempt)
}

func (o *recordingObserver) UploadFinished(_ *models.Request, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errs++
		return
	}
	o.oks++
}

func (o *recordingObserver) RunFinished(p Partition) { o.summary = &p }

func TestObserver(t *testing.T) {
	up := &fakeUploader{failFor: func(src string, call int) bool { return src == "/r0" && call == 1 }}
	obs := &recordingObserver{}
	p := &Pipeline{Uploader: up, Delay: noDelay, Observer: obs}
	p.Run(context.Background(), batch(2))

	assert.Equal(t, []int{0, 1}, obs.sweeps)
	assert.Equal(t, 1, obs.errs)
	assert.Equal(t, 2, obs.oks)
	require.NotNil(t, obs.summary)
	assert.Len(t, obs.summary.Succeeded, 2)
}

func TestSplitAndPending(t *testing.T) {
	reqs := batch(3)
	reqs[0].Succeed(&models.UploadResult{URL: "u"})
	reqs[1].Fail(errors.New("x"))
	assert.Len(t, Pending(reqs), 2)
	part := Split(reqs)
	assert.Len(t, part.Succeeded, 1)
	assert.Len(t, part.Failed, 2)
}
