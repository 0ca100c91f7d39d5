// Package pipeline uploads a batch of Requests, retrying failures in
// sweeps separated by exponential backoff.
package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/models"
	"webhook-migrate/pkg/logger"
)

const (
	// MaxAttempt is the number of the last sweep; sweeps run for
	// attempts 0 through MaxAttempt.
	MaxAttempt = 20

	maxBackoff = 32000 * time.Millisecond
	jitter     = 10 * time.Millisecond
)

type Uploader interface {
	Upload(ctx context.Context, r *models.Request) (*models.UploadResult, error)
}

// Observer is told about pipeline progress. Methods may be called from
// several goroutines at once.
type Observer interface {
	SweepStarted(attempt, pending int)
	UploadFinished(r *models.Request, err error, elapsed time.Duration)
	RunFinished(p Partition)
}

type Pipeline struct {
	Uploader Uploader
	// Concurrency bounds in-flight uploads per sweep; 0 means unbounded.
	Concurrency int
	// MaxAttempt overrides the package default when positive.
	MaxAttempt int
	// Delay overrides the backoff before each sweep.
	Delay    func(attempt int) time.Duration
	Logger   logrus.FieldLogger
	Observer Observer
}

// Partition splits a processed batch by outcome.
type Partition struct {
	Succeeded []*models.Request
	Failed    []*models.Request
}

// Delay is min(2^attempt ms, 32s) plus up to 10ms of jitter.
func Delay(attempt int) time.Duration {
	backoff := maxBackoff
	if attempt < 0 {
		attempt = 0
	}
	if attempt < 16 {
		if d := time.Duration(1<<attempt) * time.Millisecond; d < maxBackoff {
			backoff = d
		}
	}
	return backoff + time.Duration(rand.Int63n(int64(jitter)))
}

// Run uploads every Request in reqs that has no body yet. Failures are
// retried on later sweeps until none remain or the last attempt has run.
// Requests are updated in place; already succeeded ones are never sent
// again. Cancelling ctx stops before the next sweep.
func (p *Pipeline) Run(ctx context.Context, reqs []*models.Request) Partition {
	log := logger.OrNop(p.Logger).WithField("component", "pipeline")
	maxAttempt := MaxAttempt
	if p.MaxAttempt > 0 {
		maxAttempt = p.MaxAttempt
	}
	delay := p.Delay
	if delay == nil {
		delay = Delay
	}

	exhausted := false
	for attempt := 0; ; attempt++ {
		pending := Pending(reqs)
		if len(pending) == 0 {
			break
		}
		if attempt > maxAttempt {
			exhausted = true
			break
		}
		if err := sleep(ctx, delay(attempt)); err != nil {
			log.WithError(err).WithField("pending", len(pending)).Warn("upload run cancelled")
			break
		}
		log.WithFields(logrus.Fields{"attempt": attempt, "pending": len(pending)}).Debug("starting sweep")
		if p.Observer != nil {
			p.Observer.SweepStarted(attempt, len(pending))
		}
		p.sweep(ctx, pending)
	}

	for _, r := range reqs {
		switch {
		case r.Succeeded():
		case exhausted:
			r.ErrorKind = failure.KindExhaustedRetries
		case r.Error == "":
			r.Fail(context.Cause(ctx))
		}
	}

	part := Split(reqs)
	log.WithFields(logrus.Fields{
		"succeeded": len(part.Succeeded),
		"failed":    len(part.Failed),
	}).Info("uploads finished")
	if p.Observer != nil {
		p.Observer.RunFinished(part)
	}
	return part
}

func (p *Pipeline) sweep(ctx context.Context, pending []*models.Request) {
	var sem chan struct{}
	if p.Concurrency > 0 {
		sem = make(chan struct{}, p.Concurrency)
	}
	var wg sync.WaitGroup
	for _, r := range pending {
		r := r
		if sem != nil {
			sem <- struct{}{} // acquire
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			p.upload(ctx, r)
		}()
	}
	wg.Wait()
}

func (p *Pipeline) upload(ctx context.Context, r *models.Request) {
	start := time.Now()
	r.Attempts++
	body, err := p.Uploader.Upload(ctx, r)
	if err != nil {
		r.Fail(err)
	} else {
		r.Succeed(body)
	}
	if p.Observer != nil {
		p.Observer.UploadFinished(r, err, time.Since(start))
	}
}

// Pending returns the Requests still without a success body.
func Pending(reqs []*models.Request) []*models.Request {
	var out []*models.Request
	for _, r := range reqs {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func Split(reqs []*models.Request) Partition {
	var part Partition
	for _, r := range reqs {
		if r.Succeeded() {
			part.Succeeded = append(part.Succeeded, r)
		} else {
			part.Failed = append(part.Failed, r)
		}
	}
	return part
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
