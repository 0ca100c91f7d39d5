// Package jobs runs migrations in the background and keeps their outcome
// around for a while so clients can poll for it.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluele/gcache"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/migrate"
	"webhook-migrate/internal/models"
	"webhook-migrate/pkg/logger"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	// StatusFailed means the migration could not run at all. A run that
	// finished with some failed uploads is StatusDone.
	StatusFailed Status = "failed"
)

var ErrNotFound = errors.New("job not found")

// Job is a snapshot of one migration.
type Job struct {
	ID       string            `json:"id"`
	Status   Status            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Failed   []*models.Request `json:"failed,omitempty"`
	Backup   map[string]any    `json:"backup,omitempty"`
	Started  time.Time         `json:"started"`
	Finished *time.Time        `json:"finished,omitempty"`
}

type Store struct {
	ctx   context.Context
	cache gcache.Cache
	log   logrus.FieldLogger

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewStore keeps up to size jobs, each for ttl after it was last
// updated. Migrations started on the store stop when ctx is done.
func NewStore(ctx context.Context, size int, ttl time.Duration, log logrus.FieldLogger) *Store {
	return &Store{
		ctx:   ctx,
		cache: gcache.New(size).LRU().Expiration(ttl).Build(),
		log:   logger.OrNop(log).WithField("component", "jobs"),
	}
}

// Start validates opts and runs the migration of backup in the
// background. The returned id identifies the job in Get.
func (s *Store) Start(backup map[string]any, opts migrate.Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	id := uuid.Must(uuid.NewV4()).String()
	s.put(&Job{ID: id, Status: StatusRunning, Started: time.Now()})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.WithField("job", id)
		log.Info("migration started")
		err := migrate.Migrate(s.ctx, backup, opts, func(failed []*models.Request, migrated map[string]any) {
			s.finish(id, func(j *Job) {
				j.Status = StatusDone
				j.Failed = failed
				j.Backup = migrated
			})
			log.WithField("failed", len(failed)).Info("migration done")
		})
		if err != nil {
			s.finish(id, func(j *Job) {
				j.Status = StatusFailed
				j.Error = err.Error()
			})
			log.WithError(err).Warn("migration failed")
		}
	}()
	return id, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.cache.Get(id)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return *v.(*Job), nil
}

// Wait blocks until every started migration has returned.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.cache.Set(j.ID, j)
}

// finish applies update to a copy of the job and stores the copy, so
// snapshots handed out by Get are never modified.
func (s *Store) finish(id string, update func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.cache.Get(id)
	if err != nil {
		// evicted while running
		return
	}
	j := *v.(*Job)
	update(&j)
	now := time.Now()
	j.Finished = &now
	_ = s.cache.Set(id, &j)
}
