// Package migrate moves every uploaded file referenced by a backup to a
// new site and rewrites the backup to point at the new copies.
package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/config"
	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/mapper"
	"webhook-migrate/internal/models"
	"webhook-migrate/internal/pipeline"
	"webhook-migrate/internal/request"
	"webhook-migrate/internal/schema"
	"webhook-migrate/internal/uploader"
	"webhook-migrate/pkg/logger"
)

type Options struct {
	// MigrateFrom is the origin relative asset URLs are resolved against.
	MigrateFrom string
	UploadURL   string
	SiteName    string
	SecretKey   string

	// Requests, when set, are uploaded instead of the ones derived from
	// the backup. Used to resume a previous run from its errors file.
	Requests []*models.Request

	Concurrency int
	Uploader    pipeline.Uploader
	Delay       func(attempt int) time.Duration
	Observer    pipeline.Observer
	Logger      logrus.FieldLogger
}

// Validate reports the first required option left empty.
func (o *Options) Validate() error {
	for _, opt := range []struct{ key, value string }{
		{"migrateFrom", o.MigrateFrom},
		{"uploadUrl", o.UploadURL},
		{"siteName", o.SiteName},
		{"secretKey", o.SecretKey},
	} {
		if strings.TrimSpace(opt.value) == "" {
			return failure.MissingConfiguration(opt.key)
		}
	}
	return nil
}

type Result struct {
	Backup map[string]any
	// Failed holds the requests still errored after the last sweep; nil
	// when every upload succeeded.
	Failed    []*models.Request
	Succeeded int
	Warnings  []mapper.Warning
}

// Run migrates backup in place. Missing options and an unreadable schema
// are returned as errors before any upload starts; per-request failures
// never abort the run and are reported in Result.Failed.
func Run(ctx context.Context, backup map[string]any, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := logger.OrNop(opts.Logger).WithField("component", "migrate")

	reqs := opts.Requests
	if reqs == nil {
		s, err := schema.FromTree(backup)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		b := &request.Builder{Origin: config.NormalizeOrigin(opts.MigrateFrom), Logger: opts.Logger}
		reqs = b.Build(backup, schema.NewIndex(s))
	}
	log.WithField("requests", len(reqs)).Info("file requests to process")

	up := opts.Uploader
	if up == nil {
		up = uploader.NewClient(
			uploader.NewHTTPClient(2*time.Minute, 10*time.Second, 1<<20),
			uploader.Target{Endpoint: opts.UploadURL, Site: opts.SiteName, Token: opts.SecretKey},
		)
	}
	p := &pipeline.Pipeline{
		Uploader:    up,
		Concurrency: opts.Concurrency,
		Delay:       opts.Delay,
		Logger:      opts.Logger,
		Observer:    opts.Observer,
	}
	part := p.Run(ctx, reqs)

	res := &Result{
		Backup:    backup,
		Succeeded: len(part.Succeeded),
		Warnings:  mapper.Apply(backup, part.Succeeded, opts.Logger),
	}
	if len(part.Failed) > 0 {
		res.Failed = part.Failed
	}
	log.WithFields(logrus.Fields{
		"processed": len(reqs),
		"errored":   len(part.Failed),
		"warnings":  len(res.Warnings),
	}).Info("migration finished")
	return res, nil
}

// Completion receives the outcome of Migrate: the requests that still
// failed (nil when none did) and the migrated backup.
type Completion func(failed []*models.Request, backup map[string]any)

// Migrate runs Run and hands its outcome to done exactly once. When the
// run cannot start, done is not called and the error is returned.
func Migrate(ctx context.Context, backup map[string]any, opts Options, done Completion) error {
	res, err := Run(ctx, backup, opts)
	if err != nil {
		return err
	}
	if done != nil {
		done(res.Failed, res.Backup)
	}
	return nil
}
