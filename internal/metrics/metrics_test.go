package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/models"
	"webhook-migrate/internal/pipeline"
)

type flaky struct{ calls int }

func (f *flaky) Upload(context.Context, *models.Request) (*models.UploadResult, error) {
	f.calls++
	if f.calls == 1 {
		return nil, failure.Malformed(errors.New("garbage"))
	}
	return &models.UploadResult{URL: "u", ResizeURL: "r"}, nil
}

func TestCollectorFollowsPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	p := &pipeline.Pipeline{
		Uploader: &flaky{},
		Delay:    func(int) time.Duration { return 0 },
		Observer: c,
	}
	p.Run(context.Background(), []*models.Request{{Kind: models.RequestHTML, SourceURL: "http://x"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.sweeps))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("html", "malformed_response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("html", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.failed))
}

func TestUnclassifiedErrorOutcome(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.UploadFinished(&models.Request{Kind: models.RequestImage}, errors.New("x"), time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("image", "error")))
}
