// Package mapper writes successful uploads back into the backup tree.
package mapper

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/keypath"
	"webhook-migrate/internal/models"
	"webhook-migrate/internal/richtext"
	"webhook-migrate/pkg/logger"
)

// Warning is a request whose result could only be partly written.
type Warning struct {
	Keypath keypath.Keypath
	Err     error
}

// Apply merges every succeeded Request into tree and returns the
// warnings raised on the way. Requests without a body are ignored.
func Apply(tree any, reqs []*models.Request, log logrus.FieldLogger) []Warning {
	log = logger.OrNop(log).WithField("component", "mapper")
	var warnings []Warning
	warn := func(p keypath.Keypath, err error) {
		log.WithError(err).WithField("keypath", p.String()).Warn("could not fully apply upload")
		warnings = append(warnings, Warning{Keypath: p, Err: err})
	}
	for _, r := range reqs {
		if !r.Succeeded() {
			continue
		}
		var err error
		switch r.Kind {
		case models.RequestImage:
			err = applyImage(tree, r)
		case models.RequestHTML:
			err = applyHTML(tree, r)
		default:
			err = fmt.Errorf("unknown request kind %q", r.Kind)
		}
		if err != nil {
			warn(r.Keypath, err)
		}
	}
	return warnings
}

// applyImage sets url and resize_url on the asset, keeping its other fields.
func applyImage(tree any, r *models.Request) error {
	v, _ := keypath.Get(tree, r.Keypath)
	if asset, ok := v.(map[string]any); ok {
		asset["url"] = r.Body.URL
		asset["resize_url"] = r.Body.ResizeURL
		return nil
	}
	asset := map[string]any{"url": r.Body.URL, "resize_url": r.Body.ResizeURL}
	if !keypath.Set(tree, r.Keypath, asset) {
		return errors.New("asset location no longer exists")
	}
	return nil
}

// applyHTML rewrites the image block the request points at inside the
// markup stored at the request's parent keypath.
func applyHTML(tree any, r *models.Request) error {
	last, _ := r.Keypath.Last()
	ordinal, ok := last.IndexValue()
	if !ok {
		return errors.New("html request keypath does not end in a block position")
	}
	parent := r.Keypath.Parent()
	v, _ := keypath.Get(tree, parent)
	markup, ok := v.(string)
	if !ok {
		return errors.New("rich text field is not a string")
	}
	doc, err := richtext.Parse(markup)
	if err != nil {
		return err
	}

	rewriteErr := doc.RewriteImage(ordinal, r.Body.URL, r.Body.ResizeURL)
	if rewriteErr != nil && !failure.Is(rewriteErr, failure.KindMissingSourceAttribute) {
		return rewriteErr
	}
	out, err := doc.Render()
	if err != nil {
		return err
	}
	keypath.Set(tree, parent, out)
	return rewriteErr
}
