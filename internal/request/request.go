// Package request turns enumerated keypaths into upload Requests.
package request

import (
	"strings"

	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/enumerate"
	"webhook-migrate/internal/keypath"
	"webhook-migrate/internal/models"
	"webhook-migrate/internal/richtext"
	"webhook-migrate/internal/schema"
	"webhook-migrate/pkg/logger"
)

type Builder struct {
	// Origin is prefixed to relative asset URLs, e.g. "http://old.example.com".
	Origin string
	Logger logrus.FieldLogger
}

// Build derives every Request for tree: asset fields first, then images
// embedded in rich-text fields.
func (b *Builder) Build(tree any, idx *schema.Index) []*models.Request {
	reqs := b.Assets(tree, enumerate.Assets(tree, idx))
	return append(reqs, b.RichText(tree, enumerate.RichText(tree, idx))...)
}

// Assets builds one image Request per asset keypath that holds a url.
func (b *Builder) Assets(tree any, paths []keypath.Keypath) []*models.Request {
	log := logger.OrNop(b.Logger)
	var reqs []*models.Request
	for _, p := range paths {
		v, _ := keypath.Get(tree, p)
		asset, ok := v.(map[string]any)
		if !ok {
			log.WithField("keypath", p.String()).Debug("asset is not an object, skipping")
			continue
		}
		src, _ := asset["url"].(string)
		if src == "" {
			log.WithField("keypath", p.String()).Debug("asset has no url, skipping")
			continue
		}
		resize, _ := asset["resize_url"].(string)
		reqs = append(reqs, &models.Request{
			Keypath:     p,
			Kind:        models.RequestImage,
			SourceURL:   SourceURL(b.Origin, src),
			WantsResize: resize != "",
		})
	}
	return reqs
}

// RichText builds one html Request per linked image block in the markup
// at each keypath. The block's ordinal is appended to the keypath. Image
// blocks without a link are skipped without any error.
func (b *Builder) RichText(tree any, paths []keypath.Keypath) []*models.Request {
	log := logger.OrNop(b.Logger)
	var reqs []*models.Request
	for _, p := range paths {
		v, _ := keypath.Get(tree, p)
		markup, ok := v.(string)
		if !ok || markup == "" {
			continue
		}
		doc, err := richtext.Parse(markup)
		if err != nil {
			log.WithError(err).WithField("keypath", p.String()).Warn("unreadable rich text, skipping")
			continue
		}
		for _, link := range doc.Links() {
			reqs = append(reqs, &models.Request{
				Keypath:     p.Append(keypath.Index(link.Ordinal)),
				Kind:        models.RequestHTML,
				SourceURL:   SourceURL(b.Origin, link.Href),
				WantsResize: true,
			})
		}
	}
	return reqs
}

// SourceURL resolves u against origin unless u is already absolute.
func SourceURL(origin, u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	return origin + u
}
