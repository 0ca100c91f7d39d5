package richtext

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"webhook-migrate/internal/failure"
)

// ImageBlockSelector matches the figures the editor stores embedded images in.
const ImageBlockSelector = `figure[data-type="image"]`

const sizeMarker = "=s"

// Link is the upload target of one image block.
type Link struct {
	Ordinal int
	Href    string
}

// Document is a parsed markup fragment. Parsing never adds html/head/body
// wrappers, so Render gives back only the fragment.
type Document struct {
	root *html.Node
	doc  *goquery.Document
}

func Parse(markup string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return &Document{root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

// ImageBlocks returns the image figures in document order.
func (d *Document) ImageBlocks() *goquery.Selection {
	return d.doc.Find(ImageBlockSelector)
}

// Links returns, for every image block carrying an anchor href, the
// block's ordinal among all image blocks and the href. Blocks without a
// link are left out.
func (d *Document) Links() []Link {
	var links []Link
	d.ImageBlocks().Each(func(i int, s *goquery.Selection) {
		href, ok := s.Find("a").Attr("href")
		if !ok {
			return
		}
		links = append(links, Link{Ordinal: i, Href: href})
	})
	return links
}

// RewriteImage points the image block at ordinal to its new location: the
// anchor gets url, the img gets resizeURL as data-resize-src and as src.
// A src carrying a size suffix keeps it. When the img has no src the
// other attributes are still written and a missing_source_attribute
// error is returned.
func (d *Document) RewriteImage(ordinal int, url, resizeURL string) error {
	block := d.ImageBlocks().Eq(ordinal)
	if block.Length() == 0 {
		return fmt.Errorf("no image block at position %d", ordinal)
	}
	block.Find("a").SetAttr("href", url)
	img := block.Find("img")
	img.SetAttr("data-resize-src", resizeURL)

	src, ok := img.Attr("src")
	if !ok || src == "" {
		return failure.Wrap(errors.New("image block has no src attribute"), failure.KindMissingSourceAttribute, false)
	}
	img.SetAttr("src", ResizedSource(src, resizeURL))
	return nil
}

// ResizedSource carries the "=s<size>" suffix of oldSrc over to resizeURL.
func ResizedSource(oldSrc, resizeURL string) string {
	parts := strings.Split(oldSrc, sizeMarker)
	if len(parts) == 2 {
		return resizeURL + sizeMarker + parts[1]
	}
	return resizeURL
}

func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render markup: %w", err)
		}
	}
	return buf.String(), nil
}
