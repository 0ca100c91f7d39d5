package uploader

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/models"
)

type HTTPClient struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
}

func NewHTTPClient(timeout, dialTimeout time.Duration, sizeCap int64) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		sizeCap:   sizeCap,
		userAgent: "webhook-migrate/1.0",
	}
}

// PostForm sends form to endpoint and parses the stored-file description
// the upload service answers with. Network failures and non-2xx statuses
// are transport errors; bodies that are not JSON or lack a url are
// malformed responses. Both are retryable.
func (h *HTTPClient) PostForm(ctx context.Context, endpoint string, form url.Values) (*models.UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, failure.Transport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, failure.Transport(fmt.Errorf("http status %d", resp.StatusCode))
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, failure.Malformed(err)
		}
		defer gz.Close()
		body = gz
	}

	// enforce a size cap
	data, err := io.ReadAll(io.LimitReader(body, h.sizeCap))
	if err != nil {
		return nil, failure.Transport(err)
	}
	return ParseResult(data)
}

// ParseResult reads an upload service response body.
func ParseResult(data []byte) (*models.UploadResult, error) {
	if !gjson.ValidBytes(data) {
		return nil, failure.Malformed(fmt.Errorf("response is not json: %.80q", data))
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, failure.Malformed(errors.New("response is not a json object"))
	}
	u := doc.Get("url").String()
	if u == "" {
		return nil, failure.Malformed(errors.New("response has no url"))
	}
	resize := doc.Get("resize_url")
	if !resize.Exists() {
		resize = doc.Get("resizeUrl")
	}
	return &models.UploadResult{
		URL:       u,
		ResizeURL: resize.String(),
		MimeType:  doc.Get("mimeType").String(),
		Size:      doc.Get("size").Int(),
	}, nil
}

// Target is where uploads go and whose credentials they carry.
type Target struct {
	Endpoint string
	Site     string
	Token    string
}

// Client uploads Requests to one Target.
type Client struct {
	http   *HTTPClient
	target Target
}

func NewClient(h *HTTPClient, t Target) *Client {
	return &Client{http: h, target: t}
}

func (c *Client) Upload(ctx context.Context, r *models.Request) (*models.UploadResult, error) {
	return c.http.PostForm(ctx, c.target.Endpoint, r.Form(c.target.Site, c.target.Token))
}
