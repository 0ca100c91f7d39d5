package models

import (
	"net/url"

	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/keypath"
)

type RequestKind string

const (
	// RequestImage re-uploads an asset field and merges the result into it.
	RequestImage RequestKind = "image"
	// RequestHTML re-uploads an image embedded in rich-text markup. Its
	// keypath ends with the ordinal of the image block in that markup.
	RequestHTML RequestKind = "html"
)

// UploadResult is what the upload service returns for a stored file.
type UploadResult struct {
	URL       string `json:"url"`
	ResizeURL string `json:"resize_url"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Request is one file to move. Once processed it holds either Body or
// Error, never both.
type Request struct {
	Keypath     keypath.Keypath `json:"key"`
	Kind        RequestKind     `json:"kind"`
	SourceURL   string          `json:"sourceUrl"`
	WantsResize bool            `json:"wantsResize"`
	Attempts    int             `json:"attempts"`

	Body      *UploadResult `json:"responseBody,omitempty"`
	Error     string        `json:"errorBody,omitempty"`
	ErrorKind failure.Kind  `json:"errorKind,omitempty"`
}

func (r *Request) Succeeded() bool { return r.Body != nil }

func (r *Request) Failed() bool { return r.Body == nil && r.Error != "" }

// Succeed records a successful upload and clears any earlier error.
func (r *Request) Succeed(body *UploadResult) {
	r.Body = body
	r.Error = ""
	r.ErrorKind = ""
}

// Fail records err, replacing any earlier error.
func (r *Request) Fail(err error) {
	r.Body = nil
	r.Error = err.Error()
	r.ErrorKind = failure.KindOf(err)
	if r.ErrorKind == "" {
		r.ErrorKind = failure.KindTransport
	}
}

// Form is the upload service payload for r.
func (r *Request) Form(site, token string) url.Values {
	form := url.Values{}
	form.Set("url", r.SourceURL)
	if r.WantsResize {
		form.Set("resize_url", "true")
	}
	form.Set("site", site)
	form.Set("token", token)
	return form
}
