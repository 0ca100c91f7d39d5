package ioformats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"webhook-migrate/internal/models"
)

// ReadBackup reads a backup document. Numbers are kept as json.Number so
// they are written back exactly as read.
func ReadBackup(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeBackup(f)
}

func DecodeBackup(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	if doc == nil {
		return nil, errors.New("backup is empty")
	}
	return doc, nil
}

// ReadRequests reads a request list written by a previous run, so the
// run can be resumed.
func ReadRequests(path string) ([]*models.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs []*models.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return reqs, nil
}

// WriteJSON writes v to path with two-space indentation.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
