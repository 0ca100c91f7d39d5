package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"webhook-migrate/internal/keypath"
)

// Kind is the control type of a field.
type Kind string

const (
	KindImage   Kind = "image"
	KindFile    Kind = "file"
	KindAudio   Kind = "audio"
	KindGallery Kind = "gallery"
	KindGrid    Kind = "grid"
	KindWysiwyg Kind = "wysiwyg"
	KindOther   Kind = "other"
)

// AssetKinds are the field kinds holding uploaded files.
var AssetKinds = []Kind{KindImage, KindFile, KindAudio, KindGallery}

func (k *Kind) UnmarshalText(text []byte) error {
	switch v := Kind(text); v {
	case KindImage, KindFile, KindAudio, KindGallery, KindGrid, KindWysiwyg:
		*k = v
	default:
		*k = KindOther
	}
	return nil
}

type Control struct {
	Name     string    `json:"name"`
	Kind     Kind      `json:"controlType"`
	Controls []Control `json:"controls,omitempty"`
}

type ContentType struct {
	OneOff   bool      `json:"oneOff"`
	Controls []Control `json:"controls"`
}

// Schema maps content type names to their definitions.
type Schema map[string]ContentType

// FromTree decodes the schema stored under the backup's "contentType" key.
func FromTree(root any) (Schema, error) {
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, errors.New("backup root is not an object")
	}
	raw, ok := doc["contentType"]
	if !ok {
		return nil, errors.New("backup has no contentType section")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode contentType: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode contentType: %w", err)
	}
	return s, nil
}

type typeIndex struct {
	oneOff   bool
	controls []Control
	fields   map[string]Kind
	grids    map[string]map[string]Kind
}

// Index answers field-kind questions about a Schema and derives the
// pattern keypaths for each kind. It never looks at record data.
type Index struct {
	names []string
	types map[string]*typeIndex
}

func NewIndex(s Schema) *Index {
	idx := &Index{types: make(map[string]*typeIndex, len(s))}
	for name, ct := range s {
		ti := &typeIndex{
			oneOff:   ct.OneOff,
			controls: ct.Controls,
			fields:   make(map[string]Kind, len(ct.Controls)),
			grids:    map[string]map[string]Kind{},
		}
		for _, c := range ct.Controls {
			ti.fields[c.Name] = c.Kind
			if c.Kind != KindGrid {
				continue
			}
			sub := make(map[string]Kind, len(c.Controls))
			for _, gc := range c.Controls {
				sub[gc.Name] = gc.Kind
			}
			ti.grids[c.Name] = sub
		}
		idx.types[name] = ti
		idx.names = append(idx.names, name)
	}
	sort.Strings(idx.names)
	return idx
}

// ContentTypes returns the schema's content type names, sorted.
func (x *Index) ContentTypes() []string { return x.names }

func (x *Index) OneOff(contentType string) bool {
	ti, ok := x.types[contentType]
	return ok && ti.oneOff
}

// KindOf returns the kind of a top-level field, KindOther when unknown.
func (x *Index) KindOf(contentType, field string) Kind {
	if ti, ok := x.types[contentType]; ok {
		if k, ok := ti.fields[field]; ok {
			return k
		}
	}
	return KindOther
}

// GridKindOf returns the kind of sub inside the grid field grid.
func (x *Index) GridKindOf(contentType, grid, sub string) Kind {
	if ti, ok := x.types[contentType]; ok {
		if k, ok := ti.grids[grid][sub]; ok {
			return k
		}
	}
	return KindOther
}

// Patterns returns every pattern keypath whose field has the given kind:
//
//	data.<type>[.*].<field>[.&]
//	data.<type>[.*].<grid>.&.<sub>[.&]
//
// The record wildcard is omitted for one-off types, the trailing list
// wildcard is present only for galleries.
func (x *Index) Patterns(kind Kind) []keypath.Keypath {
	var out []keypath.Keypath
	for _, name := range x.names {
		ti := x.types[name]
		base := keypath.Of("data", name)
		if !ti.oneOff {
			base = base.Append(keypath.AnyKey())
		}
		for _, c := range ti.controls {
			if c.Kind == kind {
				out = append(out, withGalleryTail(base.Append(keypath.Key(c.Name)), kind))
			}
		}
		for _, c := range ti.controls {
			if c.Kind != KindGrid {
				continue
			}
			for _, gc := range c.Controls {
				if gc.Kind == kind {
					p := base.Append(keypath.Key(c.Name), keypath.AnyIndex(), keypath.Key(gc.Name))
					out = append(out, withGalleryTail(p, kind))
				}
			}
		}
	}
	return out
}

func withGalleryTail(p keypath.Keypath, kind Kind) keypath.Keypath {
	if kind == KindGallery {
		return p.Append(keypath.AnyIndex())
	}
	return p
}
