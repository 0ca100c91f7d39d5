// Package enumerate walks the records of a backup and lists the concrete
// keypaths of every field of a given kind.
package enumerate

import (
	"sort"

	"webhook-migrate/internal/keypath"
	"webhook-migrate/internal/schema"
)

// Keypaths returns the concrete keypaths under "data" whose field kind is
// kind. Missing or null values produce nothing. Grids are followed one
// level down, and galleries inside a grid one level further.
func Keypaths(tree any, idx *schema.Index, kind schema.Kind) []keypath.Keypath {
	patterns := idx.Patterns(kind)
	if len(patterns) == 0 {
		return nil
	}
	v, _ := keypath.Get(tree, keypath.Of("data"))
	data, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	var out []keypath.Keypath
	for _, ct := range sortedKeys(data) {
		w := walker{idx: idx, contentType: ct}
		base := keypath.Of("data", ct)
		if idx.OneOff(ct) {
			w.record(base, data[ct])
		} else if records, ok := data[ct].(map[string]any); ok {
			for _, key := range sortedKeys(records) {
				w.record(base.Append(keypath.Key(key)), records[key])
			}
		}
		for _, p := range w.found {
			if keypath.MatchesAny(p, patterns) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Assets lists every image, file, audio and gallery item keypath.
func Assets(tree any, idx *schema.Index) []keypath.Keypath {
	var out []keypath.Keypath
	for _, k := range schema.AssetKinds {
		out = append(out, Keypaths(tree, idx, k)...)
	}
	return out
}

// RichText lists every wysiwyg field keypath.
func RichText(tree any, idx *schema.Index) []keypath.Keypath {
	return Keypaths(tree, idx, schema.KindWysiwyg)
}

type walker struct {
	idx         *schema.Index
	contentType string
	found       []keypath.Keypath
}

func (w *walker) record(path keypath.Keypath, rec any) {
	fields, ok := rec.(map[string]any)
	if !ok {
		return
	}
	for _, name := range sortedKeys(fields) {
		value := fields[name]
		if value == nil {
			continue
		}
		fieldPath := path.Append(keypath.Key(name))
		switch w.idx.KindOf(w.contentType, name) {
		case schema.KindGrid:
			w.grid(fieldPath, name, value)
		case schema.KindGallery:
			w.list(fieldPath, value)
		default:
			w.found = append(w.found, fieldPath)
		}
	}
}

func (w *walker) grid(path keypath.Keypath, gridName string, value any) {
	rows, ok := value.([]any)
	if !ok {
		return
	}
	for i, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		for _, sub := range sortedKeys(row) {
			if row[sub] == nil {
				continue
			}
			subPath := path.Append(keypath.Index(i), keypath.Key(sub))
			if w.idx.GridKindOf(w.contentType, gridName, sub) == schema.KindGallery {
				w.list(subPath, row[sub])
				continue
			}
			w.found = append(w.found, subPath)
		}
	}
}

func (w *walker) list(path keypath.Keypath, value any) {
	items, ok := value.([]any)
	if !ok {
		return
	}
	for i, item := range items {
		if item == nil {
			continue
		}
		w.found = append(w.found, path.Append(keypath.Index(i)))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
