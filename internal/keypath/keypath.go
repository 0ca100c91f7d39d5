// Package keypath addresses values inside a decoded JSON tree built from
// map[string]any, []any and scalars. It knows nothing about schemas.
package keypath

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

type segmentKind uint8

const (
	keySegment segmentKind = iota
	indexSegment
	anyKeySegment
	anyIndexSegment
)

// Wire markers for the two wildcards.
const (
	AnyKeyMarker   = "*"
	AnyIndexMarker = "&"
)

// Segment is one step of a Keypath: a record key, a list index, or a
// wildcard standing in for either.
type Segment struct {
	kind  segmentKind
	key   string
	index int
}

func Key(k string) Segment { return Segment{kind: keySegment, key: k} }
func Index(i int) Segment { return Segment{kind: indexSegment, index: i} }
func AnyKey() Segment { return Segment{kind: anyKeySegment} }
func AnyIndex() Segment { return Segment{kind: anyIndexSegment} }
func (s Segment) IsKey() bool { return s.kind == keySegment }
func (s Segment) IsIndex() bool { return s.kind == indexSegment }

// KeyValue returns the record key; ok is false for any other segment.
func (s Segment) KeyValue() (string, bool) { return s.key, s.kind == keySegment }

// IndexValue returns the list index; ok is false for any other segment.
func (s Segment) IndexValue() (int, bool) { return s.index, s.kind == indexSegment }

// matches compares a concrete segment against a pattern segment.
func (s Segment) matches(pattern Segment) bool {
	switch pattern.kind {
	case anyKeySegment:
		return s.kind == keySegment || s.kind == anyKeySegment
	case anyIndexSegment:
		return s.kind == indexSegment || s.kind == anyIndexSegment
	}
	return s == pattern
}

func (s Segment) String() string {
	switch s.kind {
	case indexSegment:
		return fmt.Sprint(s.index)
	case anyKeySegment:
		return AnyKeyMarker
	case anyIndexSegment:
		return AnyIndexMarker
	}
	return s.key
}

func (s Segment) MarshalJSON() ([]byte, error) {
	if s.kind == indexSegment {
		return json.Marshal(s.index)
	}
	return json.Marshal(s.String())
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*s = Index(i)
		return nil
	}
	var k string
	if err := json.Unmarshal(data, &k); err != nil {
		return fmt.Errorf("keypath segment must be a string or integer: %s", data)
	}
	switch k {
	case AnyKeyMarker:
		*s = AnyKey()
	case AnyIndexMarker:
		*s = AnyIndex()
	default:
		*s = Key(k)
	}
	return nil
}

// Keypath is an address into a tree. With wildcard segments it is a
// pattern; without, a concrete location.
type Keypath []Segment

// Of builds a Keypath from strings and ints. Strings equal to the wildcard
// markers become wildcards.
func Of(parts ...any) Keypath {
	path := make(Keypath, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case int:
			path = append(path, Index(v))
		case string:
			switch v {
			case AnyKeyMarker:
				path = append(path, AnyKey())
			case AnyIndexMarker:
				path = append(path, AnyIndex())
			default:
				path = append(path, Key(v))
			}
		case Segment:
			path = append(path, v)
		default:
			panic(fmt.Sprintf("keypath: unsupported segment %T", p))
		}
	}
	return path
}

// Append returns a new Keypath; the receiver's backing array is never shared.
func (p Keypath) Append(segs ...Segment) Keypath {
	out := make(Keypath, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Parent drops the trailing segment.
func (p Keypath) Parent() Keypath {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the trailing segment.
func (p Keypath) Last() (Segment, bool) {
	if len(p) == 0 {
		return Segment{}, false
	}
	return p[len(p)-1], true
}

// Expr renders the keypath as a JSONPath expression.
func (p Keypath) Expr() jp.Expr {
	x := jp.R()
	for _, s := range p {
		switch s.kind {
		case indexSegment:
			x = x.N(s.index)
		case keySegment:
			x = x.C(s.key)
		default:
			x = x.W()
		}
	}
	return x
}

func (p Keypath) String() string { return p.Expr().String() }

// Get follows path through tree. ok is false as soon as a step is missing
// or lands on a value of the wrong shape.
func Get(tree any, path Keypath) (any, bool) {
	cur := tree
	for _, seg := range path {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Set assigns value at path, mutating the containing map or list in place.
// It reports false and changes nothing when an intermediate step is
// missing, the final list index is out of range, or path is empty.
func Set(tree any, path Keypath, value any) bool {
	last, ok := path.Last()
	if !ok {
		return false
	}
	parent, ok := Get(tree, path.Parent())
	if !ok {
		return false
	}
	switch node := parent.(type) {
	case map[string]any:
		if last.kind != keySegment {
			return false
		}
		node[last.key] = value
		return true
	case []any:
		if last.kind != indexSegment || last.index < 0 || last.index >= len(node) {
			return false
		}
		node[last.index] = value
		return true
	}
	return false
}

// Matches reports whether concrete fits pattern: equal length, wildcards
// match segments of their own kind, everything else must be equal.
func Matches(concrete, pattern Keypath) bool {
	if len(concrete) != len(pattern) {
		return false
	}
	for i := range concrete {
		if !concrete[i].matches(pattern[i]) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether concrete fits at least one of patterns.
func MatchesAny(concrete Keypath, patterns []Keypath) bool {
	for _, pattern := range patterns {
		if Matches(concrete, pattern) {
			return true
		}
	}
	return false
}

func child(v any, seg Segment) (any, bool) {
	switch node := v.(type) {
	case map[string]any:
		if seg.kind != keySegment {
			return nil, false
		}
		val, ok := node[seg.key]
		return val, ok
	case []any:
		if seg.kind != indexSegment || seg.index < 0 || seg.index >= len(node) {
			return nil, false
		}
		return node[seg.index], true
	}
	return nil, false
}
