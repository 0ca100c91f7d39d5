package keypath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() map[string]any {
	return map[string]any{
		"data": map[string]any{
			"posts": map[string]any{
				"-Kabc": map[string]any{
					"name":    "first",
					"gallery": []any{map[string]any{"url": "/a.png"}, map[string]any{"url": "/b.png"}},
				},
			},
		},
	}
}

func TestMatchesWildcards(t *testing.T) {
	cases := []struct {
		name     string
		concrete Keypath
		pattern  Keypath
		want     bool
	}{
		{"record wildcard matches key", Of("data", "posts", "-Kabc"), Of("data", "posts", "*"), true},
		{"record wildcard rejects index", Of("data", "posts", 3), Of("data", "posts", "*"), false},
		{"list wildcard matches index", Of("data", "posts", "-Kabc", "gallery", 1), Of("data", "posts", "*", "gallery", "&"), true},
		{"list wildcard rejects key", Of("data", "posts", "-Kabc", "gallery", "x"), Of("data", "posts", "*", "gallery", "&"), false},
		{"literal mismatch", Of("data", "pages", "-Kabc"), Of("data", "posts", "*"), false},
		{"shorter concrete", Of("data", "posts"), Of("data", "posts", "*"), false},
		{"longer concrete", Of("data", "posts", "-Kabc", "name"), Of("data", "posts", "*"), false},
		{"index literal", Of("data", 2), Of("data", 2), true},
		{"index literal mismatch", Of("data", 2), Of("data", 3), false},
		{"key and index with same text", Of("data", "2"), Of("data", 2), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.concrete, tc.pattern))
		})
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []Keypath{Of("data", "a", "*"), Of("data", "b", "&")}
	assert.True(t, MatchesAny(Of("data", "b", 0), patterns))
	assert.False(t, MatchesAny(Of("data", "c", 0), patterns))
	assert.False(t, MatchesAny(Of("data", "b", 0), nil))
}

func TestGetSetRoundTrip(t *testing.T) {
	tree := sampleTree()

	path := Of("data", "posts", "-Kabc", "gallery", 1, "url")
	require.True(t, Set(tree, path, "http://new/b.png"))
	got, ok := Get(tree, path)
	require.True(t, ok)
	assert.Equal(t, "http://new/b.png", got)

	// new key on an existing map
	path = Of("data", "posts", "-Kabc", "resize_url")
	require.True(t, Set(tree, path, "r"))
	got, ok = Get(tree, path)
	require.True(t, ok)
	assert.Equal(t, "r", got)
}

func TestGetUndefinedIntermediate(t *testing.T) {
	tree := sampleTree()
	for _, path := range []Keypath{
		Of("data", "missing", "x", "y"),
		Of("data", "posts", "-Kabc", "gallery", 9, "url"),
		Of("data", "posts", "-Kabc", "name", "deeper"),
		Of("data", "posts", "-Kabc", "gallery", "url"),
		Of("data", "*"),
	} {
		v, ok := Get(tree, path)
		assert.False(t, ok, path.String())
		assert.Nil(t, v)
	}
	_, ok := Get(nil, Of("data"))
	assert.False(t, ok)
}

func TestSetNoopOnMissingIntermediate(t *testing.T) {
	tree := sampleTree()
	assert.False(t, Set(tree, Of("data", "missing", "x"), 1))
	_, ok := Get(tree, Of("data", "missing"))
	assert.False(t, ok)

	assert.False(t, Set(tree, Of("data", "posts", "-Kabc", "gallery", 5), 1))
	assert.False(t, Set(tree, Keypath{}, 1))
}

func TestParentDoesNotAlias(t *testing.T) {
	full := Of("data", "posts", "-Kabc", "body", 0)
	parent := full.Parent()
	extended := parent.Append(Index(7))
	last, _ := full.Last()
	assert.Equal(t, Index(0), last)
	assert.Len(t, extended, 5)
	idx, ok := extended[4].IndexValue()
	assert.True(t, ok)
	assert.Equal(t, 7, idx)
}

func TestSegmentJSON(t *testing.T) {
	path := Of("data", "posts", "*", "grid", "&", "img", 3)
	raw, err := json.Marshal(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["data","posts","*","grid","&","img",3]`, string(raw))

	var back Keypath
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, path, back)

	var bad Keypath
	assert.Error(t, json.Unmarshal([]byte(`[true]`), &bad))
}

func TestStringRendersJSONPath(t *testing.T) {
	s := Of("data", "posts", 0).String()
	assert.Contains(t, s, "posts")
	assert.Equal(t, byte('$'), s[0])
}
