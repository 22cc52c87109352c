package wire

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeParse_RewritesSnakeKeys(t *testing.T) {
	got := SafeParse(`{"foo_bar":1}`, map[string]any{})
	assert.Equal(t, map[string]any{"fooBar": float64(1)}, got)
}

func TestSafeParse_LeavesCamelKeysUnchanged(t *testing.T) {
	got := SafeParse(`{"fooBar":1}`, map[string]any{})
	assert.Equal(t, map[string]any{"fooBar": float64(1)}, got)
}

func TestSafeParse_FallbackOnInvalidJSON(t *testing.T) {
	fallback := map[string]any{"x": float64(0)}
	got := SafeParse(`not json`, fallback)
	assert.Equal(t, fallback, got)
}

func TestSafeParse_FallbackOnEmptyInput(t *testing.T) {
	fallback := map[string]any{"x": float64(0)}
	assert.Equal(t, fallback, SafeParse("", fallback))
	assert.Equal(t, fallback, SafeParse("null", fallback))
}

func TestSafeParse_FallbackOnTypeMismatch(t *testing.T) {
	// Valid JSON that cannot decode into the expected slice type.
	got := SafeParse(`{"foo":1}`, []string{"fallback"})
	assert.Equal(t, []string{"fallback"}, got)
}

func TestSafeParse_NestedObjectsAndArrays(t *testing.T) {
	raw := `{"group_id":"g1","inner":{"best_time":9.5},"list":[{"avg_time":3}]}`
	got := SafeParse(raw, map[string]any{})

	require.Contains(t, got, "groupId")
	inner, ok := got["inner"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, inner, "bestTime")

	list, ok := got["list"].([]any)
	require.True(t, ok)
	first, ok := list[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first, "avgTime")
}

func TestSafeParse_ArrayProbesFirstElement(t *testing.T) {
	raw := `[{"activity_id":"a1"},{"activity_id":"a2"}]`
	got := SafeParse(raw, []map[string]any{})
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0]["activityId"])
	assert.Equal(t, "a2", got[1]["activityId"])
}

func TestSafeParse_SkipsRewriteWhenTopLevelIsClean(t *testing.T) {
	// The probe only inspects the top level: a clean top level means the
	// whole payload is assumed normalized and nested keys are untouched.
	raw := `{"topLevel":{"snake_key":1}}`
	got := SafeParse(raw, map[string]any{})
	inner, ok := got["topLevel"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, inner, "snake_key")
}

func TestSafeParse_TypedDecode(t *testing.T) {
	type group struct {
		GroupID     string   `json:"groupId"`
		ActivityIDs []string `json:"activityIds"`
	}
	raw := `[{"group_id":"g1","activity_ids":["a","b"]}]`
	got := SafeParse(raw, []group{})
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].GroupID)
	assert.Equal(t, []string{"a", "b"}, got[0].ActivityIDs)
}

func TestCamelKey(t *testing.T) {
	cases := map[string]string{
		"foo_bar":        "fooBar",
		"ne_lat":         "neLat",
		"already":        "already",
		"fooBar":         "fooBar",
		"a_b_c":          "aBC",
		"custom_1234":    "custom_1234", // underscore before digit preserved
		"trailing_":      "trailing_",
		"_leading":       "Leading",
		"double__under":  "double_Under",
		"sport_type_raw": "sportTypeRaw",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelKey(in), "camelKey(%q)", in)
	}
}

func TestNormalize_Golden(t *testing.T) {
	raw := `{"group_id":"g-1","activity_ids":["a","b"],"bounds":{"ne_lat":47.1,"sw_lat":46.9},"members":[{"best_time":812.5}]}`

	var tree any
	require.NoError(t, json.Unmarshal([]byte(raw), &tree))

	out, err := json.MarshalIndent(Normalize(tree), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "normalized_group", append(out, '\n'))
}
