package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJCS_KeyOrdering(t *testing.T) {
	input := map[string]any{"b": "2", "a": "1"}
	data, err := JCS(input)
	require.NoError(t, err)
	require.Equal(t, `{"a":"1","b":"2"}`, string(data))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]any{"url": "https://x.test/a&b<c>"}
	data, err := JCS(input)
	require.NoError(t, err)
	require.Contains(t, string(data), "a&b<c>")
}

func TestJCS_Deterministic(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
		Tags  []string `json:"tags"`
	}
	p := payload{Title: "XSS in /search", Tags: []string{"web", "xss"}}

	h1, err := HashHex(p)
	require.NoError(t, err)
	h2, err := HashHex(p)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestJCS_DifferentFieldOrderSameHash(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}

	ha, err := HashHex(a)
	require.NoError(t, err)
	hb, err := HashHex(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestJCS_TamperChangesHash(t *testing.T) {
	original := map[string]any{"title": "XSS in /search"}
	tampered := map[string]any{"title": "XSS in /search (edited)"}

	h1, err := HashHex(original)
	require.NoError(t, err)
	h2, err := HashHex(tampered)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}
