package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]any{
		"b": 2,
		"a": map[string]any{"z": 10, "y": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":5,"z":10},"b":2}`, string(out))
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]string{"note": "<board> & audit"})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"<board> & audit"}`, string(out))
}

func TestJCSRespectsStructTags(t *testing.T) {
	type entry struct {
		Turn int    `json:"turn"`
		Kind string `json:"kind"`
	}
	out, err := JCS(entry{Turn: 3, Kind: "lie"})
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"lie","turn":3}`, string(out))
}

func TestCanonicalHashStable(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"a": 1.5, "b": []int{1, 2}})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"b": []int{1, 2}, "a": 1.5})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.Equal(t, HashBytes([]byte(`{"a":1.5,"b":[1,2]}`)), h1)
}
