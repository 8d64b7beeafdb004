package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalize_NestedOrder(t *testing.T) {
	v := map[string]any{
		"z": map[string]any{"y": 1, "x": 2},
		"a": []any{3, 2, 1},
	}
	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[3,2,1],"z":{"x":2,"y":1}}`, string(out))
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	out, err := Canonicalize(map[string]any{"s": "héllo\n\"quote\""})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"h\u00e9llo\n\"quote\""}`, string(out))
}

func TestCanonicalize_NullVsAbsent(t *testing.T) {
	withNull, err := Canonicalize(map[string]any{"a": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null}`, string(withNull))

	absent, err := Canonicalize(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(absent))
}

func TestCanonicalize_Determinism(t *testing.T) {
	v := map[string]any{"x": 1, "y": []any{"a", "b"}, "z": true}
	a, err := Canonicalize(v)
	require.NoError(t, err)
	b, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalize_IntegerNoDecimal(t *testing.T) {
	out, err := Canonicalize(map[string]any{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, string(out))
}

func TestCanonicalize_NegativeZero(t *testing.T) {
	out, err := Canonicalize(map[string]any{"n": -0.0})
	require.NoError(t, err)
	assert.Equal(t, `{"n":0}`, string(out))
}

func TestHash_StableAcrossKeyOrder(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
