package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	out, err := Marshal(map[string]string{"body": "<script>"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "<script>")
	assert.NotContains(t, string(out), `u003c`)
}

func TestMarshalNoTrailingNewline(t *testing.T) {
	out, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "\n")
}

func TestUnmarshalRoundTrip(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, Unmarshal([]byte(`{"a":1,"b":"x"}`), &v))
	assert.Equal(t, float64(1), v["a"])
	assert.Equal(t, "x", v["b"])
}

func TestDecodeNumberPreservingKeepsIntVsFloatDistinct(t *testing.T) {
	v, err := DecodeNumberPreserving([]byte(`0.0`))
	require.NoError(t, err)
	num, ok := v.(json.Number)
	require.True(t, ok)
	assert.Equal(t, "0.0", num.String())

	v2, err := DecodeNumberPreserving([]byte(`0`))
	require.NoError(t, err)
	num2 := v2.(json.Number)
	assert.Equal(t, "0", num2.String())
}

func TestDecodeObjectNumberPreservingNullBecomesEmptyMap(t *testing.T) {
	m, err := DecodeObjectNumberPreserving([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestDecodeObjectNumberPreservingRejectsNonObject(t *testing.T) {
	_, err := DecodeObjectNumberPreserving([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestDecodeObjectNumberPreservingPreservesNestedNumbers(t *testing.T) {
	m, err := DecodeObjectNumberPreserving([]byte(`{"position": 42}`))
	require.NoError(t, err)
	num, ok := m["position"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, "42", num.String())
}
