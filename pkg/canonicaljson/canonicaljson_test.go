package canonicaljson_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settld/core/pkg/canonicaljson"
)

func TestMarshal_SortsObjectKeys(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}

	out, err := canonicaljson.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(out))
}

func TestMarshal_StableAcrossCalls(t *testing.T) {
	in := map[string]any{"id": "evt_1", "amount": 100, "tags": []any{"x", "y"}}

	first, err := canonicaljson.Marshal(in)
	require.NoError(t, err)

	second, err := canonicaljson.Marshal(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMarshal_IntegerHasNoTrailingZero(t *testing.T) {
	out, err := canonicaljson.Marshal(map[string]any{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, string(out))
}

func TestMarshal_RejectsNonFiniteFloat(t *testing.T) {
	_, err := canonicaljson.Marshal(math.Inf(1))
	require.Error(t, err)
}

func TestMarshal_NullAndBool(t *testing.T) {
	out, err := canonicaljson.Marshal(map[string]any{"a": nil, "b": true, "c": false})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":true,"c":false}`, string(out))
}

func TestMarshal_ArrayPreservesOrder(t *testing.T) {
	out, err := canonicaljson.Marshal([]any{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(out))
}

func FuzzMarshal(f *testing.F) {
	f.Add(`{"a":1,"b":"x"}`)
	f.Add(`[1,2,3]`)
	f.Add(`"plain string"`)
	f.Add(`null`)

	f.Fuzz(func(t *testing.T, raw string) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Skip()
		}

		out1, err := canonicaljson.Marshal(v)
		if err != nil {
			t.Skip()
		}

		var reparsed any
		require.NoError(t, json.Unmarshal(out1, &reparsed))

		out2, err := canonicaljson.Marshal(reparsed)
		require.NoError(t, err)
		assert.Equal(t, out1, out2, "canonical encoding must be a fixed point")
	})
}
