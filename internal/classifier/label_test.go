package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLabel(t *testing.T) {
	tests := map[string]Label{
		"PRE_VD":   PreVD,
		"pre-vd":   PreVD,
		" Pre_Vd ": PreVD,
		"vsd":      VSD,
		"NSD":      NSD,
		"ND":       ND,
		"":         ND,
		"PREVD":    ND,
		"maybe":    ND,
	}
	for in, want := range tests {
		got := ToLabel(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, ToLabel(string(got)), "idempotent for %q", in)
	}
}

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel("pre-vd")
	require.NoError(t, err)
	assert.Equal(t, PreVD, l)

	_, err = ParseLabel("maybe")
	assert.Error(t, err)
}

func TestVerdictJSON(t *testing.T) {
	type wrapper struct {
		V Verdict `json:"v"`
	}
	for in, want := range map[string]Verdict{
		`{"v":true}`:   Yes,
		`{"v":false}`:  No,
		`{"v":null}`:   Unknown,
		`{"v":"true"}`: Unknown,
		`{}`:           Unknown,
	} {
		var w wrapper
		require.NoError(t, json.Unmarshal([]byte(in), &w))
		assert.Equal(t, want, w.V, in)
	}

	b, err := json.Marshal(wrapper{V: No})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":false}`, string(b))
	b, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":null}`, string(b))
}
