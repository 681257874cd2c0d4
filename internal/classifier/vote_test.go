package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func votes(labels ...Label) []Vote {
	out := make([]Vote, len(labels))
	for i, l := range labels {
		out[i] = Vote{Label: l, Rationale: string(l) + "-" + string(rune('a'+i))}
	}
	return out
}

func TestSelectByMajority(t *testing.T) {
	tests := []struct {
		name       string
		votes      []Vote
		label      Label
		confidence float64
	}{
		{"empty", nil, ND, 0},
		{"unanimous", votes(VSD, VSD, VSD), VSD, 1},
		{"majority", votes(PreVD, VSD, PreVD), PreVD, 2.0 / 3},
		{"tie PRE_VD VSD", votes(PreVD, VSD), VSD, 0.5},
		{"tie NSD VSD PRE_VD", votes(NSD, VSD, PreVD), NSD, 1.0 / 3},
		{"tie ND NSD", votes(NSD, ND, NSD, ND), ND, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, confidence := SelectByMajority(tt.votes)
			assert.Equal(t, tt.label, label)
			assert.InDelta(t, tt.confidence, confidence, 1e-9)
		})
	}
}

func TestRepresentative(t *testing.T) {
	vs := votes(PreVD, VSD, VSD)
	rep, ok := Representative(vs, VSD)
	assert.True(t, ok)
	assert.Equal(t, "VSD-b", rep.Rationale)

	rep, ok = Representative(vs, ND)
	assert.True(t, ok)
	assert.Equal(t, "PRE_VD-a", rep.Rationale)

	_, ok = Representative(nil, ND)
	assert.False(t, ok)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.6667, round(2.0/3, 4))
	assert.Equal(t, 0.3333, round(1.0/3, 4))
}
