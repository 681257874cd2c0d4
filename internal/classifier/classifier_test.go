package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel answers round i with replies[i], deriving i from the temperature.
type scriptedModel struct {
	n       int
	replies []string
	errAt   int
	err     error

	mu    sync.Mutex
	temps []float64
}

func (m *scriptedModel) Name() string { return "fake-model" }

func (m *scriptedModel) Generate(_ context.Context, _ string, temperature float64) (string, error) {
	m.mu.Lock()
	m.temps = append(m.temps, temperature)
	m.mu.Unlock()

	i := int(math.Round((temperature - BaseTemperature(m.n)) / temperatureStep))
	if m.err != nil && i == m.errAt {
		return "", m.err
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

func (m *scriptedModel) sortedTemps() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]float64(nil), m.temps...)
	sort.Float64s(out)
	return out
}

func reply(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return "```json\n" + string(b) + "\n```"
}

var richAnswers = map[string]any{
	"bestPointSummary": "추천 상품이 제 취향과 정확히 맞아서 좋았습니다",
	"downsideSummary":  "배송 정보가 조금 더 자세했으면 좋겠습니다",
}

func TestClassifyTieGoesToConservativeLabel(t *testing.T) {
	m := &scriptedModel{n: 2, replies: []string{
		reply(t, map[string]any{"label": "PRE_VD", "rationale": "strong", "normalized": richAnswers}),
		reply(t, map[string]any{"label": "VSD", "rationale": "mixed", "normalized": richAnswers}),
	}}
	res, err := New(m, Options{}).Classify(context.Background(), Input{RowIndex: 1}, 2)
	require.NoError(t, err)

	assert.Equal(t, VSD, res.FinalLabel)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, "mixed", res.Rationale)
	assert.Len(t, res.Votes, 2)
	assert.Equal(t, PreVD, res.Votes[0].Label, "votes keep round order")
}

func TestClassifyCoercionKeepsConfidence(t *testing.T) {
	row := map[string]any{
		"pmf":              "별로 아쉽지 않아요",
		"bestPointSummary": richAnswers["bestPointSummary"],
		"downsideSummary":  richAnswers["downsideSummary"],
	}
	m := &scriptedModel{n: 3, replies: []string{
		reply(t, map[string]any{"label": "VSD", "coreValueUnderstood": false, "normalized": row}),
		reply(t, map[string]any{"label": "VSD", "normalized": row}),
		reply(t, map[string]any{"label": "NSD", "normalized": row}),
	}}
	res, err := New(m, Options{}).Classify(context.Background(), Input{RowIndex: 4}, 3)
	require.NoError(t, err)

	assert.Equal(t, ND, res.FinalLabel)
	assert.Equal(t, 0.6667, res.Confidence)
	assert.Equal(t, No, res.CoreValueUnderstood)
	assert.Equal(t, "별로 아쉽지 않음", res.NormalizedData.PMF)
}

func TestClassifyUnderstoodLiftsToVSD(t *testing.T) {
	m := &scriptedModel{n: 1, replies: []string{
		reply(t, map[string]any{"label": "ND", "coreValueUnderstood": true, "coreValueReason": "fit", "normalized": richAnswers}),
	}}
	res, err := New(m, Options{}).Classify(context.Background(), Input{}, 1)
	require.NoError(t, err)
	assert.Equal(t, VSD, res.FinalLabel)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "fit", res.CoreValueReason)
}

func TestClassifyTemperatures(t *testing.T) {
	tests := []struct {
		n    int
		want []float64
	}{
		{n: 1, want: []float64{0.1}},
		{n: 3, want: []float64{0.35, 0.37, 0.39}},
	}
	for _, tt := range tests {
		m := &scriptedModel{n: tt.n, replies: []string{reply(t, map[string]any{"label": "VSD"})}}
		_, err := New(m, Options{}).Classify(context.Background(), Input{}, tt.n)
		require.NoError(t, err)

		got := m.sortedTemps()
		require.Len(t, got, len(tt.want))
		for i := range got {
			assert.InDelta(t, tt.want[i], got[i], 1e-9)
		}
	}
}

func TestClassifyVoteCountMatchesSamples(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		for n := 1; n <= MaxSampleCount; n++ {
			m := &scriptedModel{n: n, replies: []string{reply(t, map[string]any{"label": "NSD"})}}
			res, err := New(m, Options{Sequential: sequential}).Classify(context.Background(), Input{}, n)
			require.NoError(t, err)
			assert.Len(t, res.Votes, n)
			assert.GreaterOrEqual(t, res.Confidence, 1/float64(n))
			assert.LessOrEqual(t, res.Confidence, 1.0)
		}
	}
}

func TestClassifyDefaultsSampleCount(t *testing.T) {
	m := &scriptedModel{n: DefaultSampleCount, replies: []string{reply(t, map[string]any{"label": "VSD"})}}
	res, err := New(m, Options{}).Classify(context.Background(), Input{}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Votes, DefaultSampleCount)
}

type modelDown struct{ status int }

func (e *modelDown) Error() string { return "model down" }

func TestClassifyFailsWhenAnyRoundFails(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		m := &scriptedModel{
			n:       3,
			replies: []string{reply(t, map[string]any{"label": "VSD"})},
			errAt:   1,
			err:     &modelDown{status: 503},
		}
		res, err := New(m, Options{Sequential: sequential}).Classify(context.Background(), Input{}, 3)
		require.Error(t, err)
		assert.Nil(t, res)

		var down *modelDown
		require.True(t, errors.As(err, &down))
		assert.Equal(t, 503, down.status)
	}
}

func TestClassifyMalformedPayload(t *testing.T) {
	m := &scriptedModel{n: 1, replies: []string{"I cannot answer that"}}
	_, err := New(m, Options{}).Classify(context.Background(), Input{}, 1)

	var malformed *MalformedPayloadError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "I cannot answer that", malformed.Raw)
}

func TestClassifyWarningSignals(t *testing.T) {
	terse := map[string]any{"bestPoint": "좋음", "purchaseTiming": "구체적인 구매 계획은 없지만   정보가 궁금했습니다"}
	m := &scriptedModel{n: 2, replies: []string{
		reply(t, map[string]any{
			"label":          "NSD",
			"warningSignals": []string{"응답이 짧음", "어뷰저 의심"},
			"isAbuser":       true,
			"abuserReason":   "한 단어 응답",
			"normalized":     terse,
		}),
		reply(t, map[string]any{"label": "NSD", "isAbuser": false, "abuserReason": "정상", "normalized": terse}),
	}}
	res, err := New(m, Options{}).Classify(context.Background(), Input{}, 2)
	require.NoError(t, err)

	want := []string{"응답이 짧음", "어뷰저 의심", "LLM 어뷰저 판단: 한 단어 응답", "디스커버리형"}
	if diff := cmp.Diff(want, res.WarningSignals); diff != "" {
		t.Errorf("warning signals mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, res.IsAbuser)
	assert.True(t, res.IsDiscoveryType)
}

func TestClassifyUsedColumnsAllowList(t *testing.T) {
	m := &scriptedModel{n: 1, replies: []string{
		reply(t, map[string]any{"label": "VSD", "usedColumns": []string{"A", "C", " A "}}),
	}}
	in := Input{RawEntries: []RawEntry{{Header: "A"}, {Header: "B", ColumnIndex: 1}}}
	res, err := New(m, Options{}).Classify(context.Background(), in, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.UsedColumns)
}

func TestClassifierAccessors(t *testing.T) {
	c := New(&scriptedModel{}, Options{})
	assert.Equal(t, "fake-model", c.ModelName())
	assert.Equal(t, "v1.1.0", c.PromptVersion())
	assert.Contains(t, c.SystemRubric(), "PRE_VD")
}
