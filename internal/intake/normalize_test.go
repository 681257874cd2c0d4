package intake

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/refset/prevd-classifier/internal/classifier"
)

func TestNormalize(t *testing.T) {
	raw := map[string]string{
		"PMF":         " 매우 아쉬움 ",
		"맞춤":          "8점 / 10",
		"좋았던 점":       "추천 상품이 잘 맞았어요",
		"원래구매시기":      "한 달 이내",
		"추천상품 구매의향":   "곧 구매할 예정",
		"unrelated":   "무시",
		"improvement": "",
	}
	eight := 8.0
	want := classifier.NormalizedRow{
		PMF:             "매우 아쉬움",
		FitScore:        &eight,
		BestPoint:       "추천 상품이 잘 맞았어요",
		PurchaseTiming:  "한 달 이내",
		PurchaseIntent:  "곧 구매할 예정",
		PurchasePlanned: classifier.Yes,
	}
	if diff := cmp.Diff(want, Normalize(raw)); diff != "" {
		t.Errorf("normalized mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAliasPriority(t *testing.T) {
	raw := map[string]string{
		"구매의향":                     "낮음",
		"이 서비스에서 추천받은 상품에 대한 구매의향": "높음",
	}
	assert.Equal(t, "높음", Normalize(raw).PurchaseIntent)

	// An exact alias that is present but empty still wins over later aliases.
	raw = map[string]string{"PMF": "", "pmf": "조금 아쉬움"}
	assert.Empty(t, Normalize(raw).PMF)
}

func TestNormalizeFoldedHeaders(t *testing.T) {
	raw := map[string]string{
		"ＰＭＦ":        "별로",
		"Fit_Score ": "7.5",
	}
	row := Normalize(raw)
	assert.Equal(t, "별로", row.PMF)
	if assert.NotNil(t, row.FitScore) {
		assert.Equal(t, 7.5, *row.FitScore)
	}
}

func TestParseScore(t *testing.T) {
	assert.Nil(t, ParseScore(""))
	assert.Nil(t, ParseScore("모름"))
	if s := ParseScore("점수: -2.5점"); assert.NotNil(t, s) {
		assert.Equal(t, -2.5, *s)
	}
}

func TestInferPurchasePlanned(t *testing.T) {
	tests := []struct {
		planned, intent string
		want            classifier.Verdict
	}{
		{"", "", classifier.Unknown},
		{"미정", "구매 예정", classifier.No},
		{"", "참고만 했어요", classifier.No},
		{"", "장바구니에 담음", classifier.Yes},
		{"A", "", classifier.Yes},
		{"", "생각해볼게요", classifier.Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferPurchasePlanned(tt.planned, tt.intent), tt.planned+"|"+tt.intent)
	}
}
