package intake

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/refset/prevd-classifier/internal/classifier"
)

// Aliases lists the header spellings recognised for each canonical field, in priority order.
type Aliases struct {
	PMF                    []string
	SlightReason           []string
	WhyThink               []string
	FitScore               []string
	FitReason              []string
	BestPoint              []string
	BestPointSummary       []string
	PurchaseTiming         []string
	PurchaseIntent         []string
	PurchasePlanned        []string
	PurchaseIntentCombined []string
	BuyReason              []string
	Improvement            []string
	DownsideSummary        []string
	JudgementReason        []string
}

// DefaultAliases returns the built-in header table.
func DefaultAliases() Aliases {
	return Aliases{
		PMF:              []string{"PMF", "pmf"},
		SlightReason:     []string{"아쉬움 이유", "slight_reason"},
		WhyThink:         []string{"그렇게 생각한 이유", "why_think"},
		FitScore:         []string{"맞춤", "맞춤점수", "fit_score", "score"},
		FitReason:        []string{"맞춤형 이유", "fit_reason"},
		BestPoint:        []string{"좋았던 점", "best_point"},
		BestPointSummary: []string{"가장 좋은 점", "best_point_summary"},
		PurchaseTiming: []string{
			"원래 구매 시기",
			"원래구매시기",
			"해당 카테고리 원래 구매 시기",
			"카테고리 구매시기",
			"구매시기",
			"purchase_timing",
			"original_purchase_timing",
		},
		PurchaseIntent: []string{
			"이 서비스에서 추천받은 상품에 대한 구매의향",
			"추천상품 구매의향",
			"추천 상품 구매의향",
			"추천상품_구매의향",
			"구매의향",
			"purchase_intent",
			"recommended_product_purchase_intent",
		},
		PurchasePlanned: []string{"구매예정여부", "purchase_planned"},
		PurchaseIntentCombined: []string{
			"추천상품 구매의향_종합",
			"추천 상품 구매의향 종합",
			"구매의향_종합",
			"purchase_intent_combined",
		},
		BuyReason:       []string{"구매 이유", "buy_reason"},
		Improvement:     []string{"개선", "improvement"},
		DownsideSummary: []string{"아쉬운 점", "downside_summary"},
		JudgementReason: []string{"판단 이유", "judgement_reason"},
	}
}

var (
	scorePattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

	negativePlanSignals = []string{"참고만", "확신없음", "미정", "없음"}
	positivePlanSignals = []string{"구매", "장바구니", "곧구매", "이미구매", "당장", "예정", "a", "b"}
)

// Normalizer maps raw header/value pairs onto the canonical survey fields.
type Normalizer struct {
	aliases Aliases
}

// NewNormalizer creates a normalizer over the given alias table
func NewNormalizer(aliases Aliases) *Normalizer {
	return &Normalizer{aliases: aliases}
}

// Normalize is a convenience wrapper over the default alias table.
func Normalize(raw map[string]string) classifier.NormalizedRow {
	return NewNormalizer(DefaultAliases()).Normalize(raw)
}

// Normalize extracts the canonical fields from one row.
func (n *Normalizer) Normalize(raw map[string]string) classifier.NormalizedRow {
	folded := foldHeaders(raw)
	pick := func(aliases []string) string { return pickValue(raw, folded, aliases) }

	a := n.aliases
	intent := pick(a.PurchaseIntent)
	return classifier.NormalizedRow{
		PMF:                    pick(a.PMF),
		SlightReason:           pick(a.SlightReason),
		WhyThink:               pick(a.WhyThink),
		FitScore:               ParseScore(pick(a.FitScore)),
		FitReason:              pick(a.FitReason),
		BestPoint:              pick(a.BestPoint),
		BestPointSummary:       pick(a.BestPointSummary),
		PurchaseTiming:         pick(a.PurchaseTiming),
		PurchaseIntent:         intent,
		PurchasePlanned:        InferPurchasePlanned(pick(a.PurchasePlanned), intent),
		PurchaseIntentCombined: pick(a.PurchaseIntentCombined),
		BuyReason:              pick(a.BuyReason),
		Improvement:            pick(a.Improvement),
		DownsideSummary:        pick(a.DownsideSummary),
		JudgementReason:        pick(a.JudgementReason),
	}
}

// pickValue returns the value under the first alias present. Exact header
// matches win; otherwise headers are compared after NFKC folding.
func pickValue(raw map[string]string, folded map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if v, ok := raw[alias]; ok {
			return strings.TrimSpace(v)
		}
	}
	for _, alias := range aliases {
		if header, ok := folded[foldHeader(alias)]; ok {
			return strings.TrimSpace(raw[header])
		}
	}
	return ""
}

func foldHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// foldHeaders indexes headers by folded form. Collisions resolve to the
// lexically smallest header so the result does not depend on map order.
func foldHeaders(raw map[string]string) map[string]string {
	headers := make([]string, 0, len(raw))
	for h := range raw {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	out := make(map[string]string, len(headers))
	for _, h := range headers {
		key := foldHeader(h)
		if _, ok := out[key]; !ok {
			out[key] = h
		}
	}
	return out
}

// ParseScore reads the first number in s.
func ParseScore(s string) *float64 {
	m := scorePattern.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

// InferPurchasePlanned guesses a purchase plan from the planned and intent
// answers. Negative wording is checked first.
func InferPurchasePlanned(planned, intent string) classifier.Verdict {
	text := strings.ToLower(planned + " " + intent)
	if strings.TrimSpace(text) == "" {
		return classifier.Unknown
	}
	for _, s := range negativePlanSignals {
		if strings.Contains(text, s) {
			return classifier.No
		}
	}
	for _, s := range positivePlanSignals {
		if strings.Contains(text, s) {
			return classifier.Yes
		}
	}
	return classifier.Unknown
}
