package classifier

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	pmfNotDisappointed = "별로 아쉽지 않음"

	signalDiscovery   = "디스커버리형"
	signalAbuser      = "어뷰저 의심"
	signalModelAbuser = "LLM 어뷰저 판단: "

	discoveryPhrase = "구체적인 구매 계획은 없지만 정보가 궁금했습니다"
)

var (
	noPlanPattern    = regexp.MustCompile(`구매[\s\p{Z}]*계획.*없|계획.*없음|미정|없습니다`)
	curiosityPattern = regexp.MustCompile(`정보.*궁금`)
)

// ApplyCoreValueRule coerces the majority label with the representative
// vote's core-value judgement.
func ApplyCoreValueRule(label Label, row NormalizedRow, understood Verdict) Label {
	switch understood {
	case No:
		if row.PMF == pmfNotDisappointed {
			return ND
		}
		return NSD
	case Yes:
		if label == NSD || label == ND {
			return VSD
		}
	}
	return label
}

func meaningfulLength(s string) int {
	return utf8.RuneCountInString(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// DetectAbuser flags rows whose open answers are missing or consistently terse.
func DetectAbuser(row NormalizedRow) bool {
	var lengths []int
	for _, answer := range row.freeText() {
		if strings.TrimSpace(answer) == "" {
			continue
		}
		lengths = append(lengths, meaningfulLength(answer))
	}

	switch len(lengths) {
	case 0:
		return true
	case 1:
		return lengths[0] < 10
	}

	short, total := 0, 0
	for _, n := range lengths {
		if n < 12 {
			short++
		}
		total += n
	}
	shortShare := float64(short) / float64(len(lengths))
	mean := float64(total) / float64(len(lengths))
	return shortShare >= 0.7 && mean < 18
}

// DetectAbuserByModel aggregates the per-round abuse opinions. Rounds without
// an opinion are ignored; half or more positive opinions flag the row.
func DetectAbuserByModel(votes []Vote) (bool, string) {
	positive, opinions := 0, 0
	for _, v := range votes {
		if !v.IsAbuser.Known() {
			continue
		}
		opinions++
		if v.IsAbuser == Yes {
			positive++
		}
	}
	if opinions == 0 {
		return false, ""
	}

	flagged := float64(positive)/float64(opinions) >= 0.5
	want := VerdictOf(flagged)
	for _, v := range votes {
		if v.IsAbuser == want {
			return flagged, v.AbuserReason
		}
	}
	return flagged, ""
}

// DetectDiscoveryType reports respondents who came for information rather than to buy.
func DetectDiscoveryType(row NormalizedRow, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(s, signalDiscovery) {
			return true
		}
	}

	// strings.Fields splits on Unicode spaces, including NBSP and U+3000.
	timing := strings.Join(strings.Fields(row.PurchaseTiming), " ")
	if timing == "" {
		return false
	}
	if strings.Contains(timing, discoveryPhrase) {
		return true
	}
	return noPlanPattern.MatchString(timing) && curiosityPattern.MatchString(timing)
}

func appendSignal(signals []string, s string) []string {
	if slices.Contains(signals, s) {
		return signals
	}
	return append(signals, s)
}

// warningSignals extends the representative's signals with the rule outcomes.
func warningSignals(base []string, modelReason string, abuser, discovery bool) []string {
	out := slices.Clone(base)
	if out == nil {
		out = []string{}
	}
	if modelReason != "" {
		out = appendSignal(out, signalModelAbuser+modelReason)
	}
	if abuser {
		out = appendSignal(out, signalAbuser)
	}
	if discovery {
		out = appendSignal(out, signalDiscovery)
	}
	return out
}
