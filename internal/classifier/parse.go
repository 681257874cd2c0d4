package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

const noRationale = "No rationale returned."

var errNullPayload = errors.New("payload is null")

// MalformedPayloadError means the model text was not a decodable JSON object.
type MalformedPayloadError struct {
	Raw string
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed model payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// ExtractJSONObject returns the span from the first '{' to the last '}'.
// Text without such a span is returned unchanged.
func ExtractJSONObject(text string) string {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || first >= last {
		return text
	}
	return text[first : last+1]
}

// payload mirrors the output schema with every field left undecoded, so a
// wrongly typed field is sanitized away instead of failing the whole vote.
type payload struct {
	Label               json.RawMessage `json:"label"`
	Rationale           json.RawMessage `json:"rationale"`
	WarningSignals      json.RawMessage `json:"warningSignals"`
	UsedColumns         json.RawMessage `json:"usedColumns"`
	IsAbuser            json.RawMessage `json:"isAbuser"`
	AbuserReason        json.RawMessage `json:"abuserReason"`
	CoreValueUnderstood json.RawMessage `json:"coreValueUnderstood"`
	CoreValueReason     json.RawMessage `json:"coreValueReason"`
	Normalized          json.RawMessage `json:"normalized"`
}

type normalizedPayload struct {
	PMF                    json.RawMessage `json:"pmf"`
	SlightReason           json.RawMessage `json:"slightReason"`
	WhyThink               json.RawMessage `json:"whyThink"`
	FitScore               json.RawMessage `json:"fitScore"`
	FitReason              json.RawMessage `json:"fitReason"`
	BestPoint              json.RawMessage `json:"bestPoint"`
	BestPointSummary       json.RawMessage `json:"bestPointSummary"`
	PurchaseTiming         json.RawMessage `json:"purchaseTiming"`
	PurchaseIntent         json.RawMessage `json:"purchaseIntent"`
	PurchasePlanned        json.RawMessage `json:"purchasePlanned"`
	PurchaseIntentCombined json.RawMessage `json:"purchaseIntentCombined"`
	BuyReason              json.RawMessage `json:"buyReason"`
	Improvement            json.RawMessage `json:"improvement"`
	DownsideSummary        json.RawMessage `json:"downsideSummary"`
	JudgementReason        json.RawMessage `json:"judgementReason"`
}

// ParseVote decodes one model answer. usedColumns are restricted to allowedHeaders.
func ParseVote(raw string, allowedHeaders []string) (Vote, error) {
	// A bare null decodes without error and leaves p nil.
	var p *payload
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &p); err != nil {
		return Vote{}, &MalformedPayloadError{Raw: raw, Err: err}
	}
	if p == nil {
		return Vote{}, &MalformedPayloadError{Raw: raw, Err: errNullPayload}
	}

	label, _ := rawString(p.Label)
	rationale := rawText(p.Rationale)
	if rationale == "" {
		rationale = noRationale
	}

	return Vote{
		Label:               ToLabel(label),
		Rationale:           rationale,
		WarningSignals:      rawStrings(p.WarningSignals),
		UsedColumns:         sanitizeUsedColumns(rawStrings(p.UsedColumns), allowedHeaders),
		IsAbuser:            rawVerdict(p.IsAbuser),
		AbuserReason:        rawText(p.AbuserReason),
		CoreValueUnderstood: rawVerdict(p.CoreValueUnderstood),
		CoreValueReason:     rawText(p.CoreValueReason),
		NormalizedData:      sanitizeNormalized(p.Normalized),
	}, nil
}

func sanitizeNormalized(raw json.RawMessage) NormalizedRow {
	var n normalizedPayload
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return NormalizedRow{}
	}
	return NormalizedRow{
		PMF:                    NormalizePMF(rawText(n.PMF)),
		SlightReason:           rawText(n.SlightReason),
		WhyThink:               rawText(n.WhyThink),
		FitScore:               rawScore(n.FitScore),
		FitReason:              rawText(n.FitReason),
		BestPoint:              rawText(n.BestPoint),
		BestPointSummary:       rawText(n.BestPointSummary),
		PurchaseTiming:         rawText(n.PurchaseTiming),
		PurchaseIntent:         rawText(n.PurchaseIntent),
		PurchasePlanned:        rawVerdict(n.PurchasePlanned),
		PurchaseIntentCombined: rawText(n.PurchaseIntentCombined),
		BuyReason:              rawText(n.BuyReason),
		Improvement:            rawText(n.Improvement),
		DownsideSummary:        rawText(n.DownsideSummary),
		JudgementReason:        rawText(n.JudgementReason),
	}
}

// NormalizePMF maps a free "how disappointed" answer onto the three canonical choices.
func NormalizePMF(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "매우"):
		return "매우 아쉬움"
	case strings.Contains(s, "조금"):
		return "조금 아쉬움"
	case strings.Contains(s, "별로"):
		return "별로 아쉽지 않음"
	}
	return ""
}

func sanitizeUsedColumns(cols, allowedHeaders []string) []string {
	allowed := make(map[string]struct{}, len(allowedHeaders))
	for _, h := range allowedHeaders {
		allowed[h] = struct{}{}
	}
	out := []string{}
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := allowed[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// rawText is a trimmed string field; anything else is unset.
func rawText(raw json.RawMessage) string {
	s, _ := rawString(raw)
	return strings.TrimSpace(s)
}

// rawStrings reads an array, stringifying non-string elements.
func rawStrings(raw json.RawMessage) []string {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := rawString(item); ok {
			out = append(out, s)
			continue
		}
		out = append(out, string(item))
	}
	return out
}

func rawVerdict(raw json.RawMessage) Verdict {
	var v Verdict
	_ = v.UnmarshalJSON(raw)
	return v
}

// rawScore accepts JSON numbers only, rounded to one decimal and clamped to 0..10.
func rawScore(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Round(f*10) / 10
	f = math.Min(10, math.Max(0, f))
	return &f
}
