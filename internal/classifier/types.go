package classifier

import (
	"bytes"
	"time"
)

// Verdict is a yes/no answer that may be missing.
type Verdict int8

const (
	Unknown Verdict = iota
	Yes
	No
)

// VerdictOf converts a plain bool.
func VerdictOf(b bool) Verdict {
	if b {
		return Yes
	}
	return No
}

// Known reports whether the model expressed an opinion.
func (v Verdict) Known() bool { return v != Unknown }

func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case Yes:
		return []byte("true"), nil
	case No:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts only literal booleans; any other value reads as Unknown.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*v = Yes
	case "false":
		*v = No
	default:
		*v = Unknown
	}
	return nil
}

// NormalizedRow holds the canonical survey fields. Empty strings are unset.
type NormalizedRow struct {
	PMF                    string   `json:"pmf,omitempty"`
	SlightReason           string   `json:"slightReason,omitempty"`
	WhyThink               string   `json:"whyThink,omitempty"`
	FitScore               *float64 `json:"fitScore"`
	FitReason              string   `json:"fitReason,omitempty"`
	BestPoint              string   `json:"bestPoint,omitempty"`
	BestPointSummary       string   `json:"bestPointSummary,omitempty"`
	PurchaseTiming         string   `json:"purchaseTiming,omitempty"`
	PurchaseIntent         string   `json:"purchaseIntent,omitempty"`
	PurchasePlanned        Verdict  `json:"purchasePlanned"`
	PurchaseIntentCombined string   `json:"purchaseIntentCombined,omitempty"`
	BuyReason              string   `json:"buyReason,omitempty"`
	Improvement            string   `json:"improvement,omitempty"`
	DownsideSummary        string   `json:"downsideSummary,omitempty"`
	JudgementReason        string   `json:"judgementReason,omitempty"`
}

// freeText returns the open-ended answers the abuse heuristic inspects.
func (r NormalizedRow) freeText() []string {
	return []string{
		r.BestPointSummary,
		r.BestPoint,
		r.DownsideSummary,
		r.SlightReason,
		r.FitReason,
		r.BuyReason,
		r.Improvement,
		r.JudgementReason,
		r.WhyThink,
	}
}

// RawEntry is one cell of the uploaded row in column order.
type RawEntry struct {
	Header      string `json:"header"`
	Value       string `json:"value"`
	ColumnIndex int    `json:"columnIndex"`
}

// Criteria are the operator supplied prompt blocks. Blank fields fall back to defaults.
type Criteria struct {
	User      string `json:"criteria,omitempty" yaml:"user"`
	CoreValue string `json:"coreValue,omitempty" yaml:"core_value"`
	Abuser    string `json:"abuserCriteria,omitempty" yaml:"abuser"`
	Discovery string `json:"discoveryCriteria,omitempty" yaml:"discovery"`
}

// Input is a single row to classify.
type Input struct {
	RowIndex   int
	Normalized NormalizedRow
	RawData    map[string]string
	RawEntries []RawEntry
	Criteria   Criteria
}

func (in Input) headers() []string {
	out := make([]string, 0, len(in.RawEntries))
	for _, e := range in.RawEntries {
		out = append(out, e.Header)
	}
	return out
}

// Vote is the sanitized answer of one sampling round.
type Vote struct {
	Label               Label         `json:"label"`
	Rationale           string        `json:"rationale"`
	WarningSignals      []string      `json:"warningSignals"`
	UsedColumns         []string      `json:"usedColumns"`
	IsAbuser            Verdict       `json:"isAbuser"`
	AbuserReason        string        `json:"abuserReason,omitempty"`
	CoreValueUnderstood Verdict       `json:"coreValueUnderstood"`
	CoreValueReason     string        `json:"coreValueReason,omitempty"`
	NormalizedData      NormalizedRow `json:"normalizedData"`
}

// Result is the reconciled classification of one row.
type Result struct {
	FinalLabel          Label         `json:"finalLabel"`
	Confidence          float64       `json:"confidence"`
	Rationale           string        `json:"rationale"`
	WarningSignals      []string      `json:"warningSignals"`
	IsAbuser            bool          `json:"isAbuser"`
	IsDiscoveryType     bool          `json:"isDiscoveryType"`
	NormalizedData      NormalizedRow `json:"normalizedData"`
	UsedColumns         []string      `json:"usedColumns"`
	CoreValueUnderstood Verdict       `json:"coreValueUnderstood"`
	CoreValueReason     string        `json:"coreValueReason,omitempty"`
	Votes               []Vote        `json:"votes"`
	Latency             time.Duration `json:"-"`
}
