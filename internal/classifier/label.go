package classifier

import (
	"fmt"
	"strings"
)

// Label is one of the four survey segments, most positive first.
type Label string

const (
	PreVD Label = "PRE_VD"
	VSD   Label = "VSD"
	NSD   Label = "NSD"
	ND    Label = "ND"
)

// Labels lists every label in severity order.
var Labels = []Label{PreVD, VSD, NSD, ND}

// tieBreakOrder resolves equal vote counts toward the more conservative label.
var tieBreakOrder = []Label{ND, NSD, VSD, PreVD}

// ToLabel maps free model text onto a label. Anything unrecognised is ND.
func ToLabel(s string) Label {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "PRE_VD":
		return PreVD
	case "VSD":
		return VSD
	case "NSD":
		return NSD
	default:
		return ND
	}
}

// ParseLabel is the strict variant of ToLabel used for operator input.
func ParseLabel(s string) (Label, error) {
	norm := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
	for _, l := range Labels {
		if string(l) == norm {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown label %q (want one of PRE_VD, VSD, NSD, ND)", s)
}

func (l Label) String() string { return string(l) }
