// Package picker is the device side of the pick floor: the picking session,
// scan capture and matching, the local queue cache and the sync loop that
// keeps it in step with the server.
package picker

import (
	"strings"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// DefaultMinScanLength is the shortest code treated as a real scan
const DefaultMinScanLength = 3

// ScanOutcome classifies a scanned code
type ScanOutcome int

const (
	// Ignored codes are empty or too short; the caller stays silent
	Ignored ScanOutcome = iota
	// NoMatch codes match no open item; the caller plays the error tone
	NoMatch
	// Matched codes name an open item
	Matched
)

func (o ScanOutcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoMatch:
		return "no_match"
	default:
		return "ignored"
	}
}

// ScanResult is the outcome of matching a code. Index is set for Matched.
type ScanResult struct {
	Outcome ScanOutcome
	Index   int
	Code    string
}

// Normalize uppercases, strips hyphens and trims whitespace
func Normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// Match finds the item a scanned code refers to. SKU matches win over barcode
// matches and only non-terminal items are eligible; the first one in list
// order wins.
func Match(items []domain.Item, code string, minLength int) ScanResult {
	if minLength <= 0 {
		minLength = DefaultMinScanLength
	}
	normalized := Normalize(code)
	if len(normalized) < minLength {
		return ScanResult{Outcome: Ignored, Index: -1, Code: normalized}
	}

	for i := range items {
		if !items[i].IsTerminal() && Normalize(items[i].SKU) == normalized {
			return ScanResult{Outcome: Matched, Index: i, Code: normalized}
		}
	}
	for i := range items {
		if !items[i].IsTerminal() && items[i].Barcode != "" && Normalize(items[i].Barcode) == normalized {
			return ScanResult{Outcome: Matched, Index: i, Code: normalized}
		}
	}
	return ScanResult{Outcome: NoMatch, Index: -1, Code: normalized}
}
