// Package attribution turns backend reason strings and blend weights into a
// normalized popularity / co-visitation / embedding breakdown for display.
package attribution

import (
	"math"
	"regexp"
	"strconv"
)

// Family identifies one of the three blended signal families.
type Family string

const (
	FamilyPop  Family = "pop"
	FamilyCooc Family = "cooc"
	FamilyAls  Family = "als"
)

// Families lists the signal families in display order.
var Families = []Family{FamilyPop, FamilyCooc, FamilyAls}

var (
	familyPatterns = map[Family]*regexp.Regexp{
		FamilyPop:  regexp.MustCompile(`(?i)\bpop(?:ularity)?\s*[:=]\s*([0-9.]+)`),
		FamilyCooc: regexp.MustCompile(`(?i)\b(?:co[-\s]?vis(?:itation)?|cooc)\s*[:=]\s*([0-9.]+)`),
		FamilyAls:  regexp.MustCompile(`(?i)\b(?:als|embed(?:ding)?|vec(?:tor)?)\s*[:=]\s*([0-9.]+)`),
	}
	anchorPattern = regexp.MustCompile(`(?i)\banchor\s*[:=]\s*([A-Za-z0-9_\-:.]+)`)
)

// ParsedReasons is what could be recovered from a list of reason strings.
// Contrib only holds the families that were actually found.
type ParsedReasons struct {
	Contrib map[Family]float64
	Anchors []string
	Notes   []string
}

// Has reports whether a numeric value was extracted for f.
func (p ParsedReasons) Has(f Family) bool {
	_, ok := p.Contrib[f]
	return ok
}

// Value returns the extracted value for f, or 0.
func (p ParsedReasons) Value(f Family) float64 {
	return p.Contrib[f]
}

// ParseReasons extracts per-family numbers, anchor references and free-text
// notes. A later reason overwrites an earlier value for the same family.
// Reasons without any family match are kept as notes, even when they carry
// an anchor.
func ParseReasons(reasons []string) ParsedReasons {
	parsed := ParsedReasons{
		Contrib: make(map[Family]float64, len(Families)),
		Anchors: []string{},
		Notes:   []string{},
	}

	for _, reason := range reasons {
		matched := false
		for _, family := range Families {
			m := familyPatterns[family].FindStringSubmatch(reason)
			if m == nil {
				continue
			}
			matched = true
			parsed.Contrib[family] = parseNumber(m[1])
		}

		for _, m := range anchorPattern.FindAllStringSubmatch(reason, -1) {
			if m[1] != "" {
				parsed.Anchors = append(parsed.Anchors, m[1])
			}
		}

		if !matched {
			parsed.Notes = append(parsed.Notes, reason)
		}
	}

	return parsed
}

// parseNumber accepts the digit/dot run captured by the family patterns.
// Runs like "1.2.3" still count as a match but contribute 0.
func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return finite(v)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
