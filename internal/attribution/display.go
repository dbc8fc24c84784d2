package attribution

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/temcen/pirex-admin/pkg/models"
)

// ReasonPriority is the fixed display order for well-known reason tags.
var ReasonPriority = []string{"recent_popularity", "co_visitation", "personalization"}

// ReasonHelp explains the reason tags the ranking backend is known to emit.
var ReasonHelp = map[string]string{
	"recent_popularity": "This item has recent traction among users (time-decayed events).",
	"co_visitation":     "This item commonly co-occurs with your anchor items (you viewed/bought similar things).",
	"personalization":   "This item is similar to your inferred preferences (embedding match).",
	"diversity":         "MMR and caps ensured a balanced mix, preventing one brand or category from dominating.",
}

// FamilyHelp describes the three blended signals.
var FamilyHelp = map[Family]string{
	FamilyPop:  "Recent popularity. Time-decayed count of how many users interacted with this item lately.",
	FamilyCooc: "Co-visitation. How often this item appears together with items you interacted with.",
	FamilyAls:  "Embeddings/personalization. Vector-space similarity to your taste profile.",
}

var (
	separatorRun  = regexp.MustCompile(`[_\-]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

func priority(tag string) int {
	for i, known := range ReasonPriority {
		if known == tag {
			return i
		}
	}
	return -1
}

// SortReasons returns a copy of reasons with the known tags first, in
// ReasonPriority order, followed by everything else sorted lexicographically.
func SortReasons(reasons []string) []string {
	sorted := make([]string, len(reasons))
	copy(sorted, reasons)

	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priority(sorted[i]), priority(sorted[j])
		switch {
		case pi == -1 && pj == -1:
			return sorted[i] < sorted[j]
		case pi == -1:
			return false
		case pj == -1:
			return true
		default:
			return pi < pj
		}
	})
	return sorted
}

// TitleWords turns a tag such as "recent_popularity" into "Recent Popularity".
// Only the first rune of each word is changed, so "3d_model" stays "3d Model".
func TitleWords(tag string) string {
	s := separatorRun.ReplaceAllString(tag, " ")
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return ""
	}
	// a Caser is stateful, so one is built per call
	upper := cases.Upper(language.English)
	words := strings.Split(s, " ")
	for i, w := range words {
		_, size := utf8.DecodeRuneInString(w)
		words[i] = upper.String(w[:size]) + w[size:]
		upper.Reset()
	}
	return strings.Join(words, " ")
}

// Badges returns the display badges for reasons in display order.
func Badges(reasons []string) []models.ReasonBadge {
	sorted := SortReasons(reasons)
	badges := make([]models.ReasonBadge, 0, len(sorted))
	for _, tag := range sorted {
		badge := models.ReasonBadge{Tag: tag, Label: TitleWords(tag)}
		if help, ok := ReasonHelp[tag]; ok {
			badge.Help = help
			badge.Known = true
		} else {
			badge.Help = "System hint: " + badge.Label
		}
		badges = append(badges, badge)
	}
	return badges
}

// NotesDuplicate reports whether the notes panel would only repeat the raw
// reasons: notes is non-empty, has the same length as reasons and the same
// set of strings.
func NotesDuplicate(notes, reasons []string) bool {
	if len(notes) == 0 || len(notes) != len(reasons) {
		return false
	}
	a := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		a[n] = struct{}{}
	}
	b := make(map[string]struct{}, len(reasons))
	for _, r := range reasons {
		b[r] = struct{}{}
	}
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Summarize renders contributions as "pop 0.62 · co 0.28 · emb 0.00".
func Summarize(c models.BlendTriplet) string {
	return fmt.Sprintf("pop %.2f · co %.2f · emb %.2f", c.Pop, c.Cooc, c.Als)
}

// Percent formats a share as a rounded percentage, e.g. "69%".
func Percent(share float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(finite(share)*100)))
}
