package attribution

import (
	"gonum.org/v1/gonum/floats"

	"github.com/temcen/pirex-admin/pkg/models"
)

// Result is the outcome of Normalize.
type Result struct {
	Shares        models.BlendTriplet
	Contributions models.BlendTriplet
	Anchors       []string
	Notes         []string
	HasExtracted  bool
}

// Normalize computes contribution shares for one item from its reasons and
// the configured blend. When the reasons carry numbers for any family they
// are weighted by the blend; otherwise the blend itself is used as a
// best-effort approximation. When the weighted values are all zero the blend
// is used, and when the blend is zero as well the raw extracted values are.
// Shares sum to 1, or are all zero when neither extracted values nor blend
// carry any weight. Normalize never fails.
func Normalize(reasons []string, blend models.BlendTriplet) Result {
	parsed := ParseReasons(reasons)
	blend = sanitizeBlend(blend)

	hasExtracted := len(parsed.Contrib) > 0

	weighted := blend
	if hasExtracted {
		extracted := models.BlendTriplet{
			Pop:  parsed.Value(FamilyPop),
			Cooc: parsed.Value(FamilyCooc),
			Als:  parsed.Value(FamilyAls),
		}
		weighted = models.BlendTriplet{
			Pop:  extracted.Pop * blend.Pop,
			Cooc: extracted.Cooc * blend.Cooc,
			Als:  extracted.Als * blend.Als,
		}
		// extracted values and blend cancel out: the blend alone, then the
		// raw values when the blend is zero too
		if weighted.IsZero() {
			weighted = blend
			if weighted.IsZero() {
				weighted = extracted
			}
		}
	}

	return Result{
		Shares:        Shares(weighted),
		Contributions: weighted,
		Anchors:       parsed.Anchors,
		Notes:         parsed.Notes,
		HasExtracted:  hasExtracted,
	}
}

// Shares divides each component by the total. A zero total is treated as 1.
func Shares(weighted models.BlendTriplet) models.BlendTriplet {
	vals := []float64{weighted.Pop, weighted.Cooc, weighted.Als}
	total := floats.Sum(vals)
	if total == 0 {
		total = 1
	}
	return models.BlendTriplet{
		Pop:  vals[0] / total,
		Cooc: vals[1] / total,
		Als:  vals[2] / total,
	}
}

// sanitizeBlend clamps negative and non-finite weights to zero.
func sanitizeBlend(b models.BlendTriplet) models.BlendTriplet {
	clamp := func(v float64) float64 {
		v = finite(v)
		if v < 0 {
			return 0
		}
		return v
	}
	return models.BlendTriplet{Pop: clamp(b.Pop), Cooc: clamp(b.Cooc), Als: clamp(b.Als)}
}
