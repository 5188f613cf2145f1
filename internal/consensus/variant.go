// Package consensus implements the robust sample-consensus position
// estimation loop: repeatedly solve a minimal lateration subset, score the
// candidate against every measurement, and keep the best model. Outliers
// (multipath, NLOS, misattributed readings) are tolerated up to the point
// where no consistent subset exists.
//
// The five classic variants are expressed as one engine parameterized by a
// sampling policy (uniform random vs quality-ordered progressive) and a
// scoring policy (inlier count, truncated quadratic, median of squared
// residuals), not as separate implementations.
package consensus

import "fmt"

// Variant selects the sample-consensus flavour.
type Variant int

const (
	// RANSAC draws uniform random subsets and scores by inlier count.
	RANSAC Variant = iota
	// LMedS draws uniform random subsets and scores by the median squared
	// residual; needs no threshold.
	LMedS
	// MSAC draws uniform random subsets and scores by the sum of
	// threshold-truncated squared residuals.
	MSAC
	// PROSAC samples in quality-score-descending order through a growing
	// window and scores by inlier count.
	PROSAC
	// PROMedS combines PROSAC's quality-ordered sampling with LMedS's
	// median-residual scoring.
	PROMedS
)

// String returns the conventional name of the variant.
func (v Variant) String() string {
	switch v {
	case RANSAC:
		return "ransac"
	case LMedS:
		return "lmeds"
	case MSAC:
		return "msac"
	case PROSAC:
		return "prosac"
	case PROMedS:
		return "promeds"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant maps a variant name (as printed by String) back to its tag.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "ransac":
		return RANSAC, nil
	case "lmeds":
		return LMedS, nil
	case "msac":
		return MSAC, nil
	case "prosac":
		return PROSAC, nil
	case "promeds":
		return PROMedS, nil
	default:
		return 0, fmt.Errorf("consensus: unknown variant %q", s)
	}
}

// qualityOrdered reports whether the variant samples in quality order.
func (v Variant) qualityOrdered() bool { return v == PROSAC || v == PROMedS }

// MedianScored reports whether the variant scores by median squared residual
// and therefore needs no inlier threshold.
func (v Variant) MedianScored() bool { return v == LMedS || v == PROMedS }

// adaptiveBound reports whether the iteration bound shrinks with the running
// best inlier ratio. Median-scored variants run to their fixed bound.
func (v Variant) adaptiveBound() bool { return !v.MedianScored() }
