package budget

import (
	"math"
	"strconv"
)

// Outcome is the classification of one evaluated metric. Higher values are
// more severe.
type Outcome int

const (
	Pass Outcome = iota
	Improve
	Warn
	Fail
)

// Outcomes lists every outcome in report display order.
var Outcomes = []Outcome{Improve, Pass, Warn, Fail}

func (o Outcome) Icon() string {
	switch o {
	case Improve:
		return "⬆️"
	case Warn:
		return "⚠️"
	case Fail:
		return "❌"
	default:
		return "✅"
	}
}

func (o Outcome) String() string {
	switch o {
	case Improve:
		return "improve"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "pass"
	}
}

// Budget is the canonical form of a budget entry. A bare number in the
// configuration becomes a Budget with only a Target.
type Budget struct {
	Target    float64
	Threshold float64
	Warning   float64
}

// Flat returns a budget with no threshold.
func Flat(target float64) Budget {
	return Budget{Target: target}
}

// Detailed returns a budget with an explicit threshold. A nil warning
// defaults to a quarter of the threshold, rounded half up.
func Detailed(target, threshold float64, warning *float64) Budget {
	b := Budget{Target: target, Threshold: threshold}
	if warning != nil {
		b.Warning = *warning
	} else {
		b.Warning = DefaultWarning(threshold)
	}
	return b
}

// DefaultWarning is round(0.25 * threshold).
func DefaultWarning(threshold float64) float64 {
	return math.Floor(0.25*threshold + 0.5)
}

// ThresholdTarget is the score at which the budget fails. For ascending
// metrics it sits below the target, for descending ones above it.
func (b Budget) ThresholdTarget(ascending bool) float64 {
	if ascending {
		return b.Target - b.Threshold
	}
	return b.Target + b.Threshold
}

// Valid reports whether the budget can be compared at all. Non-positive
// targets and negative threshold targets are skipped.
func (b Budget) Valid(ascending bool) bool {
	return b.Target > 0 && b.ThresholdTarget(ascending) >= 0
}

// Evaluate classifies score against b. onFail is invoked exactly once when the
// outcome is Fail and may be nil.
func Evaluate(score float64, b Budget, ascending bool, onFail func()) Outcome {
	tt := b.ThresholdTarget(ascending)
	switch {
	case failed(score, tt, ascending):
		if onFail != nil {
			onFail()
		}
		return Fail
	case b.Threshold != 0 && warned(score, tt, b.Warning, ascending):
		return Warn
	case improved(score, b.Target, ascending):
		return Improve
	default:
		return Pass
	}
}

func failed(score, tt float64, asc bool) bool {
	if asc {
		return score < tt
	}
	return score > tt
}

// warned is inclusive on both polarities.
func warned(score, tt, warning float64, asc bool) bool {
	if asc {
		return score <= tt+warning
	}
	return score >= tt-warning
}

func improved(score, target float64, asc bool) bool {
	if asc {
		return score > target
	}
	return score < target
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
