// Package validation detects disagreements between the text-extraction and
// vision-extraction paths by normalizing both outputs for a region to a
// common numeric representation and comparing them against a configured
// discrepancy threshold.
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyRe = regexp.MustCompile(`[$€£¥]`)
	numberRe   = regexp.MustCompile(`[-+]?\d*\.?\d+`)

	// magnitude suffixes are matched after an optional currency symbol and
	// a number that may carry thousands separators
	kiloRe = regexp.MustCompile(`(?i)[$€£¥]?\s*([-+]?\d+(?:[,.]\d+)*)\s*K`)
	megaRe = regexp.MustCompile(`(?i)[$€£¥]?\s*([-+]?\d+(?:[,.]\d+)*)\s*M`)
	gigaRe = regexp.MustCompile(`(?i)[$€£¥]?\s*([-+]?\d+(?:[,.]\d+)*)\s*B`)
	teraRe = regexp.MustCompile(`(?i)[$€£¥]?\s*([-+]?\d+(?:[,.]\d+)*)\s*T`)
)

var magnitudes = []struct {
	re     *regexp.Regexp
	factor float64
}{
	{kiloRe, 1e3},
	{megaRe, 1e6},
	{gigaRe, 1e9},
	{teraRe, 1e12},
}

// ExtractNumeric normalizes a raw extraction string to a float. It handles,
// in precedence order: percentages ("15%" -> 0.15), magnitude suffixes with
// optional currency ("$5.2M" -> 5200000), and plain decimals after stripping
// currency symbols and thousands separators ("1,234,567" -> 1234567).
//
// The boolean result distinguishes "no numeric value present" - a normal,
// non-exceptional outcome - from a successful parse. Absence of a numeric
// value is not evidence of disagreement.
func ExtractNumeric(text string) (float64, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}

	// Percentages first: "15%" and "$15%" both read as 0.15.
	if strings.Contains(text, "%") {
		cleaned := strings.TrimSpace(currencyRe.ReplaceAllString(strings.ReplaceAll(text, "%", ""), ""))
		if match := numberRe.FindString(cleaned); match != "" {
			if v, err := strconv.ParseFloat(match, 64); err == nil {
				return v / 100.0, true
			}
		}
	}

	// Magnitude suffixes: K / M / B / T, optionally currency-prefixed.
	for _, mag := range magnitudes {
		if groups := mag.re.FindStringSubmatch(text); groups != nil {
			numStr := strings.ReplaceAll(groups[1], ",", "")
			if v, err := strconv.ParseFloat(numStr, 64); err == nil {
				return v * mag.factor, true
			}
		}
	}

	// Plain decimal after stripping currency and thousands separators.
	cleaned := strings.ReplaceAll(strings.TrimSpace(currencyRe.ReplaceAllString(text, "")), ",", "")
	if match := numberRe.FindString(cleaned); match != "" {
		if v, err := strconv.ParseFloat(match, 64); err == nil {
			return v, true
		}
	}

	return 0, false
}

// Discrepancy is the normalized distance |a-b| / max(|a|,|b|), defined as 0
// when both values are exactly zero.
func Discrepancy(a, b float64) float64 {
	absA, absB := a, b
	if absA < 0 {
		absA = -absA
	}
	if absB < 0 {
		absB = -absB
	}
	max := absA
	if absB > max {
		max = absB
	}
	if max == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}
