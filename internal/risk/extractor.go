package risk

import (
	"regexp"
	"strconv"
	"strings"
)

// Indicator patterns. Each group is tried in order and the first match whose
// captured number falls inside the plausibility range wins. A matched zero is
// treated as absent.
var (
	glucosePatterns = compilePatterns(
		`glucose[:\s]+is[:\s]+(\d+(?:\.\d+)?)`,
		`glucose[:\s]+(\d+(?:\.\d+)?)`,
		`blood sugar[:\s]+is[:\s]+(\d+(?:\.\d+)?)`,
		`blood sugar[:\s]+(\d+(?:\.\d+)?)`,
		`sugar level[:\s]+is[:\s]+(\d+(?:\.\d+)?)`,
		`sugar level[:\s]+(\d+(?:\.\d+)?)`,
		`(\d+(?:\.\d+)?)\s*mg/dl`,
		`glucose is (\d+(?:\.\d+)?)`,
		`glucose of (\d+(?:\.\d+)?)`,
	)

	bloodPressurePatterns = compilePatterns(
		`blood pressure[:\s]+(\d+)`,
		`bp[:\s]+(\d+)`,
		`(\d+)\s*/\s*\d+\s*mmhg`,
		`pressure is (\d+)`,
	)

	bmiPatterns = compilePatterns(
		`bmi[:\s]+is[:\s]+(\d+(?:\.\d+)?)`,
		`bmi[:\s]+(\d+(?:\.\d+)?)`,
		`body mass index[:\s]+is[:\s]+(\d+(?:\.\d+)?)`,
		`body mass index[:\s]+(\d+(?:\.\d+)?)`,
		`(\d+(?:\.\d+)?)\s*bmi`,
		`bmi of (\d+(?:\.\d+)?)`,
	)

	agePatterns = compilePatterns(
		`age[:\s]+is[:\s]+(\d+)`,
		`age[:\s]+(\d+)`,
		`(\d+)\s*years?\s*old`,
		`i am (\d+)`,
		`i'm (\d+)`,
		`aged (\d+)`,
		`age of (\d+)`,
	)

	pregnancyPatterns = compilePatterns(
		`pregnanc(?:y|ies)[:\s]+(\d+)`,
		`(\d+)\s*pregnanc(?:y|ies)`,
		`given birth (\d+)`,
	)

	insulinPatterns = compilePatterns(
		`insulin[:\s]+(\d+(?:\.\d+)?)`,
		`insulin level[:\s]+(\d+(?:\.\d+)?)`,
		`(\d+(?:\.\d+)?)\s*mu/l`,
	)

	skinThicknessPatterns = compilePatterns(
		`skin thickness[:\s]+(\d+(?:\.\d+)?)`,
		`triceps[:\s]+(\d+(?:\.\d+)?)`,
		`thickness[:\s]+(\d+(?:\.\d+)?)`,
	)

	// Pedigree is not stated numerically in conversation. Mention of family
	// history maps to a moderate fixed value.
	familyHistoryKeywords = []string{
		"family history", "parent", "mother", "father", "sibling", "diabetes in family",
	}
)

const familyHistoryPedigree = 0.5

// Extractor parses clinical indicators out of free text. It is stateless,
// deterministic, and never fails: text with no indicators yields an
// all-nil feature set.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract scans the text for every known indicator. Indicators not found
// remain nil. Extraction is idempotent: identical text always yields an
// identical feature set.
func (e *Extractor) Extract(text string) Features {
	lower := strings.ToLower(text)

	return Features{
		Pregnancies:   matchNumber(lower, pregnancyPatterns, 0, 20),
		Glucose:       matchNumber(lower, glucosePatterns, 50, 500),
		BloodPressure: matchNumber(lower, bloodPressurePatterns, 50, 200),
		SkinThickness: matchNumber(lower, skinThicknessPatterns, 0, 100),
		Insulin:       matchNumber(lower, insulinPatterns, 0, 1000),
		BMI:           matchNumber(lower, bmiPatterns, 10, 50),
		Pedigree:      matchFamilyHistory(lower),
		Age:           matchNumber(lower, agePatterns, 1, 120),
	}
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchNumber(text string, patterns []*regexp.Regexp, min, max float64) *float64 {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v == 0 || v < min || v > max {
			continue
		}
		return &v
	}
	return nil
}

func matchFamilyHistory(text string) *float64 {
	for _, kw := range familyHistoryKeywords {
		if strings.Contains(text, kw) {
			v := familyHistoryPedigree
			return &v
		}
	}
	return nil
}
