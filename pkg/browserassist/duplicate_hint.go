package browserassist

import (
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultDuplicateThreshold is the default similarity ratio at or above which two
// observations are flagged as likely duplicates (config
// browser.duplicate_threshold).
const DefaultDuplicateThreshold = 0.7

// DuplicateHint names a pair of observations judged similar enough that a
// human operator should check whether the second is redundant before
// acting on it. It is advisory only — nothing downstream of it ever
// refuses a submission on its own.
type DuplicateHint struct {
	ObservationID   string
	SimilarToID     string
	SimilarityScore float64
}

// DuplicateHintEngine compares freshly received observations against the
// store's history using a weighted sequence-similarity score: 0.8 content,
// 0.2 URL. Content and URL are both normalized (lower-cased, trimmed)
// before comparison.
type DuplicateHintEngine struct {
	threshold float64
}

// NewDuplicateHintEngine wires an engine at threshold (<=0 uses
// DefaultDuplicateThreshold).
func NewDuplicateHintEngine(threshold float64) *DuplicateHintEngine {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	return &DuplicateHintEngine{threshold: threshold}
}

// Check compares candidate against history and returns a DuplicateHint for
// every prior observation scoring at or above the configured threshold,
// most-similar first.
func (e *DuplicateHintEngine) Check(candidate BrowserObservation, history []BrowserObservation) []DuplicateHint {
	var hints []DuplicateHint
	for _, prior := range history {
		if prior.ID == candidate.ID {
			continue
		}
		score := e.similarity(candidate, prior)
		if score >= e.threshold {
			hints = append(hints, DuplicateHint{
				ObservationID:   candidate.ID,
				SimilarToID:     prior.ID,
				SimilarityScore: score,
			})
		}
	}
	for i := 1; i < len(hints); i++ {
		for j := i; j > 0 && hints[j].SimilarityScore > hints[j-1].SimilarityScore; j-- {
			hints[j], hints[j-1] = hints[j-1], hints[j]
		}
	}
	return hints
}

func (e *DuplicateHintEngine) similarity(a, b BrowserObservation) float64 {
	contentRatio := ratio(normalizeForSimilarity(a.Content), normalizeForSimilarity(b.Content))
	urlRatio := ratio(normalizeForSimilarity(a.URL), normalizeForSimilarity(b.URL))
	return 0.8*contentRatio + 0.2*urlRatio
}

func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	m := difflib.NewMatcher(splitChars(a), splitChars(b))
	return m.Ratio()
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
