package itunes

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultThreshold is the minimum similarity for both match stages
const DefaultThreshold = 0.8

var bracketed = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

// Matcher picks the search result that corresponds to a known release
type Matcher struct {
	Threshold float64
}

// Best filters results by artist similarity, then returns the result whose
// album title is most similar to title. ok is false when nothing reaches
// the threshold in either stage.
func (m Matcher) Best(artist, title string, results []Result) (best Result, ok bool) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	wantArtist := Normalize(artist)
	wantTitle := Normalize(title)
	if wantTitle == "" {
		return Result{}, false
	}

	bestScore := 0.0
	for _, r := range results {
		if !artistMatches(wantArtist, Normalize(r.ArtistName), threshold) {
			continue
		}
		score := Similarity(wantTitle, Normalize(r.CollectionName))
		if score >= threshold && score > bestScore {
			best, bestScore, ok = r, score, true
		}
	}
	return best, ok
}

func artistMatches(want, got string, threshold float64) bool {
	if want == "" || got == "" {
		return false
	}
	if Similarity(want, got) >= threshold {
		return true
	}
	// "John Coltrane" should match "John Coltrane Quartet"
	return utf8.RuneCountInString(want) >= 4 && (strings.HasPrefix(got, want+" ") || strings.HasPrefix(want, got+" "))
}

// Similarity is 1 minus the Levenshtein distance scaled by the longer string
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

// Normalize lowercases s and drops edition notes in brackets, punctuation
// and a leading article.
func Normalize(s string) string {
	s = strings.ToLower(bracketed.ReplaceAllString(s, " "))
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/':
			b.WriteRune(' ')
		}
	}

	s = strings.Join(strings.Fields(b.String()), " ")
	return strings.TrimPrefix(s, "the ")
}
