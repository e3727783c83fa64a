package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// tokenize produces the 2-gram-plus-ASCII-word token set used by the
// Chinese-name similarity score (spec §4.5): the string is NFKC-normalized,
// lowercased, and whitespace-collapsed first, then split into overlapping
// 2-grams over the CJK runs and whole words over the ASCII runs.
func tokenize(s string) map[string]struct{} {
	norm := normalize(s)
	tokens := make(map[string]struct{})

	var asciiWord []rune
	var cjkRun []rune
	flushASCII := func() {
		if len(asciiWord) > 0 {
			tokens[string(asciiWord)] = struct{}{}
			asciiWord = asciiWord[:0]
		}
	}
	flushCJK := func() {
		for i := 0; i+1 < len(cjkRun); i++ {
			tokens[string(cjkRun[i:i+2])] = struct{}{}
		}
		if len(cjkRun) == 1 {
			tokens[string(cjkRun)] = struct{}{}
		}
		cjkRun = cjkRun[:0]
	}

	for _, r := range norm {
		switch {
		case unicode.IsSpace(r):
			flushASCII()
			flushCJK()
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			flushCJK()
			asciiWord = append(asciiWord, r)
		default:
			flushASCII()
			cjkRun = append(cjkRun, r)
		}
	}
	flushASCII()
	flushCJK()

	return tokens
}

func normalize(s string) string {
	n := normForm.String(s)
	n = strings.ToLower(n)
	return strings.Join(strings.Fields(n), " ")
}

var normForm = norm.NFKC

// jaccardSimilarity scores a against b using token-set Jaccard with a
// length-ratio penalty (spec §4.5): Jaccard = |A∩B|/|A∪B|, multiplied by
// min(|A|,|B|)/max(|A|,|B|) over rune lengths of the normalized strings.
func jaccardSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	jaccard := float64(intersection) / float64(union)

	la, lb := len([]rune(normalize(a))), len([]rune(normalize(b)))
	if la == 0 || lb == 0 {
		return 0
	}
	minLen, maxLen := la, lb
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	penalty := float64(minLen) / float64(maxLen)

	return jaccard * penalty
}
