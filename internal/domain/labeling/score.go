package labeling

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLabel is used for rooms with no text candidates.
const DefaultLabel = "ROOM"

var (
	numericPattern = regexp.MustCompile(`^[\d\s.,+\-/×xX²M]*\d[\d\s.,+\-/×xX²M]*$`)
	codePattern    = regexp.MustCompile(`^[A-Z]{1,2}[-.]?\d{2,}[A-Z]?$`)
)

// Score rates how plausible s is as a room name. Pure, no I/O.
func Score(s string) int {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return -1000
	}

	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
	}

	score := 0
	switch {
	case letters == 0 || numericPattern.MatchString(s) && letters <= 1:
		score -= 100
	case codePattern.MatchString(s):
		score -= 50
	}
	if utf8.RuneCountInString(s) <= 2 {
		score -= 30
	}
	if letters > 0 && strings.ContainsAny(s, " _") {
		score += 20
	}
	if letters >= 3 {
		bonus := letters
		if bonus > 20 {
			bonus = 20
		}
		score += 10 + bonus
	}
	return score
}

// PickLabel returns the best-scoring candidate. Ties go to the longer
// string, then to the earlier candidate.
func PickLabel(candidates []string) string {
	best := -1
	bestScore := 0
	for i, c := range candidates {
		sc := Score(c)
		if best < 0 || sc > bestScore ||
			sc == bestScore && utf8.RuneCountInString(c) > utf8.RuneCountInString(candidates[best]) {
			best, bestScore = i, sc
		}
	}
	if best < 0 {
		return DefaultLabel
	}
	return candidates[best]
}
