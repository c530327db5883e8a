// Package rooms resolves shorthand labels and groups rooms by type.
package rooms

import (
	"math"
	"strings"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
)

// dittoMarks are the characters a "same as above" label is written with.
// NFKC turns a double prime into two primes, so the single prime is listed.
const dittoMarks = "\"'“”‘’„‟″′〃"

// Normalize returns the grouping and lookup key for a label.
func Normalize(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// IsDitto reports whether label consists only of quote marks.
func IsDitto(label string) bool {
	s := strings.TrimSpace(label)
	if s == "" {
		return false
	}
	return strings.Trim(s, dittoMarks) == ""
}

// ResolveDittos replaces every ditto label with the nearest preceding
// non-ditto label. A ditto with nothing before it keeps its own mark.
func ResolveDittos(labels []string) []string {
	resolved := make([]string, len(labels))
	last := ""
	for i, l := range labels {
		if !IsDitto(l) {
			last = l
			resolved[i] = l
			continue
		}
		if last == "" {
			resolved[i] = l
			continue
		}
		resolved[i] = last
	}
	return resolved
}

// Result is the aggregator output: one resolved label per input room and
// the unique room types in first-appearance order.
type Result struct {
	Resolved []string
	Unique   []entities.UniqueRoomInput
}

// Aggregate resolves dittos and groups rooms by normalized label.
func Aggregate(raw []entities.RawRoom) Result {
	labels := make([]string, len(raw))
	for i, r := range raw {
		labels[i] = r.Label
	}
	resolved := ResolveDittos(labels)

	index := make(map[string]int)
	seenCandidate := make(map[string]map[string]bool)
	var unique []entities.UniqueRoomInput

	for i, r := range raw {
		key := Normalize(resolved[i])
		pos, ok := index[key]
		if !ok {
			pos = len(unique)
			index[key] = pos
			seenCandidate[key] = make(map[string]bool)
			unique = append(unique, entities.UniqueRoomInput{
				Key:                key,
				RepresentativeName: strings.TrimSpace(resolved[i]),
				RepresentativeArea: r.Area,
			})
		}

		u := &unique[pos]
		u.InstanceCount++
		u.TotalAreaForType = round2(u.TotalAreaForType + r.Area)
		for _, c := range r.LabelCandidates {
			if seenCandidate[key][c] {
				continue
			}
			seenCandidate[key][c] = true
			u.LabelCandidates = append(u.LabelCandidates, c)
		}
	}

	return Result{Resolved: resolved, Unique: unique}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
