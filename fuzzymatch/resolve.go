// Package fuzzymatch maps free-form user text onto a known metric name.
package fuzzymatch

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

type candidateSource []string

func (s candidateSource) String(i int) string { return strings.ToLower(s[i]) }
func (s candidateSource) Len() int            { return len(s) }

// Resolve returns the candidate that best matches input. The match is
// deterministic: equal scores are broken by candidate order. The second
// return is false only when candidates is empty.
func Resolve(input string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	matches := fuzzy.FindFrom(strings.ToLower(strings.TrimSpace(input)), candidateSource(candidates))
	if len(matches) > 0 {
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Score < best.Score {
				break
			}
			if m.Index < best.Index {
				best = m
			}
		}
		return candidates[best.Index], true
	}

	// No subsequence match at all; fall back to shared-rune overlap so a
	// non-empty candidate set always resolves to something.
	inputRunes := runeSet(strings.ToLower(input))
	bestIdx, bestScore := 0, -1
	for i, candidate := range candidates {
		score := overlap(inputRunes, strings.ToLower(candidate))
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return candidates[bestIdx], true
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}

func overlap(set map[rune]bool, s string) int {
	seen := make(map[rune]bool, len(s))
	count := 0
	for _, r := range s {
		if set[r] && !seen[r] {
			count++
			seen[r] = true
		}
	}
	return count
}
