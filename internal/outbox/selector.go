package outbox

import (
	"sort"
)

// Redundancy is how many selected relays every author should be reachable
// through after the second pass
const Redundancy = 2

// Recommendation is one relay picked by Select
type Recommendation struct {
	Relay string `json:"relay"`
	// RequiredForFullCoverage is true for relays picked in the first pass,
	// which are needed for every author to be reachable at least once.
	RequiredForFullCoverage bool     `json:"required_for_full_coverage"`
	CoveredAuthors          []string `json:"covered_authors"`
}

// Selection is the outcome of Select
type Selection struct {
	Recommendations []Recommendation `json:"recommendations"`
	// Unreachable authors have no usable relay at all. Callers are expected
	// to fall back to a default relay set for them.
	Unreachable []string `json:"unreachable,omitempty"`
	// UnderReplicated authors are covered by every relay they have, but have
	// fewer than Redundancy of them.
	UnderReplicated []string `json:"under_replicated,omitempty"`
}

// Relays returns the selected relay URLs in selection order
func (s Selection) Relays() []string {
	out := make([]string, len(s.Recommendations))
	for i, r := range s.Recommendations {
		out[i] = r.Relay
	}
	return out
}

// Select picks a small set of relays that reaches every author, then extends
// it so that every author is reachable through Redundancy relays where they
// have that many. Both passes are greedy: the relay serving the most
// still-needy authors wins, ties going to the lexicographically smallest URL.
// Relays in ignore are never picked.
func Select(authorRelays map[string][]string, ignore []string) Selection {
	ignored := make(map[string]bool, len(ignore))
	for _, r := range ignore {
		ignored[r] = true
		if n := NormalizeRelayURL(r); n != "" {
			ignored[n] = true
		}
	}

	relayAuthors := make(map[string]map[string]bool)
	available := make(map[string]int, len(authorRelays))
	var selection Selection

	for author, relays := range authorRelays {
		for _, relay := range relays {
			if relay == "" || ignored[relay] {
				continue
			}
			served, ok := relayAuthors[relay]
			if !ok {
				served = make(map[string]bool)
				relayAuthors[relay] = served
			}
			if !served[author] {
				served[author] = true
				available[author]++
			}
		}
		if available[author] == 0 {
			selection.Unreachable = append(selection.Unreachable, author)
		}
	}
	sort.Strings(selection.Unreachable)

	candidates := make([]string, 0, len(relayAuthors))
	for relay := range relayAuthors {
		candidates = append(candidates, relay)
	}
	sort.Strings(candidates)

	coverage := make(map[string]int, len(available))
	needy := make(map[string]bool, len(available))
	for author := range available {
		needy[author] = true
	}

	pick := func(required bool, target func(author string) int) {
		for len(needy) > 0 && len(candidates) > 0 {
			best, bestScore := -1, 0
			for i, relay := range candidates {
				score := 0
				for author := range relayAuthors[relay] {
					if needy[author] {
						score++
					}
				}
				if score > bestScore {
					best, bestScore = i, score
				}
			}
			if best < 0 {
				return
			}

			relay := candidates[best]
			candidates = append(candidates[:best], candidates[best+1:]...)

			covered := make([]string, 0, len(relayAuthors[relay]))
			for author := range relayAuthors[relay] {
				covered = append(covered, author)
				coverage[author]++
				if coverage[author] >= target(author) {
					delete(needy, author)
				}
			}
			sort.Strings(covered)

			selection.Recommendations = append(selection.Recommendations, Recommendation{
				Relay:                   relay,
				RequiredForFullCoverage: required,
				CoveredAuthors:          covered,
			})
		}
	}

	// Pass 1: everyone reachable once
	pick(true, func(string) int { return 1 })

	// Pass 2: everyone reachable through min(Redundancy, available) relays
	target := func(author string) int {
		return min(Redundancy, available[author])
	}
	for author, n := range coverage {
		if n < target(author) {
			needy[author] = true
		}
	}
	pick(false, target)

	for author, n := range available {
		if n < Redundancy {
			selection.UnderReplicated = append(selection.UnderReplicated, author)
		}
	}
	sort.Strings(selection.UnderReplicated)

	return selection
}
