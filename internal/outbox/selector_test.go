package outbox

import (
	"fmt"
	"testing"

	"mercury-client/internal/testgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	r1 = "wss://r1.example.com"
	r2 = "wss://r2.example.com"
	r3 = "wss://r3.example.com"
	r4 = "wss://r4.example.com"
)

// coverageOf counts how many selected relays serve each author
func coverageOf(sel Selection, authorRelays map[string][]string) map[string]int {
	picked := make(map[string]bool)
	for _, r := range sel.Relays() {
		picked[r] = true
	}
	out := make(map[string]int)
	for author, relays := range authorRelays {
		for _, r := range relays {
			if picked[r] {
				out[author]++
			}
		}
	}
	return out
}

func TestSelectTwoAuthorsSharingARelay(t *testing.T) {
	sel := Select(map[string][]string{
		"A": {r1, r2},
		"B": {r2, r3},
	}, nil)

	require.Len(t, sel.Recommendations, 3)
	assert.Equal(t, Recommendation{Relay: r2, RequiredForFullCoverage: true, CoveredAuthors: []string{"A", "B"}}, sel.Recommendations[0])
	assert.Equal(t, Recommendation{Relay: r1, RequiredForFullCoverage: false, CoveredAuthors: []string{"A"}}, sel.Recommendations[1])
	assert.Equal(t, Recommendation{Relay: r3, RequiredForFullCoverage: false, CoveredAuthors: []string{"B"}}, sel.Recommendations[2])
	assert.Empty(t, sel.Unreachable)
	assert.Empty(t, sel.UnderReplicated)
}

func TestSelectDegenerateInputs(t *testing.T) {
	t.Run("No authors", func(t *testing.T) {
		sel := Select(nil, nil)
		assert.Empty(t, sel.Recommendations)
		assert.Empty(t, sel.Unreachable)
	})

	t.Run("Authors without relays are reported, not covered", func(t *testing.T) {
		sel := Select(map[string][]string{
			"A": {r1, r2},
			"B": nil,
		}, nil)
		assert.Equal(t, []string{"B"}, sel.Unreachable)
		for _, rec := range sel.Recommendations {
			assert.NotContains(t, rec.CoveredAuthors, "B")
		}
	})

	t.Run("Ignored relays are never picked", func(t *testing.T) {
		authorRelays := map[string][]string{
			"A": {r1, r2},
			"B": {r2, r3},
			"C": {r2},
		}
		sel := Select(authorRelays, []string{r2})
		assert.NotContains(t, sel.Relays(), r2)
		assert.Equal(t, []string{"C"}, sel.Unreachable)
		assert.ElementsMatch(t, []string{r1, r3}, sel.Relays())
	})

	t.Run("Authors with one relay get exactly that relay", func(t *testing.T) {
		authorRelays := map[string][]string{
			"A": {r1},
			"B": {r1, r2, r3},
		}
		sel := Select(authorRelays, nil)
		cov := coverageOf(sel, authorRelays)
		assert.Equal(t, 1, cov["A"])
		assert.Equal(t, 2, cov["B"])
		assert.Equal(t, []string{"A"}, sel.UnderReplicated)
	})
}

func TestSelectSingleRelayServesEveryone(t *testing.T) {
	authorRelays := map[string][]string{
		"A": {r1, r2},
		"B": {r1, r3},
		"C": {r1, r4},
	}
	sel := Select(authorRelays, nil)

	var required []string
	for _, rec := range sel.Recommendations {
		if rec.RequiredForFullCoverage {
			required = append(required, rec.Relay)
		}
	}
	assert.Equal(t, []string{r1}, required)
	assert.Len(t, sel.Recommendations, 4)
}

func TestSelectSharedSecondRelay(t *testing.T) {
	authorRelays := map[string][]string{
		"A": {r1, r2, r3},
		"B": {r1, r2, r4},
	}
	sel := Select(authorRelays, nil)
	assert.Equal(t, []string{r1, r2}, sel.Relays())
	assert.True(t, sel.Recommendations[0].RequiredForFullCoverage)
	assert.False(t, sel.Recommendations[1].RequiredForFullCoverage)
}

func TestSelectTieBreakIsDeterministic(t *testing.T) {
	authorRelays := map[string][]string{
		"A": {r4, r3},
		"B": {r2, r1},
	}
	for i := 0; i < 20; i++ {
		sel := Select(authorRelays, nil)
		assert.Equal(t, []string{r1, r3, r2, r4}, sel.Relays())
	}
}

func TestSelectCoverageCompleteness(t *testing.T) {
	g := testgen.NewGenerator(42)
	var pool []string
	for i := 0; i < 30; i++ {
		pool = append(pool, fmt.Sprintf("wss://relay%02d.example.com", i))
	}

	authorRelays := make(map[string][]string)
	for _, p := range g.Network(200, pool, 2, 6) {
		authorRelays[p.PubKey] = p.WriteRelays
	}

	sel := Select(authorRelays, nil)
	cov := coverageOf(sel, authorRelays)
	for author := range authorRelays {
		assert.GreaterOrEqual(t, cov[author], 2, "author %s", author)
	}
	assert.Empty(t, sel.Unreachable)
	assert.LessOrEqual(t, len(sel.Recommendations), len(pool))

	seen := make(map[string]bool)
	for _, r := range sel.Relays() {
		assert.False(t, seen[r], "relay %s picked twice", r)
		seen[r] = true
	}
}
