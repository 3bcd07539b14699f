package localcache

import (
	"mercury-client/internal/metrics"
	"mercury-client/internal/outbox"

	"github.com/sirupsen/logrus"
)

// Plan is the relay set to subscribe to for a group of authors
type Plan struct {
	outbox.Selection
	// Fallback relays cover the authors in Unreachable
	Fallback []string `json:"fallback,omitempty"`
}

// Relays returns the selected relays followed by the fallback relays
func (p Plan) Relays() []string {
	return append(p.Selection.Relays(), p.Fallback...)
}

// SelectRelays plans subscriptions for authors from the relay lists seen so
// far. Configured ignored relays are always excluded. Authors without any
// usable relay are reported unreachable and the configured fallback relays
// are added for them.
func (lc *LocalCache) SelectRelays(authors []string, ignore []string) Plan {
	ignored := make([]string, 0, len(lc.outbox.IgnoreRelays)+len(ignore))
	ignored = append(ignored, lc.outbox.IgnoreRelays...)
	ignored = append(ignored, ignore...)

	authorRelays := make(map[string][]string, len(authors))
	for _, author := range authors {
		authorRelays[author] = lc.relays.WriteRelays(author)
	}

	plan := Plan{Selection: outbox.Select(authorRelays, ignored)}
	if len(plan.Unreachable) > 0 {
		plan.Fallback = lc.fallbackRelays(plan.Selection, ignored)
		logrus.Infof("[outbox] %d authors unreachable, adding %d fallback relays", len(plan.Unreachable), len(plan.Fallback))
	}

	required := 0
	for _, r := range plan.Recommendations {
		if r.RequiredForFullCoverage {
			required++
		}
	}
	metrics.SelectedRelays.WithLabelValues("required").Set(float64(required))
	metrics.SelectedRelays.WithLabelValues("redundancy").Set(float64(len(plan.Recommendations) - required))
	metrics.SelectedRelays.WithLabelValues("fallback").Set(float64(len(plan.Fallback)))
	metrics.UnreachableAuthors.Set(float64(len(plan.Unreachable)))

	return plan
}

func (lc *LocalCache) fallbackRelays(selection outbox.Selection, ignore []string) []string {
	skip := make(map[string]bool, len(ignore)+len(selection.Recommendations))
	for _, r := range ignore {
		skip[outbox.NormalizeRelayURL(r)] = true
	}
	for _, r := range selection.Recommendations {
		skip[r.Relay] = true
	}

	var out []string
	for _, r := range lc.outbox.FallbackRelays {
		n := outbox.NormalizeRelayURL(r)
		if n == "" || skip[n] {
			continue
		}
		skip[n] = true
		out = append(out, n)
	}
	return out
}
