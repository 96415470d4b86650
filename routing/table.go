package routing

import (
	"context"
	"sort"
)

// Table is the full ordered rule set, sorted by source prefix length
// descending so the most specific prefix is tried first. Tables are
// immutable after construction; a configuration reload builds a new table
// and swaps it in wholesale.
type Table struct {
	rules []*Rule
}

// NewTable creates a table from the given rules. The input slice is not
// retained. Rules are not required to be prefix-disjoint: overlapping
// prefixes resolve deterministically to the longest one, and the sort is
// stable so equal-length prefixes keep their configured order.
func NewTable(rules ...*Rule) *Table {
	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].sourcePrefix) > len(sorted[j].sourcePrefix)
	})
	return &Table{rules: sorted}
}

// Resolve selects the first rule whose source prefix matches the bundle's
// path and resolves it. With the rules sorted longest first, the first
// match is necessarily the most specific one. If no rule matches, a
// MatchNotFoundError listing every configured prefix is returned.
func (t *Table) Resolve(ctx context.Context, bundle *Bundle) (string, error) {
	for _, rule := range t.rules {
		if rule.matches(bundle.Path) {
			return rule.Resolve(ctx, bundle)
		}
	}
	return "", &MatchNotFoundError{Path: bundle.Path, Prefixes: t.Routes()}
}

// Routes returns the configured source prefixes in table order. It has no
// side effects.
func (t *Table) Routes() []string {
	prefixes := make([]string, len(t.rules))
	for i, rule := range t.rules {
		prefixes[i] = rule.sourcePrefix
	}
	return prefixes
}
