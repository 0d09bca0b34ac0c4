package engine

import (
	"math"
	"sort"

	"github.com/hyperengineering/formpath/internal/answer"
	"github.com/hyperengineering/formpath/internal/types"
)

// DecisionKind records why a page was chosen.
type DecisionKind string

const (
	// DecisionMatched: a conditional rule matched.
	DecisionMatched DecisionKind = "matched"
	// DecisionDefault: no conditional rule matched; the default rule applied.
	DecisionDefault DecisionKind = "default"
	// DecisionSequential: no rule resolved; the next page in order applies.
	DecisionSequential DecisionKind = "sequential"
	// DecisionTerminal: there is no next page.
	DecisionTerminal DecisionKind = "terminal"
)

// Decision is the outcome of navigation resolution. PageID is empty for a
// terminal decision.
type Decision struct {
	Kind   DecisionKind
	PageID string
	RuleID string
}

// Next returns the next page id, or nil when the decision is terminal.
func (d Decision) Next() *string {
	if d.PageID == "" {
		return nil
	}
	id := d.PageID
	return &id
}

// ResolveNextPage picks the page after currentPageID.
//
// Non-default rules run in (Priority, ID) order and the first match wins. A
// non-default rule without a source field never matches. If none match, the
// first default rule applies; a default rule with no target ends the form.
// With no rule resolved, the sequential successor in order is used.
func ResolveNextPage(currentPageID string, rules []types.NavigationRule, answers answer.Map, order PageOrder) Decision {
	if d, ok := resolveRules(rules, answers); ok {
		return d
	}

	if next, ok := order.Successor(currentPageID); ok {
		return Decision{Kind: DecisionSequential, PageID: next}
	}
	return Decision{Kind: DecisionTerminal}
}

// resolveRules evaluates rules only. ok is false when the decision is
// unresolved and the caller must fall back to sequential order.
func resolveRules(rules []types.NavigationRule, answers answer.Map) (Decision, bool) {
	sorted := sortRules(rules)

	for _, r := range sorted {
		if r.IsDefault || r.SourceFieldName == "" {
			continue
		}
		if Evaluate(r.Operator, answers.Get(r.SourceFieldName), r.Value) {
			return ruleDecision(DecisionMatched, r), true
		}
	}

	for _, r := range sorted {
		if r.IsDefault {
			return ruleDecision(DecisionDefault, r), true
		}
	}

	return Decision{}, false
}

func ruleDecision(kind DecisionKind, r types.NavigationRule) Decision {
	if r.TargetPageID == "" {
		return Decision{Kind: DecisionTerminal, RuleID: r.ID}
	}
	return Decision{Kind: kind, PageID: r.TargetPageID, RuleID: r.ID}
}

func sortRules(rules []types.NavigationRule) []types.NavigationRule {
	sorted := append([]types.NavigationRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
