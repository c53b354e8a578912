package compliance

import (
	"github.com/sloppy/lynistracker/internal/query"
	"github.com/sloppy/lynistracker/internal/report"
)

const (
	StatusCompliant    = "Compliant"
	StatusNonCompliant = "Non-Compliant"
)

// Evaluator applies rule groups to facts. Queries may be nil, in which case
// every rule text is parsed on each evaluation.
type Evaluator struct {
	Queries *query.Cache
}

// Evaluate runs groups with a zero Evaluator.
func Evaluate(groups []RuleGroup, facts *report.Facts) Result {
	var e Evaluator
	return e.Evaluate(groups, facts)
}

// Evaluate runs every rule of every group. Disabled rules are evaluated and
// reported but never affect their group. With no groups the result is
// compliant.
func (e *Evaluator) Evaluate(groups []RuleGroup, facts *report.Facts) Result {
	res := Result{Compliant: true, Groups: make([]GroupResult, 0, len(groups))}
	for _, g := range groups {
		gr := GroupResult{GroupID: g.ID, Name: g.Name, Compliant: true, Rules: make([]RuleOutcome, 0, len(g.Rules))}
		for _, rule := range g.Rules {
			passed, known := e.Queries.Evaluate(facts, rule.Query)
			outcome := RuleOutcome{
				RuleID:    rule.ID,
				Name:      rule.Name,
				Query:     rule.Query,
				Enabled:   rule.Enabled,
				Alert:     rule.Alert,
				Compliant: known && passed,
				Known:     known,
			}
			if rule.Enabled && !outcome.Compliant {
				gr.Compliant = false
			}
			gr.Rules = append(gr.Rules, outcome)
		}
		if !gr.Compliant {
			res.Compliant = false
		}
		res.Groups = append(res.Groups, gr)
	}
	return res
}

// Change describes a flip of the overall compliance flag.
type Change struct {
	Old bool
	New bool
}

// OldStatus renders the previous flag.
func (c Change) OldStatus() string { return StatusLabel(c.Old) }

// NewStatus renders the current flag.
func (c Change) NewStatus() string { return StatusLabel(c.New) }

// DetectChange compares the stored flag with a fresh one.
func DetectChange(previous, current bool) (Change, bool) {
	if previous == current {
		return Change{}, false
	}
	return Change{Old: previous, New: current}, true
}

// StatusLabel renders a compliance flag for events and pages.
func StatusLabel(compliant bool) string {
	if compliant {
		return StatusCompliant
	}
	return StatusNonCompliant
}
