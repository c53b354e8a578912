// Package compliance evaluates rule groups against a fact mapping and
// reports per-group and overall compliance.
package compliance

// Rule is one compliance check expressed in the query language.
type Rule struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Query       string `json:"query"`
	Enabled     bool   `json:"enabled"`
	Alert       bool   `json:"alert"`
}

// RuleGroup is a named set of rules, stored as a ruleset.
type RuleGroup struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules"`
}

// RuleOutcome is the result of one rule. Known is false when the query could
// not be answered from the facts; such a rule counts as failing.
type RuleOutcome struct {
	RuleID    int64  `json:"id"`
	Name      string `json:"name"`
	Query     string `json:"query"`
	Enabled   bool   `json:"enabled"`
	Alert     bool   `json:"alert"`
	Compliant bool   `json:"compliant"`
	Known     bool   `json:"known"`
}

// GroupResult aggregates the outcomes of one group.
type GroupResult struct {
	GroupID   int64         `json:"id"`
	Name      string        `json:"name"`
	Compliant bool          `json:"compliant"`
	Rules     []RuleOutcome `json:"rules"`
}

// Result is the outcome of evaluating every group.
type Result struct {
	Compliant bool          `json:"compliant"`
	Groups    []GroupResult `json:"groups"`
}

// Failing returns the enabled rules that did not pass.
func (r Result) Failing() []RuleOutcome {
	var out []RuleOutcome
	for _, g := range r.Groups {
		for _, o := range g.Rules {
			if o.Enabled && !o.Compliant {
				out = append(out, o)
			}
		}
	}
	return out
}

// ValidationError describes a rule definition that cannot be used.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
