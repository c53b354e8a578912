package db

import (
	"fmt"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
)

// ReplaceRuleGroups stores groups as the license's rulesets. A group whose
// name already exists replaces the stored one, rules included.
func (tx *Tx) ReplaceRuleGroups(licenseID int64, groups []compliance.RuleGroup, now time.Time) ([]compliance.RuleGroup, error) {
	out := make([]compliance.RuleGroup, 0, len(groups))
	for _, g := range groups {
		if _, err := tx.Exec(`DELETE FROM policy_ruleset WHERE license_id = ? AND name = ?`, licenseID, g.Name); err != nil {
			return nil, fmt.Errorf("delete ruleset %s: %w", g.Name, err)
		}
		stored := compliance.RuleGroup{Name: g.Name, Description: g.Description}
		err := tx.QueryRow(
			`INSERT INTO policy_ruleset (license_id, name, description, created_at)
			 VALUES (?, ?, ?, ?) RETURNING id`,
			licenseID, g.Name, g.Description, now,
		).Scan(&stored.ID)
		if err != nil {
			return nil, fmt.Errorf("insert ruleset %s: %w", g.Name, err)
		}
		for i, r := range g.Rules {
			rule := r
			err := tx.QueryRow(
				`INSERT INTO policy_rule (ruleset_id, position, name, description, rule_query, enabled, alert)
				 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
				stored.ID, i, r.Name, r.Description, r.Query, r.Enabled, r.Alert,
			).Scan(&rule.ID)
			if err != nil {
				return nil, fmt.Errorf("insert rule %s/%s: %w", g.Name, r.Name, err)
			}
			stored.Rules = append(stored.Rules, rule)
		}
		out = append(out, stored)
	}
	return out, nil
}

// ListRuleGroups returns a license's rulesets with their rules, in creation
// order.
func (q *Queries) ListRuleGroups(licenseID int64) ([]compliance.RuleGroup, error) {
	rows, err := q.q.Query(
		`SELECT s.id, s.name, s.description, r.id, r.name, r.description, r.rule_query, r.enabled, r.alert
		 FROM policy_ruleset s
		 LEFT JOIN policy_rule r ON r.ruleset_id = s.id
		 WHERE s.license_id = ?
		 ORDER BY s.id, r.position`,
		licenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rule groups: %w", err)
	}
	defer rows.Close()

	var groups []compliance.RuleGroup
	for rows.Next() {
		var g compliance.RuleGroup
		var ruleID *int64
		var name, description, query *string
		var enabled, alert *bool
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &ruleID, &name, &description, &query, &enabled, &alert); err != nil {
			return nil, fmt.Errorf("scan rule group: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].ID != g.ID {
			groups = append(groups, g)
		}
		if ruleID == nil {
			continue
		}
		last := &groups[len(groups)-1]
		last.Rules = append(last.Rules, compliance.Rule{
			ID:          *ruleID,
			Name:        *name,
			Description: *description,
			Query:       *query,
			Enabled:     *enabled,
			Alert:       *alert,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}
