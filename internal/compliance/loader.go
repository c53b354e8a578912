package compliance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sloppy/lynistracker/internal/query"
)

type groupsFile struct {
	Groups []groupDef `yaml:"groups"`
}

type groupDef struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Rules       []ruleDef `yaml:"rules"`
}

type ruleDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Query       string `yaml:"query"`
	Enabled     *bool  `yaml:"enabled"`
	Alert       bool   `yaml:"alert"`
}

// LoadGroups reads rule groups from a YAML file.
func LoadGroups(path string) ([]RuleGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule groups: %w", err)
	}
	groups, err := ParseGroups(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return groups, nil
}

// ParseGroups decodes and validates rule groups:
//
//	groups:
//	  - name: Baseline
//	    rules:
//	      - name: Hardened
//	        query: hardening_index >= 70
//	        alert: true
//
// Rules are enabled unless they say otherwise.
func ParseGroups(data []byte) ([]RuleGroup, error) {
	var file groupsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule groups: %w", err)
	}
	groups := make([]RuleGroup, 0, len(file.Groups))
	for gi, gd := range file.Groups {
		g := RuleGroup{Name: gd.Name, Description: gd.Description}
		for ri, rd := range gd.Rules {
			enabled := true
			if rd.Enabled != nil {
				enabled = *rd.Enabled
			}
			g.Rules = append(g.Rules, Rule{
				Name:        rd.Name,
				Description: rd.Description,
				Query:       rd.Query,
				Enabled:     enabled,
				Alert:       rd.Alert,
			})
			if err := ValidateRule(g.Rules[ri]); err != nil {
				return nil, fmt.Errorf("group %d rule %d: %w", gi, ri, err)
			}
		}
		if err := ValidateGroup(g); err != nil {
			return nil, fmt.Errorf("group %d: %w", gi, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ValidateGroup checks the group's own fields.
func ValidateGroup(g RuleGroup) error {
	if g.Name == "" {
		return &ValidationError{Field: "name", Message: "group name is required"}
	}
	return nil
}

// ValidateRule rejects rules without a name or with a query the language
// refuses.
func ValidateRule(r Rule) error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "rule name is required"}
	}
	if r.Query == "" {
		return &ValidationError{Field: "query", Message: "query is required"}
	}
	if _, ok := query.Parse(r.Query); !ok {
		return &ValidationError{Field: "query", Message: fmt.Sprintf("invalid query %q", r.Query)}
	}
	return nil
}
