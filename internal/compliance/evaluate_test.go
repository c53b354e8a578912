package compliance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sloppy/lynistracker/internal/query"
	"github.com/sloppy/lynistracker/internal/report"
)

func facts() *report.Facts {
	f := report.NewFacts()
	f.Set("hardening_index", report.Int(75))
	f.Set("os", report.String("Linux"))
	f.Set("installed_package_names", report.List("openssh-server", "fail2ban"))
	return f
}

func TestDisabledRuleDoesNotAffectGroup(t *testing.T) {
	group := RuleGroup{ID: 1, Name: "Baseline", Rules: []Rule{
		{ID: 1, Name: "hardened", Query: "hardening_index >= 70", Enabled: true},
		{ID: 2, Name: "fail2ban", Query: "installed_package_names contains fail2ban", Enabled: true},
		{ID: 3, Name: "bsd only", Query: "os = FreeBSD", Enabled: false},
	}}

	res := Evaluate([]RuleGroup{group}, facts())
	require.Len(t, res.Groups, 1)
	assert.True(t, res.Groups[0].Compliant)
	assert.True(t, res.Compliant)
	assert.False(t, res.Groups[0].Rules[2].Compliant, "disabled rules are still reported")
	assert.Empty(t, res.Failing())

	group.Rules[2].Enabled = true
	res = Evaluate([]RuleGroup{group}, facts())
	assert.False(t, res.Groups[0].Compliant)
	assert.False(t, res.Compliant)
	require.Len(t, res.Failing(), 1)
	assert.Equal(t, int64(3), res.Failing()[0].RuleID)
}

func TestUnknownCountsAsNonCompliant(t *testing.T) {
	group := RuleGroup{Name: "Audit", Rules: []Rule{
		{Name: "age", Query: "days_since_audit < 7", Enabled: true},
	}}
	res := Evaluate([]RuleGroup{group}, facts())
	require.Len(t, res.Groups[0].Rules, 1)
	outcome := res.Groups[0].Rules[0]
	assert.False(t, outcome.Known)
	assert.False(t, outcome.Compliant)
	assert.False(t, res.Compliant)
}

func TestOverallIsAndOverGroups(t *testing.T) {
	pass := RuleGroup{Name: "pass", Rules: []Rule{{Name: "a", Query: "os = Linux", Enabled: true}}}
	fail := RuleGroup{Name: "fail", Rules: []Rule{{Name: "b", Query: "hardening_index > 90", Enabled: true, Alert: true}}}

	res := Evaluate([]RuleGroup{pass, fail}, facts())
	assert.False(t, res.Compliant)
	assert.True(t, res.Groups[0].Compliant)
	assert.False(t, res.Groups[1].Compliant)
	assert.True(t, res.Groups[1].Rules[0].Alert)

	assert.True(t, Evaluate(nil, facts()).Compliant)
	assert.True(t, Evaluate([]RuleGroup{{Name: "empty"}}, facts()).Compliant)
}

func TestEvaluatorUsesCache(t *testing.T) {
	cache, err := query.NewCache(8)
	require.NoError(t, err)
	e := Evaluator{Queries: cache}
	group := RuleGroup{Name: "g", Rules: []Rule{{Name: "a", Query: "os = Linux", Enabled: true}}}

	for i := 0; i < 3; i++ {
		assert.True(t, e.Evaluate([]RuleGroup{group}, facts()).Compliant)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestDetectChange(t *testing.T) {
	_, changed := DetectChange(true, true)
	assert.False(t, changed)

	c, changed := DetectChange(false, true)
	require.True(t, changed)
	assert.Equal(t, StatusNonCompliant, c.OldStatus())
	assert.Equal(t, StatusCompliant, c.NewStatus())

	c, changed = DetectChange(true, false)
	require.True(t, changed)
	assert.Equal(t, "Compliant", c.OldStatus())
	assert.Equal(t, "Non-Compliant", c.NewStatus())
}

const groupsYAML = `
groups:
  - name: Baseline
    description: minimum hardening
    rules:
      - name: Hardened
        query: hardening_index >= 70
        alert: true
      - name: Intrusion prevention
        query: contains(installed_package_names, 'fail2ban')
      - name: Legacy
        query: os = SunOS
        enabled: false
  - name: Freshness
    rules:
      - name: Recent audit
        query: days_since_audit <= 7
`

func TestParseGroups(t *testing.T) {
	groups, err := ParseGroups([]byte(groupsYAML))
	require.NoError(t, err)
	require.Len(t, groups, 2)

	base := groups[0]
	assert.Equal(t, "Baseline", base.Name)
	assert.Equal(t, "minimum hardening", base.Description)
	require.Len(t, base.Rules, 3)
	assert.True(t, base.Rules[0].Enabled)
	assert.True(t, base.Rules[0].Alert)
	assert.True(t, base.Rules[1].Enabled)
	assert.False(t, base.Rules[2].Enabled)

	res := Evaluate(groups, facts())
	assert.True(t, res.Groups[0].Compliant)
	assert.False(t, res.Groups[1].Compliant)
}

func TestParseGroupsValidation(t *testing.T) {
	tests := map[string]string{
		"bad query":     "groups:\n  - name: g\n    rules:\n      - name: r\n        query: x && y\n",
		"missing query": "groups:\n  - name: g\n    rules:\n      - name: r\n",
		"missing name":  "groups:\n  - name: g\n    rules:\n      - query: os = Linux\n",
		"group name":    "groups:\n  - rules:\n      - name: r\n        query: os = Linux\n",
		"code":          "groups:\n  - name: g\n    rules:\n      - name: r\n        query: x = eval('1')\n",
	}
	for name, doc := range tests {
		_, err := ParseGroups([]byte(doc))
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "%s: got %v", name, err)
	}

	_, err := ParseGroups([]byte("groups: [unterminated"))
	assert.Error(t, err)
}

func TestLoadGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(groupsYAML), 0o644))

	groups, err := LoadGroups(path)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = LoadGroups(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
