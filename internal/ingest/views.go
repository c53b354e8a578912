package ingest

import (
	"fmt"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/delta"
	"github.com/sloppy/lynistracker/internal/report"
	"github.com/sloppy/lynistracker/internal/scope"
)

// Activity is one stored diff after silence rules were applied.
type Activity struct {
	ID        int64        `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Diff      delta.Result `json:"diff"`
	Hidden    int          `json:"hidden"`
}

// LatestFacts parses the newest stored report of a device at now.
func (p *Pipeline) LatestFacts(deviceID int64, now time.Time) (*report.Facts, bool, error) {
	full, found, err := p.DB.LatestFullReport(deviceID)
	if err != nil || !found {
		return nil, false, err
	}
	return p.parse(full.Raw, now).Facts, true, nil
}

// Compliance evaluates the license's rule groups against the latest facts
// of device.
func (p *Pipeline) Compliance(device db.Device, now time.Time) (compliance.Result, bool, error) {
	facts, found, err := p.LatestFacts(device.ID, now)
	if err != nil || !found {
		return compliance.Result{}, false, err
	}
	res, err := p.Evaluate(device.LicenseID, facts)
	if err != nil {
		return compliance.Result{}, false, err
	}
	return res, true, nil
}

// Evaluate applies the license's rule groups to facts.
func (p *Pipeline) Evaluate(licenseID int64, facts *report.Facts) (compliance.Result, error) {
	groups, err := p.DB.ListRuleGroups(licenseID)
	if err != nil {
		return compliance.Result{}, err
	}
	return p.evaluator().Evaluate(groups, facts), nil
}

// Activity returns device's stored diffs, newest first, with entries hidden
// by the license's active silence rules removed. A non-empty bucket keeps
// only that bucket. limit <= 0 returns all diffs.
func (p *Pipeline) Activity(device db.Device, bucket delta.Bucket, limit int) ([]Activity, error) {
	rules, err := p.DB.ListSilenceRules(device.LicenseID, true)
	if err != nil {
		return nil, err
	}
	matcher := scope.NewMatcher(silenceRules(rules))

	stored, err := p.DB.ListDiffReports(device.ID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(stored))
	for _, s := range stored {
		diff, err := delta.Decode(s.Diff)
		if err != nil {
			return nil, fmt.Errorf("decode diff %d: %w", s.ID, err)
		}
		unsilenced := matcher.Apply(diff, device.Hostname)
		hidden := diff.Size() - unsilenced.Size()
		if bucket != "" {
			unsilenced = unsilenced.Only(bucket)
		}
		out = append(out, Activity{ID: s.ID, CreatedAt: s.CreatedAt, Diff: unsilenced, Hidden: hidden})
	}
	return out, nil
}

func silenceRules(rules []db.SilenceRule) []scope.Rule {
	out := make([]scope.Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		out = append(out, scope.Rule{KeyPattern: r.KeyPattern, EventType: r.EventType, HostPattern: r.HostPattern})
	}
	return out
}
