// Package scope decides which diff entries are silenced for a device. Rules
// are shell globs over fact keys and hostnames and are applied when diffs are
// displayed, never when they are stored.
package scope

import (
	"path"

	"github.com/sloppy/lynistracker/internal/delta"
)

// EventAll matches every diff bucket.
const EventAll = "all"

type Rule struct {
	KeyPattern  string
	EventType   string // "all", "added", "changed" or "removed"
	HostPattern string // defaults to "*"
}

type Matcher struct {
	rules []Rule
}

// NewMatcher compiles rules. Rules with a malformed glob or an unknown event
// type are skipped.
func NewMatcher(rules []Rule) *Matcher {
	var kept []Rule
	for _, rule := range rules {
		if rule.HostPattern == "" {
			rule.HostPattern = "*"
		}
		if rule.EventType == "" {
			rule.EventType = EventAll
		}
		if !validEventType(rule.EventType) {
			continue
		}
		if _, err := path.Match(rule.KeyPattern, ""); err != nil {
			continue
		}
		if _, err := path.Match(rule.HostPattern, ""); err != nil {
			continue
		}
		kept = append(kept, rule)
	}
	return &Matcher{rules: kept}
}

func validEventType(t string) bool {
	switch t {
	case EventAll, string(delta.BucketAdded), string(delta.BucketChanged), string(delta.BucketRemoved):
		return true
	}
	return false
}

// Len returns the number of usable rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Silenced reports whether a diff entry for key in bucket on host is hidden.
func (m *Matcher) Silenced(key string, bucket delta.Bucket, host string) bool {
	for _, rule := range m.rules {
		if rule.EventType != EventAll && rule.EventType != string(bucket) {
			continue
		}
		if ok, _ := path.Match(rule.KeyPattern, key); !ok {
			continue
		}
		if ok, _ := path.Match(rule.HostPattern, host); !ok {
			continue
		}
		return true
	}
	return false
}

// Apply returns res without the entries silenced for host.
func (m *Matcher) Apply(res delta.Result, host string) delta.Result {
	if len(m.rules) == 0 {
		return res
	}
	return res.Filter(func(key string, bucket delta.Bucket) bool {
		return m.Silenced(key, bucket, host)
	})
}
