// Package delta computes the structural difference between two fact
// mappings. Diffs are stored unfiltered; hiding entries is a display concern
// handled by Filter.
package delta

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sloppy/lynistracker/internal/report"
)

// Bucket names one section of a Result.
type Bucket string

const (
	BucketAdded   Bucket = "added"
	BucketRemoved Bucket = "removed"
	BucketChanged Bucket = "changed"
)

// Change is one key whose value differs between the two mappings.
type Change struct {
	Key string
	Old report.Value
	New report.Value
}

type changePair struct {
	Old report.Value `json:"old"`
	New report.Value `json:"new"`
}

// MarshalJSON writes the change as {"<key>": {"old": ..., "new": ...}}.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]changePair{c.Key: {Old: c.Old, New: c.New}})
}

// UnmarshalJSON reads the single-key form written by MarshalJSON.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw map[string]changePair
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode change: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("decode change: want one key, got %d", len(raw))
	}
	for key, pair := range raw {
		*c = Change{Key: key, Old: pair.Old, New: pair.New}
	}
	return nil
}

// Result holds the three buckets of a diff. Values are textual: timestamps
// have already been rendered as strings.
type Result struct {
	Added   map[string]report.Value `json:"added"`
	Removed map[string]report.Value `json:"removed"`
	Changed []Change                `json:"changed"`
}

// Empty reports whether the diff has no entries.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Size is the total number of entries over all buckets.
func (r Result) Size() int {
	return len(r.Added) + len(r.Removed) + len(r.Changed)
}

// Compare diffs prev against next. Keys in ignore are skipped in both
// directions. Either mapping may be nil; a nil prev makes every key of next
// an addition.
func Compare(prev, next *report.Facts, ignore map[string]struct{}) Result {
	res := Result{
		Added:   make(map[string]report.Value),
		Removed: make(map[string]report.Value),
		Changed: make([]Change, 0),
	}
	for _, key := range next.Keys() {
		if _, skip := ignore[key]; skip {
			continue
		}
		nv, _ := next.Get(key)
		nv = nv.Textual()
		ov, ok := prev.Get(key)
		if !ok {
			res.Added[key] = nv
			continue
		}
		ov = ov.Textual()
		if !ov.Equal(nv) {
			res.Changed = append(res.Changed, Change{Key: key, Old: ov, New: nv})
		}
	}
	for _, key := range prev.Keys() {
		if _, skip := ignore[key]; skip {
			continue
		}
		if next.Has(key) {
			continue
		}
		ov, _ := prev.Get(key)
		res.Removed[key] = ov.Textual()
	}
	sort.Slice(res.Changed, func(i, j int) bool { return res.Changed[i].Key < res.Changed[j].Key })
	return res
}

// IgnoreSet builds an ignore set from keys.
func IgnoreSet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

// Filter returns a copy of r without the entries for which hide returns true.
func (r Result) Filter(hide func(key string, bucket Bucket) bool) Result {
	out := Result{
		Added:   make(map[string]report.Value),
		Removed: make(map[string]report.Value),
		Changed: make([]Change, 0, len(r.Changed)),
	}
	for key, v := range r.Added {
		if !hide(key, BucketAdded) {
			out.Added[key] = v
		}
	}
	for key, v := range r.Removed {
		if !hide(key, BucketRemoved) {
			out.Removed[key] = v
		}
	}
	for _, c := range r.Changed {
		if !hide(c.Key, BucketChanged) {
			out.Changed = append(out.Changed, c)
		}
	}
	return out
}

// Only keeps the entries of one bucket.
func (r Result) Only(bucket Bucket) Result {
	return r.Filter(func(_ string, b Bucket) bool { return b != bucket })
}

// Encode serializes r for storage.
func Encode(r Result) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode diff: %w", err)
	}
	return data, nil
}

// Decode reads a diff written by Encode.
func Decode(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decode diff: %w", err)
	}
	if r.Added == nil {
		r.Added = make(map[string]report.Value)
	}
	if r.Removed == nil {
		r.Removed = make(map[string]report.Value)
	}
	if r.Changed == nil {
		r.Changed = make([]Change, 0)
	}
	return r, nil
}
