// Package report turns the key=value text written by a Lynis audit into a
// typed fact mapping and adds the derived facts that compliance rules and
// host identification rely on.
package report

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultDeprecatedTests are test identifiers whose lines are stripped before
// parsing. They are deprecated upstream and produce noise in diffs.
var DefaultDeprecatedTests = []string{"DEB-0280", "DEB-0285", "DEB-0520", "DEB-0870", "DEB-0880"}

const listMarker = "[]"

// Result is the outcome of parsing one report. Degraded is set when parsing
// stopped on an internal fault; Facts then holds whatever was collected
// before the fault.
type Result struct {
	Facts    *Facts
	Degraded bool
	Err      error
}

// Parser parses raw report text. The zero value is usable and applies the
// default deny-list, the process-local time zone and a discarding logger.
type Parser struct {
	// DeprecatedTests overrides DefaultDeprecatedTests when non-nil.
	DeprecatedTests []string
	// Location is the zone naive timestamps are interpreted in.
	Location *time.Location
	Logger   *slog.Logger
}

// Parse parses raw with the zero Parser.
func Parse(raw string, now time.Time) Result {
	var p Parser
	return p.Parse(raw, now)
}

// Parse parses raw and derives computed facts relative to now. It never
// panics; malformed lines are skipped.
func (p *Parser) Parse(raw string, now time.Time) (res Result) {
	facts := NewFacts()
	res.Facts = facts
	defer func() {
		if r := recover(); r != nil {
			res.Degraded = true
			res.Err = fmt.Errorf("parse report: %v", r)
			p.logger().Error("report parsing failed", "error", res.Err, "facts_collected", facts.Len())
		}
	}()

	parseLines(facts, stripDeprecated(raw, p.deprecatedTests()))
	if facts.Len() == 0 {
		// Nothing to derive from; an empty report stays an empty mapping.
		return res
	}
	Derive(facts, now, p.location())
	return res
}

func (p *Parser) deprecatedTests() []string {
	if p.DeprecatedTests != nil {
		return p.DeprecatedTests
	}
	return DefaultDeprecatedTests
}

func (p *Parser) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// stripDeprecated drops every line mentioning one of tests, wherever the
// identifier appears in the line.
func stripDeprecated(raw string, tests []string) []string {
	lines := strings.Split(raw, "\n")
	if len(tests) == 0 {
		return lines
	}
	kept := lines[:0]
	for _, line := range lines {
		if mentionsAny(line, tests) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

func mentionsAny(line string, tests []string) bool {
	for _, test := range tests {
		if test != "" && strings.Contains(line, test) {
			return true
		}
	}
	return false
}

func parseLines(facts *Facts, lines []string) {
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		if base, isList := strings.CutSuffix(key, listMarker); isList {
			if base == "" {
				continue
			}
			mergeList(facts, base, elements(value))
			continue
		}
		mergeScalar(facts, key, value)
	}
}

// mergeList appends items to the list stored under key. A scalar already
// stored under key becomes the first element so the key keeps one type.
func mergeList(facts *Facts, key string, items []string) {
	existing, ok := facts.Get(key)
	if !ok {
		facts.Set(key, List(items...))
		return
	}
	var merged []string
	if list, isList := existing.List(); isList {
		merged = make([]string, 0, len(list)+len(items))
		merged = append(merged, list...)
	} else {
		merged = []string{existing.Text()}
	}
	facts.Set(key, List(append(merged, items...)...))
}

// mergeScalar stores an unmarked key. Once a key holds a list every later
// occurrence is appended to it; otherwise the last occurrence wins.
func mergeScalar(facts *Facts, key, raw string) {
	if existing, ok := facts.Get(key); ok && existing.Kind() == KindList {
		mergeList(facts, key, elements(raw))
		return
	}
	facts.Set(key, ClassifyValue(raw))
}

// ClassifyValue interprets one raw value: split on "|" if present, else on ","
// if present, else a scalar. An all-digit scalar becomes an integer.
func ClassifyValue(raw string) Value {
	if items, ok := splitDelimited(raw); ok {
		return List(items...)
	}
	return coerceScalar(raw)
}

// elements returns raw as list elements, splitting delimited values so that
// lists never nest.
func elements(raw string) []string {
	if items, ok := splitDelimited(raw); ok {
		return items
	}
	return []string{raw}
}

func splitDelimited(raw string) ([]string, bool) {
	var sep string
	switch {
	case strings.Contains(raw, "|"):
		sep = "|"
	case strings.Contains(raw, ","):
		sep = ","
	default:
		return nil, false
	}
	parts := strings.Split(raw, sep)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		items = append(items, part)
	}
	return items, true
}

func coerceScalar(raw string) Value {
	if !isASCIIDigits(raw) {
		return String(raw)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Out of int64 range; keep the digits verbatim.
		return String(raw)
	}
	return Int(n)
}

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
