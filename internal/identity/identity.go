// Package identity decides whether a fresh report comes from a host that is
// already known. Each of five signals that agrees with a stored host scores
// one point; two points make a match.
package identity

import (
	"github.com/sloppy/lynistracker/internal/report"
)

// MatchThreshold is the lowest score treated as the same host. Any single
// signal may change between scans (renames, DHCP), so one is not enough.
const MatchThreshold = 2

// Signals are the identifying values of one host. Empty means unknown.
type Signals struct {
	HostID   string `json:"hostid"`
	HostID2  string `json:"hostid2"`
	Hostname string `json:"hostname"`
	IPv4     string `json:"ipv4"`
	MAC      string `json:"mac"`
}

// Candidate is a stored host that may match.
type Candidate struct {
	ID        int64
	LicenseID int64
	Signals   Signals
}

// Decision is the outcome of Resolve. Match is nil when a new host must be
// created.
type Decision struct {
	Match   *Candidate
	Score   int
	Created bool
}

// FromFacts fills the report-derived signals from parsed facts. hostID and
// hostID2 come from the upload itself.
func FromFacts(hostID, hostID2 string, facts *report.Facts) Signals {
	s := Signals{
		HostID:   hostID,
		HostID2:  hostID2,
		Hostname: facts.Text(report.KeyHostname),
		MAC:      facts.Text(report.KeyPrimaryMAC),
	}
	if ips := facts.Strings(report.KeyPrimaryIPv4); len(ips) > 0 && ips[0] != "-" {
		s.IPv4 = ips[0]
	}
	return s
}

// Score counts the signals present on both sides with equal values.
func Score(a, b Signals) int {
	score := 0
	for _, pair := range [][2]string{
		{a.HostID, b.HostID},
		{a.HostID2, b.HostID2},
		{a.Hostname, b.Hostname},
		{a.IPv4, b.IPv4},
		{a.MAC, b.MAC},
	} {
		if pair[0] != "" && pair[0] == pair[1] {
			score++
		}
	}
	return score
}

// Resolve scores candidates belonging to licenseID against signals. On equal
// scores the candidate scanned first wins; this tie-break is arbitrary.
func Resolve(licenseID int64, candidates []Candidate, signals Signals) Decision {
	var best *Candidate
	bestScore := 0
	for i := range candidates {
		c := &candidates[i]
		if c.LicenseID != licenseID {
			continue
		}
		score := Score(c.Signals, signals)
		if best == nil || score > bestScore {
			best = c
			bestScore = score
		}
	}
	if best == nil || bestScore < MatchThreshold {
		return Decision{Score: bestScore, Created: true}
	}
	match := *best
	return Decision{Match: &match, Score: bestScore}
}
