package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sloppy/lynistracker/internal/report"
)

func TestResolvePrefersHigherScore(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, LicenseID: 7, Signals: Signals{MAC: "aa:bb:cc:dd:ee:ff"}},
		{ID: 2, LicenseID: 7, Signals: Signals{Hostname: "web01", IPv4: "10.0.0.5"}},
	}
	signals := Signals{HostID: "new", Hostname: "web01", IPv4: "10.0.0.5", MAC: "aa:bb:cc:dd:ee:ff"}

	d := Resolve(7, candidates, signals)
	require.NotNil(t, d.Match)
	assert.Equal(t, int64(2), d.Match.ID)
	assert.Equal(t, 2, d.Score)
	assert.False(t, d.Created)
}

func TestResolveSingleSignalCreates(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, LicenseID: 7, Signals: Signals{HostID: "h1", Hostname: "web01", IPv4: "10.0.0.5"}},
	}
	d := Resolve(7, candidates, Signals{HostID: "h2", Hostname: "web01", IPv4: "10.0.0.9"})
	assert.Nil(t, d.Match)
	assert.True(t, d.Created)
	assert.Equal(t, 1, d.Score)
}

func TestResolveFirstSeenWinsTies(t *testing.T) {
	candidates := []Candidate{
		{ID: 10, LicenseID: 1, Signals: Signals{HostID: "a", Hostname: "db"}},
		{ID: 11, LicenseID: 1, Signals: Signals{HostID: "a", Hostname: "db"}},
	}
	d := Resolve(1, candidates, Signals{HostID: "a", Hostname: "db"})
	require.NotNil(t, d.Match)
	assert.Equal(t, int64(10), d.Match.ID)
}

func TestResolveIgnoresOtherLicenses(t *testing.T) {
	candidates := []Candidate{
		{ID: 1, LicenseID: 2, Signals: Signals{HostID: "a", HostID2: "b", Hostname: "web01"}},
	}
	d := Resolve(1, candidates, Signals{HostID: "a", HostID2: "b", Hostname: "web01"})
	assert.True(t, d.Created)
	assert.Equal(t, 0, d.Score)
	assert.True(t, Resolve(1, nil, Signals{HostID: "a"}).Created)
}

func TestScoreIgnoresEmptySignals(t *testing.T) {
	assert.Equal(t, 0, Score(Signals{}, Signals{}))
	assert.Equal(t, 5, Score(
		Signals{HostID: "a", HostID2: "b", Hostname: "c", IPv4: "d", MAC: "e"},
		Signals{HostID: "a", HostID2: "b", Hostname: "c", IPv4: "d", MAC: "e"},
	))
	assert.Equal(t, 1, Score(Signals{HostID: "a", Hostname: ""}, Signals{HostID: "a"}))
}

func TestFromFacts(t *testing.T) {
	p := report.Parser{Location: time.UTC}
	res := p.Parse(`hostname=web01
default_gateway[]=192.168.1.1
network_ipv4_address[]=127.0.0.1
network_ipv4_address[]=192.168.1.10
network_mac_address[]=00:00:00:00:00:00
network_mac_address[]=aa:bb:cc:dd:ee:01`, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	s := FromFacts("host-1", "host-2", res.Facts)
	assert.Equal(t, Signals{
		HostID:   "host-1",
		HostID2:  "host-2",
		Hostname: "web01",
		IPv4:     "192.168.1.10",
		MAC:      "aa:bb:cc:dd:ee:01",
	}, s)

	empty := report.Parse("hostname=bare", time.Now()).Facts
	s = FromFacts("x", "", empty)
	assert.Equal(t, "", s.IPv4, "sentinel address is not a signal")
	assert.Equal(t, "", s.MAC)
}
