package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryIPv4(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "gateway prefix selects address",
			raw:  "default_gateway[]=192.168.1.1\nnetwork_ipv4_address[]=127.0.0.1\nnetwork_ipv4_address[]=192.168.1.10\nnetwork_ipv4_address[]=10.0.0.5",
			want: []string{"192.168.1.10"},
		},
		{
			name: "no gateway keeps every address",
			raw:  "network_ipv4_address[]=127.0.0.1\nnetwork_ipv4_address[]=10.0.0.5",
			want: []string{"127.0.0.1", "10.0.0.5"},
		},
		{
			name: "no address yields sentinel",
			raw:  "default_gateway[]=192.168.1.1",
			want: []string{"-"},
		},
		{
			name: "prefix is a substring match",
			raw:  "default_gateway[]=10.1.1.1\nnetwork_ipv4_address[]=10.1.1.7\nnetwork_ipv4_address[]=110.1.1.9",
			want: []string{"10.1.1.7", "110.1.1.9"},
		},
		{
			name: "one entry per matching gateway",
			raw:  "default_gateway[]=10.0.0.1\ndefault_gateway[]=10.0.0.254\nnetwork_ipv4_address[]=10.0.0.5",
			want: []string{"10.0.0.5", "10.0.0.5"},
		},
		{
			name: "unmatched gateway yields empty set",
			raw:  "default_gateway[]=172.16.0.1\nnetwork_ipv4_address[]=10.0.0.5",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseUTC(t, tt.raw)
			assert.Equal(t, tt.want, list(t, f, KeyPrimaryIPv4))
		})
	}
}

func TestPrimaryMAC(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		absent bool
	}{
		{
			name: "parallel to primary address",
			raw: strings.Join([]string{
				"default_gateway[]=192.168.1.1",
				"network_ipv4_address[]=127.0.0.1",
				"network_ipv4_address[]=192.168.1.10",
				"network_mac_address[]=00:00:00:00:00:00",
				"network_mac_address[]=aa:bb:cc:dd:ee:01",
			}, "\n"),
			want: "aa:bb:cc:dd:ee:01",
		},
		{
			name: "first non-loopback when no primary address",
			raw: strings.Join([]string{
				"default_gateway[]=172.16.0.1",
				"network_ipv4_address[]=127.0.0.1",
				"network_ipv4_address[]=10.0.0.5",
				"network_mac_address[]=00:00:00:00:00:00",
				"network_mac_address[]=aa:bb:cc:dd:ee:02",
			}, "\n"),
			want: "aa:bb:cc:dd:ee:02",
		},
		{
			name: "first mac when every address is loopback",
			raw: strings.Join([]string{
				"default_gateway[]=172.16.0.1",
				"network_ipv4_address[]=127.0.0.1",
				"network_ipv4_address[]=127.0.1.1",
				"network_mac_address[]=aa:bb:cc:dd:ee:03",
				"network_mac_address[]=aa:bb:cc:dd:ee:04",
			}, "\n"),
			want: "aa:bb:cc:dd:ee:03",
		},
		{
			name:   "absent without macs",
			raw:    "network_ipv4_address[]=10.0.0.5",
			absent: true,
		},
		{
			name:   "absent without addresses",
			raw:    "network_mac_address[]=aa:bb:cc:dd:ee:05",
			absent: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseUTC(t, tt.raw)
			if tt.absent {
				assert.False(t, f.Has(KeyPrimaryMAC))
				return
			}
			assert.Equal(t, tt.want, f.Text(KeyPrimaryMAC))
		})
	}
}

func TestDaysSinceAudit(t *testing.T) {
	plus5 := time.FixedZone("UTC+5", 5*3600)
	tests := []struct {
		name     string
		raw      string
		loc      *time.Location
		wantDays int64
		wantEnd  time.Time
	}{
		{
			name:     "report format in server zone",
			raw:      "report_datetime_end=2025-03-07 12:00:00",
			loc:      time.UTC,
			wantDays: 3,
			wantEnd:  time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "trailing Z is UTC",
			raw:      "report_datetime_end=2025-03-01T12:00:00Z",
			loc:      plus5,
			wantDays: 9,
			wantEnd:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "naive value read in configured zone",
			raw:      "report_datetime_end=2025-03-10 15:00:00",
			loc:      plus5,
			wantDays: 0,
			wantEnd:  time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "future timestamp clamps to zero",
			raw:      "report_datetime_end=2025-03-12 08:00:00",
			loc:      time.UTC,
			wantDays: 0,
			wantEnd:  time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "partial days round down",
			raw:      "report_datetime_end=2025-03-08T13:00:00+00:00",
			loc:      time.UTC,
			wantDays: 1,
			wantEnd:  time.Date(2025, 3, 8, 13, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parser{Location: tt.loc}
			res := p.Parse(tt.raw, fixedNow)
			require.False(t, res.Degraded)

			end, _ := res.Facts.Get(KeyReportEnd)
			ts, ok := end.Time()
			require.True(t, ok, "report end kept as %s", end.Kind())
			assert.True(t, tt.wantEnd.Equal(ts), "end %s, want %s", ts, tt.wantEnd)

			days, _ := res.Facts.Get(KeyDaysSinceAudit)
			n, ok := days.Int()
			require.True(t, ok)
			assert.Equal(t, tt.wantDays, n)
		})
	}
}

func TestDaysSinceAuditAbsentWhenUnparseable(t *testing.T) {
	for _, raw := range []string{"os=Linux", "report_datetime_end=yesterday", "report_datetime_end="} {
		f := parseUTC(t, raw)
		assert.False(t, f.Has(KeyDaysSinceAudit), "input %q", raw)
	}

	f := parseUTC(t, "report_datetime_end=yesterday")
	assert.Equal(t, "yesterday", f.Text(KeyReportEnd))
}

func TestInstalledPackageNames(t *testing.T) {
	f := parseUTC(t, "installed_packages_array=|openssh-server,1:8.9p1|fail2ban,0.11.2|bash|")

	assert.Equal(t, []string{"openssh-server,1:8.9p1", "fail2ban,0.11.2", "bash"}, list(t, f, KeyInstalledPackages))
	assert.Equal(t, []string{"openssh-server", "fail2ban", "bash"}, list(t, f, KeyInstalledPackageNames))

	v, _ := f.Get(KeyInstalledPackages + "_count")
	n, _ := v.Int()
	assert.Equal(t, int64(3), n)
}

func TestDerivedListsHaveNoCount(t *testing.T) {
	f := parseUTC(t, "network_ipv4_address[]=10.0.0.5")
	assert.True(t, f.Has("network_ipv4_address_count"))
	assert.False(t, f.Has(KeyPrimaryIPv4+"_count"))
	assert.False(t, f.Has(KeyInstalledPackageNames+"_count"))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2025-01-02 03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2025-01-02T03:04:05Z", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2025-01-02T03:04:05+02:00", time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC), true},
		{" 2025-01-02T03:04:05 ", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"02/01/2025", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.raw, time.UTC)
		assert.Equal(t, tt.ok, ok, "input %q", tt.raw)
		if tt.ok {
			assert.True(t, tt.want.Equal(got), "input %q: got %s", tt.raw, got)
		}
	}
}
