package delta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sloppy/lynistracker/internal/report"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, raw string) *report.Facts {
	t.Helper()
	p := report.Parser{Location: time.UTC}
	res := p.Parse(raw, now)
	require.False(t, res.Degraded)
	return res.Facts
}

const baseReport = `hostname=web01
hardening_index=70
report_datetime_end=2025-03-09 10:00:00
warning[]=SSH-7408|Harden SSH|
installed_packages_array=|openssh-server,1:8.9|bash,5.1|`

func TestCompareIdenticalIsEmpty(t *testing.T) {
	f := parse(t, baseReport)
	res := Compare(f, f.Clone(), nil)
	assert.True(t, res.Empty())
	assert.Equal(t, 0, res.Size())
}

func TestCompareBuckets(t *testing.T) {
	prev := parse(t, baseReport)
	next := parse(t, `hostname=web01
hardening_index=74
report_datetime_end=2025-03-10 10:00:00
installed_packages_array=|openssh-server,1:9.0|bash,5.1|
firewall_active=1`)

	res := Compare(prev, next, nil)

	require.Contains(t, res.Added, "firewall_active")
	assert.True(t, report.Int(1).Equal(res.Added["firewall_active"]))

	require.Contains(t, res.Removed, "warning")
	assert.True(t, report.List("SSH-7408", "Harden SSH").Equal(res.Removed["warning"]))
	assert.Contains(t, res.Removed, "warning_count")

	keys := make([]string, 0, len(res.Changed))
	for _, c := range res.Changed {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"days_since_audit", "hardening_index", "installed_packages_array", "report_datetime_end"}, keys)
	assert.NotContains(t, keys, "hostname")
	assert.NotContains(t, keys, "installed_package_names", "names equal when only versions change")
}

func TestCompareRendersTimestampsAsText(t *testing.T) {
	prev := parse(t, "report_datetime_end=2025-03-09 10:00:00")
	next := parse(t, "report_datetime_end=2025-03-10 10:00:00")

	res := Compare(prev, next, IgnoreSet("days_since_audit"))
	require.Len(t, res.Changed, 1)
	c := res.Changed[0]
	assert.Equal(t, report.KindString, c.Old.Kind())
	assert.Equal(t, "2025-03-09T10:00:00+00:00", c.Old.Text())
	assert.Equal(t, "2025-03-10T10:00:00+00:00", c.New.Text())

	added := Compare(nil, next, nil)
	assert.Equal(t, report.KindString, added.Added["report_datetime_end"].Kind())
}

func TestCompareListOrderMatters(t *testing.T) {
	prev := parse(t, "dns[]=1.1.1.1\ndns[]=8.8.8.8")
	next := parse(t, "dns[]=8.8.8.8\ndns[]=1.1.1.1")
	res := Compare(prev, next, nil)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, "dns", res.Changed[0].Key)
}

func TestCompareNeverReportsIgnoredKeys(t *testing.T) {
	prev := parse(t, baseReport)
	next := parse(t, "hostname=web02\nnew_key=x")
	ignore := IgnoreSet("hostname", "warning", "new_key", "hardening_index")

	res := Compare(prev, next, ignore)
	for key := range ignore {
		assert.NotContains(t, res.Added, key)
		assert.NotContains(t, res.Removed, key)
		for _, c := range res.Changed {
			assert.NotEqual(t, key, c.Key)
		}
	}
}

func TestFilterAndOnly(t *testing.T) {
	prev := parse(t, baseReport)
	next := parse(t, "hostname=web01\nhardening_index=71\nnew_key=x")
	res := Compare(prev, next, nil)

	hidden := res.Filter(func(key string, bucket Bucket) bool {
		return bucket == BucketRemoved || key == "hardening_index"
	})
	assert.Empty(t, hidden.Removed)
	assert.Contains(t, hidden.Added, "new_key")
	for _, c := range hidden.Changed {
		assert.NotEqual(t, "hardening_index", c.Key)
	}
	assert.NotEmpty(t, res.Removed, "filter leaves the source untouched")

	added := res.Only(BucketAdded)
	assert.Empty(t, added.Removed)
	assert.Empty(t, added.Changed)
	assert.Equal(t, len(res.Added), len(added.Added))
}

func TestEncodeDecode(t *testing.T) {
	prev := parse(t, baseReport)
	next := parse(t, "hostname=web01\nhardening_index=71\nnew_key=a|b")
	res := Compare(prev, next, nil)

	data, err := Encode(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"hardening_index":{"old":70,"new":71}}`)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, res.Size(), back.Size())
	require.Len(t, back.Changed, len(res.Changed))
	for i := range res.Changed {
		assert.Equal(t, res.Changed[i].Key, back.Changed[i].Key)
		assert.True(t, res.Changed[i].New.Equal(back.Changed[i].New))
	}
	assert.True(t, report.List("a", "b").Equal(back.Added["new_key"]))

	empty, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.NotNil(t, empty.Added)
}
