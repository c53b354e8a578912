package report

import (
	"slices"
	"strings"
	"time"
)

// Keys read or written by Derive.
const (
	KeyDefaultGateway        = "default_gateway"
	KeyIPv4Addresses         = "network_ipv4_address"
	KeyMACAddresses          = "network_mac_address"
	KeyPrimaryIPv4           = "primary_ipv4_addresses"
	KeyPrimaryMAC            = "primary_mac_address"
	KeyReportEnd             = "report_datetime_end"
	KeyDaysSinceAudit        = "days_since_audit"
	KeyInstalledPackages     = "installed_packages_array"
	KeyInstalledPackageNames = "installed_package_names"
	KeyHostname              = "hostname"

	countSuffix = "_count"
	noAddress   = "-"
)

// Derive adds computed facts to f in place. The order is fixed: later steps
// read facts written by earlier ones.
func Derive(f *Facts, now time.Time, loc *time.Location) {
	addCounts(f)
	f.Set(KeyPrimaryIPv4, List(primaryIPv4(f)...))

	if mac, ok := primaryMAC(f); ok {
		f.Set(KeyPrimaryMAC, String(mac))
	} else {
		f.Delete(KeyPrimaryMAC)
	}

	end, ok := reportEnd(f, loc)
	if ok {
		f.Set(KeyReportEnd, Timestamp(end))
		f.Set(KeyDaysSinceAudit, Int(daysSince(end, now)))
	} else {
		f.Delete(KeyDaysSinceAudit)
	}

	f.Set(KeyInstalledPackageNames, List(packageNames(f.Strings(KeyInstalledPackages))...))
}

func addCounts(f *Facts) {
	for _, key := range f.Keys() {
		v, _ := f.Get(key)
		if items, ok := v.List(); ok {
			f.Set(key+countSuffix, Int(int64(len(items))))
		}
	}
}

// primaryIPv4 keeps the addresses that share a /24 prefix with any default
// gateway. The prefix test is a substring match on the first three octets,
// not a subnet check; stored rules depend on this behavior.
func primaryIPv4(f *Facts) []string {
	addrs := f.Strings(KeyIPv4Addresses)
	if len(addrs) == 0 {
		return []string{noAddress}
	}
	gateways := f.Strings(KeyDefaultGateway)
	if len(gateways) == 0 {
		return slices.Clone(addrs)
	}
	var out []string
	for _, gw := range gateways {
		prefix := networkPrefix(gw)
		for _, addr := range addrs {
			if strings.Contains(addr, prefix) {
				out = append(out, addr)
			}
		}
	}
	return out
}

func networkPrefix(gateway string) string {
	octets := strings.Split(gateway, ".")
	if len(octets) > 3 {
		octets = octets[:3]
	}
	return strings.Join(octets, ".")
}

// primaryMAC picks the MAC parallel to the primary IPv4 address. MAC and IPv4
// lists share indexes per interface.
func primaryMAC(f *Facts) (string, bool) {
	macs := f.Strings(KeyMACAddresses)
	addrs := f.Strings(KeyIPv4Addresses)
	if len(macs) == 0 || len(addrs) == 0 {
		return "", false
	}

	primary := f.Strings(KeyPrimaryIPv4)
	if len(primary) > 0 && !(len(primary) == 1 && primary[0] == noAddress) {
		if i := slices.Index(addrs, primary[0]); i >= 0 && i < len(macs) {
			return macs[i], true
		}
	}

	for i, mac := range macs {
		if i >= len(addrs) {
			break
		}
		if ip := addrs[i]; ip != "" && !isLoopback(ip) {
			return mac, true
		}
	}
	return macs[0], true
}

func isLoopback(ip string) bool {
	return ip == "127.0.0.1" || strings.HasPrefix(ip, "127.")
}

func reportEnd(f *Facts, loc *time.Location) (time.Time, bool) {
	v, ok := f.Get(KeyReportEnd)
	if !ok {
		return time.Time{}, false
	}
	if t, ok := v.Time(); ok {
		return t, true
	}
	return ParseTimestamp(v.Text(), loc)
}

// daysSince returns whole days between end and now, clamped at zero for
// reports stamped in the future.
func daysSince(end, now time.Time) int64 {
	age := now.Sub(end)
	if age < 0 {
		return 0
	}
	return int64(age / (24 * time.Hour))
}

// packageNames strips versions from "name,version" entries.
func packageNames(entries []string) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name, _, _ := strings.Cut(entry, ",")
		names = append(names, name)
	}
	return names
}
