package testutil

import (
	"fmt"
	"strings"
)

// Host describes the machine a sample report is generated for.
type Host struct {
	Hostname       string
	IPv4           string
	MAC            string
	Gateway        string
	ReportEnd      string
	HardeningIndex int
	Warnings       int
	Packages       []string
}

// WebHost is the default sample host.
var WebHost = Host{
	Hostname:       "web01",
	IPv4:           "192.168.1.10",
	MAC:            "aa:bb:cc:dd:ee:01",
	Gateway:        "192.168.1.1",
	ReportEnd:      "2025-03-09 10:00:00",
	HardeningIndex: 70,
	Warnings:       2,
	Packages:       []string{"openssh-server,1:8.9p1", "bash,5.1"},
}

// Report renders h as Lynis report text. extra lines are appended verbatim.
func Report(h Host, extra ...string) string {
	var b strings.Builder
	b.WriteString("# Lynis Report\n")
	b.WriteString("report_version_major=1\n")
	fmt.Fprintf(&b, "hostname=%s\n", h.Hostname)
	b.WriteString("os=Linux\n")
	b.WriteString("os_fullname=Ubuntu 22.04.4 LTS\n")
	b.WriteString("os_version=22.04\n")
	b.WriteString("lynis_version=3.0.9\n")
	if h.ReportEnd != "" {
		fmt.Fprintf(&b, "report_datetime_end=%s\n", h.ReportEnd)
	}
	fmt.Fprintf(&b, "hardening_index=%d\n", h.HardeningIndex)
	fmt.Fprintf(&b, "warning_count=%d\n", h.Warnings)
	b.WriteString("network_ipv4_address[]=127.0.0.1\n")
	b.WriteString("network_mac_address[]=00:00:00:00:00:00\n")
	if h.IPv4 != "" {
		fmt.Fprintf(&b, "network_ipv4_address[]=%s\n", h.IPv4)
	}
	if h.MAC != "" {
		fmt.Fprintf(&b, "network_mac_address[]=%s\n", h.MAC)
	}
	if h.Gateway != "" {
		fmt.Fprintf(&b, "default_gateway[]=%s\n", h.Gateway)
	}
	if len(h.Packages) > 0 {
		fmt.Fprintf(&b, "installed_packages_array=|%s|\n", strings.Join(h.Packages, "|"))
	}
	for _, line := range extra {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
