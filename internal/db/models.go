package db

import "time"

// License is a tenant key that devices upload reports under.
type License struct {
	ID         int64
	Key        string
	Name       string
	Active     bool
	MaxDevices *int
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Device is one monitored host.
type Device struct {
	ID           int64
	LicenseID    int64
	HostID       string
	HostID2      string
	Hostname     string
	IPv4         string
	MAC          string
	OS           string
	OSFullname   string
	OSVersion    string
	LynisVersion string
	LastUpdate   *time.Time
	Warnings     int
	Compliant    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullReport is a stored raw report. Raw is decompressed on read.
type FullReport struct {
	ID        int64
	DeviceID  int64
	Raw       string
	RawSize   int
	Degraded  bool
	CreatedAt time.Time
}

// DiffReport is a stored, unfiltered diff between two consecutive reports.
type DiffReport struct {
	ID           int64
	DeviceID     int64
	FullReportID int64
	Diff         []byte
	CreatedAt    time.Time
}

// DeviceEvent is an entry in a device's activity log.
type DeviceEvent struct {
	ID        int64
	EventID   string
	DeviceID  int64
	Type      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// SilenceRule hides matching diff entries when diffs are displayed.
type SilenceRule struct {
	ID          int64
	LicenseID   int64
	KeyPattern  string
	EventType   string
	HostPattern string
	Active      bool
	CreatedAt   time.Time
}
