package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/ingest"
	"github.com/sloppy/lynistracker/internal/report"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

var ErrUnknownFormat = errors.New("unknown export format")

// LicenseExport captures a license and its devices for JSON export.
type LicenseExport struct {
	License    LicenseInfo    `json:"license"`
	ExportedAt time.Time      `json:"exported_at"`
	Devices    []DeviceExport `json:"devices"`
}

type LicenseInfo struct {
	ID         int64      `json:"id"`
	Key        string     `json:"licensekey"`
	Name       string     `json:"name"`
	Active     bool       `json:"is_active"`
	MaxDevices *int       `json:"max_devices"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DeviceExport captures a device with its latest facts.
type DeviceExport struct {
	Device DeviceInfo    `json:"device"`
	Facts  *report.Facts `json:"facts,omitempty"`
}

type DeviceInfo struct {
	ID           int64      `json:"id"`
	HostID       string     `json:"hostid"`
	HostID2      string     `json:"hostid2"`
	Hostname     string     `json:"hostname"`
	IPv4         string     `json:"ipv4"`
	MAC          string     `json:"mac"`
	OS           string     `json:"os"`
	OSFullname   string     `json:"os_fullname"`
	OSVersion    string     `json:"os_version"`
	LynisVersion string     `json:"lynis_version"`
	LastUpdate   *time.Time `json:"last_update"`
	Warnings     int        `json:"warnings"`
	Compliant    bool       `json:"compliant"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Write exports lic in format.
func Write(p *ingest.Pipeline, lic db.License, format string, now time.Time, w io.Writer) error {
	switch format {
	case FormatJSON, "":
		return LicenseJSON(p, lic, now, w)
	case FormatCSV:
		return LicenseCSV(p.DB, lic, w)
	case FormatText:
		return LicenseText(p.DB, lic, now, w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LicenseJSON writes the license, its devices and each device's latest facts
// parsed at now.
func LicenseJSON(p *ingest.Pipeline, lic db.License, now time.Time, w io.Writer) error {
	devices, err := p.DB.ListDevices(lic.ID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	exportDevices := make([]DeviceExport, 0, len(devices))
	for _, d := range devices {
		facts, _, err := p.LatestFacts(d.ID, now)
		if err != nil {
			return fmt.Errorf("latest facts for device %d: %w", d.ID, err)
		}
		exportDevices = append(exportDevices, DeviceExport{Device: NewDeviceInfo(d), Facts: facts})
	}

	payload := LicenseExport{
		License:    toLicenseInfo(lic),
		ExportedAt: now,
		Devices:    exportDevices,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func toLicenseInfo(l db.License) LicenseInfo {
	return LicenseInfo{
		ID:         l.ID,
		Key:        l.Key,
		Name:       l.Name,
		Active:     l.Active,
		MaxDevices: l.MaxDevices,
		ExpiresAt:  l.ExpiresAt,
		CreatedAt:  l.CreatedAt,
	}
}

// NewDeviceInfo converts a stored device for output.
func NewDeviceInfo(d db.Device) DeviceInfo {
	return DeviceInfo{
		ID:           d.ID,
		HostID:       d.HostID,
		HostID2:      d.HostID2,
		Hostname:     d.Hostname,
		IPv4:         d.IPv4,
		MAC:          d.MAC,
		OS:           d.OS,
		OSFullname:   d.OSFullname,
		OSVersion:    d.OSVersion,
		LynisVersion: d.LynisVersion,
		LastUpdate:   d.LastUpdate,
		Warnings:     d.Warnings,
		Compliant:    d.Compliant,
		Status:       compliance.StatusLabel(d.Compliant),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
