package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
)

// LicenseCSV writes one row per device of lic.
func LicenseCSV(database *db.DB, lic db.License, w io.Writer) error {
	devices, err := database.ListDevices(lic.ID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range devices {
		if err := writer.Write(csvRow(lic, d)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvHeader() []string {
	return []string{
		"license",
		"device_id",
		"hostname",
		"hostid",
		"hostid2",
		"ipv4",
		"mac",
		"os",
		"os_fullname",
		"os_version",
		"lynis_version",
		"last_update",
		"warnings",
		"compliant",
		"status",
	}
}

func csvRow(lic db.License, d db.Device) []string {
	return []string{
		lic.Name,
		strconv.FormatInt(d.ID, 10),
		d.Hostname,
		d.HostID,
		d.HostID2,
		d.IPv4,
		d.MAC,
		d.OS,
		d.OSFullname,
		d.OSVersion,
		d.LynisVersion,
		formatTime(d.LastUpdate),
		strconv.Itoa(d.Warnings),
		strconv.FormatBool(d.Compliant),
		compliance.StatusLabel(d.Compliant),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
