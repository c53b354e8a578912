package export

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
)

// LicenseText writes a readable summary of lic and its devices.
func LicenseText(database *db.DB, lic db.License, now time.Time, w io.Writer) error {
	devices, err := database.ListDevices(lic.ID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	fmt.Fprintf(w, "License: %s (%s)\n", lic.Name, lic.Key)
	fmt.Fprintf(w, "Exported: %s\n\n", now.UTC().Format("2006-01-02 15:04:05"))

	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Hostname\tIPv4\tOS\tLynis\tWarnings\tLast update\tStatus")
	for _, d := range devices {
		last := formatTime(d.LastUpdate)
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.Hostname, d.IPv4, d.OSFullname, d.LynisVersion, d.Warnings, last, compliance.StatusLabel(d.Compliant))
	}
	return tw.Flush()
}
