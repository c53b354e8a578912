package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sloppy/lynistracker/internal/identity"
)

const deviceColumns = `id, license_id, hostid, hostid2, hostname, ipv4, mac, os, os_fullname, os_version,
	lynis_version, last_update, warnings, compliant, created_at, updated_at`

func scanDevice(row rowScanner) (Device, error) {
	var d Device
	var lastUpdate sql.NullTime
	err := row.Scan(&d.ID, &d.LicenseID, &d.HostID, &d.HostID2, &d.Hostname, &d.IPv4, &d.MAC,
		&d.OS, &d.OSFullname, &d.OSVersion, &d.LynisVersion, &lastUpdate, &d.Warnings, &d.Compliant,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Device{}, err
	}
	if lastUpdate.Valid {
		t := lastUpdate.Time
		d.LastUpdate = &t
	}
	return d, nil
}

// Signals returns the identity signals stored on d.
func (d Device) Signals() identity.Signals {
	return identity.Signals{HostID: d.HostID, HostID2: d.HostID2, Hostname: d.Hostname, IPv4: d.IPv4, MAC: d.MAC}
}

// Candidate returns d as an identity candidate.
func (d Device) Candidate() identity.Candidate {
	return identity.Candidate{ID: d.ID, LicenseID: d.LicenseID, Signals: d.Signals()}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// InsertDevice creates a device row.
func (q *Queries) InsertDevice(d Device, now time.Time) (Device, error) {
	out, err := scanDevice(q.q.QueryRow(
		`INSERT INTO device (license_id, hostid, hostid2, hostname, ipv4, mac, os, os_fullname, os_version,
		   lynis_version, last_update, warnings, compliant, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+deviceColumns,
		d.LicenseID, d.HostID, d.HostID2, d.Hostname, d.IPv4, d.MAC, d.OS, d.OSFullname, d.OSVersion,
		d.LynisVersion, nullableTime(d.LastUpdate), d.Warnings, d.Compliant, now, now,
	))
	if err != nil {
		return Device{}, fmt.Errorf("insert device: %w", err)
	}
	return out, nil
}

// UpdateDevice overwrites the mutable fields of a device.
func (q *Queries) UpdateDevice(d Device, now time.Time) (Device, error) {
	out, err := scanDevice(q.q.QueryRow(
		`UPDATE device SET
		   hostid = ?, hostid2 = ?, hostname = ?, ipv4 = ?, mac = ?,
		   os = ?, os_fullname = ?, os_version = ?, lynis_version = ?,
		   last_update = ?, warnings = ?, compliant = ?, updated_at = ?
		 WHERE id = ?
		 RETURNING `+deviceColumns,
		d.HostID, d.HostID2, d.Hostname, d.IPv4, d.MAC, d.OS, d.OSFullname, d.OSVersion, d.LynisVersion,
		nullableTime(d.LastUpdate), d.Warnings, d.Compliant, now, d.ID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return Device{}, err
		}
		return Device{}, fmt.Errorf("update device: %w", err)
	}
	return out, nil
}

// SetDeviceCompliance stores the compliance flag.
func (q *Queries) SetDeviceCompliance(id int64, compliant bool, now time.Time) error {
	res, err := q.q.Exec(`UPDATE device SET compliant = ?, updated_at = ? WHERE id = ?`, compliant, now, id)
	if err != nil {
		return fmt.Errorf("update device compliance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetDevice returns a device by ID.
func (q *Queries) GetDevice(id int64) (Device, bool, error) {
	d, err := scanDevice(q.q.QueryRow(`SELECT `+deviceColumns+` FROM device WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return Device{}, false, nil
		}
		return Device{}, false, fmt.Errorf("get device: %w", err)
	}
	return d, true, nil
}

// ListDevices returns the devices of a license ordered by hostname.
func (q *Queries) ListDevices(licenseID int64) ([]Device, error) {
	return q.listDevices(`SELECT `+deviceColumns+` FROM device WHERE license_id = ? ORDER BY hostname, id`, licenseID)
}

// ListAllDevices returns every device ordered by hostname.
func (q *Queries) ListAllDevices() ([]Device, error) {
	return q.listDevices(`SELECT ` + deviceColumns + ` FROM device ORDER BY hostname, id`)
}

// FindCandidates returns the devices of a license sharing at least one
// non-empty identity signal with s, in ID order.
func (q *Queries) FindCandidates(licenseID int64, s identity.Signals) ([]identity.Candidate, error) {
	devices, err := q.listDevices(
		`SELECT `+deviceColumns+` FROM device
		 WHERE license_id = ? AND (
		   (? <> '' AND hostid = ?) OR
		   (? <> '' AND hostid2 = ?) OR
		   (? <> '' AND hostname = ?) OR
		   (? <> '' AND ipv4 = ?) OR
		   (? <> '' AND mac = ?))
		 ORDER BY id`,
		licenseID,
		s.HostID, s.HostID,
		s.HostID2, s.HostID2,
		s.Hostname, s.Hostname,
		s.IPv4, s.IPv4,
		s.MAC, s.MAC,
	)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	candidates := make([]identity.Candidate, 0, len(devices))
	for _, d := range devices {
		candidates = append(candidates, d.Candidate())
	}
	return candidates, nil
}

func (q *Queries) listDevices(query string, args ...any) ([]Device, error) {
	rows, err := q.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}
