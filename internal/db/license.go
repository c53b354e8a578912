package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

const licenseColumns = `id, licensekey, name, is_active, max_devices, expires_at, created_at`

// GenerateLicenseKey returns a key of three dash-separated groups of eight
// lowercase hex characters.
func GenerateLicenseKey() (string, error) {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	h := hex.EncodeToString(buf[:])
	return h[0:8] + "-" + h[8:16] + "-" + h[16:24], nil
}

// Usable reports whether uploads may be accepted under l at now.
func (l License) Usable(now time.Time) bool {
	return l.Active && !l.Expired(now)
}

// Expired reports whether l has an expiry in the past.
func (l License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// AtCapacity reports whether devices already fill l.
func (l License) AtCapacity(devices int) bool {
	return l.MaxDevices != nil && devices >= *l.MaxDevices
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (License, error) {
	var l License
	var maxDevices sql.NullInt64
	var expiresAt sql.NullTime
	if err := row.Scan(&l.ID, &l.Key, &l.Name, &l.Active, &maxDevices, &expiresAt, &l.CreatedAt); err != nil {
		return License{}, err
	}
	if maxDevices.Valid {
		n := int(maxDevices.Int64)
		l.MaxDevices = &n
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		l.ExpiresAt = &t
	}
	return l, nil
}

// CreateLicense inserts a license. An empty Key is generated.
func (q *Queries) CreateLicense(l License, now time.Time) (License, error) {
	if l.Key == "" {
		key, err := GenerateLicenseKey()
		if err != nil {
			return License{}, err
		}
		l.Key = key
	}
	var maxDevices, expiresAt any
	if l.MaxDevices != nil {
		maxDevices = *l.MaxDevices
	}
	if l.ExpiresAt != nil {
		expiresAt = *l.ExpiresAt
	}
	out, err := scanLicense(q.q.QueryRow(
		`INSERT INTO license_key (licensekey, name, is_active, max_devices, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+licenseColumns,
		l.Key, l.Name, l.Active, maxDevices, expiresAt, now,
	))
	if err != nil {
		return License{}, fmt.Errorf("insert license: %w", err)
	}
	return out, nil
}

// GetLicenseByKey returns the license with the given key.
func (q *Queries) GetLicenseByKey(key string) (License, bool, error) {
	l, err := scanLicense(q.q.QueryRow(`SELECT `+licenseColumns+` FROM license_key WHERE licensekey = ?`, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return License{}, false, nil
		}
		return License{}, false, fmt.Errorf("get license by key: %w", err)
	}
	return l, true, nil
}

// GetLicenseByID returns the license with the given ID.
func (q *Queries) GetLicenseByID(id int64) (License, bool, error) {
	l, err := scanLicense(q.q.QueryRow(`SELECT `+licenseColumns+` FROM license_key WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return License{}, false, nil
		}
		return License{}, false, fmt.Errorf("get license by id: %w", err)
	}
	return l, true, nil
}

// ListLicenses returns all licenses ordered by name.
func (q *Queries) ListLicenses() ([]License, error) {
	rows, err := q.q.Query(`SELECT ` + licenseColumns + ` FROM license_key ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return licenses, nil
}

// SetLicenseActive enables or disables a license.
func (q *Queries) SetLicenseActive(id int64, active bool) error {
	res, err := q.q.Exec(`UPDATE license_key SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountDevices returns the number of devices registered under a license.
func (q *Queries) CountDevices(licenseID int64) (int, error) {
	var n int
	if err := q.q.QueryRow(`SELECT COUNT(*) FROM device WHERE license_id = ?`, licenseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}
