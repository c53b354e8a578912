package db

import (
	"encoding/json"
	"fmt"
	"time"
)

// InsertDiffReport stores an encoded diff for a device.
func (q *Queries) InsertDiffReport(deviceID, fullReportID int64, diff []byte, now time.Time) (DiffReport, error) {
	out := DiffReport{DeviceID: deviceID, FullReportID: fullReportID, Diff: diff}
	err := q.q.QueryRow(
		`INSERT INTO diff_report (device_id, full_report_id, diff, created_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id, created_at`,
		deviceID, fullReportID, string(diff), now,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return DiffReport{}, fmt.Errorf("insert diff report: %w", err)
	}
	return out, nil
}

// ListDiffReports returns a device's diffs, newest first. limit <= 0 returns
// all of them.
func (q *Queries) ListDiffReports(deviceID int64, limit int) ([]DiffReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.Query(
		`SELECT id, device_id, COALESCE(full_report_id, 0), diff, created_at
		 FROM diff_report WHERE device_id = ? ORDER BY id DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list diff reports: %w", err)
	}
	defer rows.Close()

	var diffs []DiffReport
	for rows.Next() {
		var d DiffReport
		var diff string
		if err := rows.Scan(&d.ID, &d.DeviceID, &d.FullReportID, &diff, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diff report: %w", err)
		}
		d.Diff = []byte(diff)
		diffs = append(diffs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return diffs, nil
}

// InsertDeviceEvent appends to a device's activity log.
func (q *Queries) InsertDeviceEvent(e DeviceEvent) (DeviceEvent, error) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return DeviceEvent{}, fmt.Errorf("encode event metadata: %w", err)
	}
	out := e
	out.Metadata = meta
	err = q.q.QueryRow(
		`INSERT INTO device_event (event_id, device_id, event_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		e.EventID, e.DeviceID, e.Type, string(data), e.CreatedAt,
	).Scan(&out.ID)
	if err != nil {
		return DeviceEvent{}, fmt.Errorf("insert device event: %w", err)
	}
	return out, nil
}

// ListDeviceEvents returns a device's events, newest first, optionally of one
// type.
func (q *Queries) ListDeviceEvents(deviceID int64, eventType string) ([]DeviceEvent, error) {
	rows, err := q.q.Query(
		`SELECT id, event_id, device_id, event_type, metadata, created_at
		 FROM device_event
		 WHERE device_id = ? AND (? = '' OR event_type = ?)
		 ORDER BY id DESC`,
		deviceID, eventType, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("list device events: %w", err)
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		var e DeviceEvent
		var meta string
		if err := rows.Scan(&e.ID, &e.EventID, &e.DeviceID, &e.Type, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device event: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// InsertSilenceRule stores a silence rule for a license.
func (q *Queries) InsertSilenceRule(r SilenceRule, now time.Time) (SilenceRule, error) {
	if r.EventType == "" {
		r.EventType = "all"
	}
	if r.HostPattern == "" {
		r.HostPattern = "*"
	}
	out := r
	err := q.q.QueryRow(
		`INSERT INTO activity_ignore_pattern (license_id, key_pattern, event_type, host_pattern, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		r.LicenseID, r.KeyPattern, r.EventType, r.HostPattern, r.Active, now,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return SilenceRule{}, fmt.Errorf("insert silence rule: %w", err)
	}
	return out, nil
}

// ListSilenceRules returns a license's silence rules; activeOnly drops
// disabled ones.
func (q *Queries) ListSilenceRules(licenseID int64, activeOnly bool) ([]SilenceRule, error) {
	rows, err := q.q.Query(
		`SELECT id, license_id, key_pattern, event_type, host_pattern, is_active, created_at
		 FROM activity_ignore_pattern
		 WHERE license_id = ? AND (? = 0 OR is_active = 1)
		 ORDER BY id`,
		licenseID, activeOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("list silence rules: %w", err)
	}
	defer rows.Close()

	var rules []SilenceRule
	for rows.Next() {
		var r SilenceRule
		if err := rows.Scan(&r.ID, &r.LicenseID, &r.KeyPattern, &r.EventType, &r.HostPattern, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan silence rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
