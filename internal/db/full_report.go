package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codec returns the shared zstd encoder and decoder. Both are safe for
// concurrent EncodeAll/DecodeAll calls.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			codecErr = fmt.Errorf("create zstd encoder: %w", codecErr)
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
		if codecErr != nil {
			codecErr = fmt.Errorf("create zstd decoder: %w", codecErr)
		}
	})
	return encoder, decoder, codecErr
}

func compressReport(raw string) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll([]byte(raw), nil), nil
}

func decompressReport(data []byte) (string, error) {
	_, dec, err := codec()
	if err != nil {
		return "", err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress report: %w", err)
	}
	return string(raw), nil
}

// InsertFullReport stores a raw report compressed.
func (q *Queries) InsertFullReport(deviceID int64, raw string, degraded bool, now time.Time) (FullReport, error) {
	data, err := compressReport(raw)
	if err != nil {
		return FullReport{}, err
	}
	out := FullReport{DeviceID: deviceID, Raw: raw, RawSize: len(raw), Degraded: degraded}
	err = q.q.QueryRow(
		`INSERT INTO full_report (device_id, report_zstd, raw_size, degraded, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		deviceID, data, len(raw), degraded, now,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return FullReport{}, fmt.Errorf("insert full report: %w", err)
	}
	return out, nil
}

// LatestFullReport returns the most recent report stored for a device.
func (q *Queries) LatestFullReport(deviceID int64) (FullReport, bool, error) {
	var out FullReport
	var data []byte
	err := q.q.QueryRow(
		`SELECT id, device_id, report_zstd, raw_size, degraded, created_at
		 FROM full_report WHERE device_id = ? ORDER BY id DESC LIMIT 1`,
		deviceID,
	).Scan(&out.ID, &out.DeviceID, &data, &out.RawSize, &out.Degraded, &out.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return FullReport{}, false, nil
		}
		return FullReport{}, false, fmt.Errorf("latest full report: %w", err)
	}
	raw, err := decompressReport(data)
	if err != nil {
		return FullReport{}, false, err
	}
	out.Raw = raw
	return out, true, nil
}

// CountFullReports returns how many reports a device has uploaded.
func (q *Queries) CountFullReports(deviceID int64) (int, error) {
	var n int
	if err := q.q.QueryRow(`SELECT COUNT(*) FROM full_report WHERE device_id = ?`, deviceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count full reports: %w", err)
	}
	return n, nil
}
