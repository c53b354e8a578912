// Package ingest runs an uploaded report through parsing, identity
// resolution, diffing and compliance evaluation, and stores the outcome in a
// single transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/delta"
	"github.com/sloppy/lynistracker/internal/events"
	"github.com/sloppy/lynistracker/internal/identity"
	"github.com/sloppy/lynistracker/internal/logging"
	"github.com/sloppy/lynistracker/internal/metrics"
	"github.com/sloppy/lynistracker/internal/report"
)

var (
	ErrInvalidLicense  = errors.New("invalid license key")
	ErrLicenseInactive = errors.New("license key is inactive")
	ErrLicenseExpired  = errors.New("license key has expired")
	ErrLicenseCapacity = errors.New("license has reached its device limit")
	ErrMissingHostID   = errors.New("host ID not found")
	ErrEmptyReport     = errors.New("no report found")
	ErrReportTooLarge  = errors.New("report too large")
)

// Report fact keys copied onto the device row.
const (
	keyOS           = "os"
	keyOSFullname   = "os_fullname"
	keyOSVersion    = "os_version"
	keyLynisVersion = "lynis_version"
	keyWarningCount = "warning_count"
)

// Upload is one report submitted by a collector.
type Upload struct {
	LicenseKey string
	HostID     string
	HostID2    string
	Report     string
}

// Stats summarizes a processed upload.
type Stats struct {
	LicenseID         int64
	DeviceID          int64
	Hostname          string
	Created           bool
	Score             int
	FullReportID      int64
	DiffCreated       bool
	DiffSize          int
	Facts             int
	Degraded          bool
	Compliant         bool
	ComplianceChanged bool
}

// Pipeline processes uploads. DB is required; every other field has a
// usable zero value.
type Pipeline struct {
	DB        *db.DB
	Parser    *report.Parser
	Evaluator *compliance.Evaluator
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// MaxReportBytes rejects larger reports when positive.
	MaxReportBytes int64
	// DiffIgnore keys are left out of stored diffs.
	DiffIgnore map[string]struct{}

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// licenseLock serializes uploads within one license, since identity
// resolution and diffing read then write license-scoped rows.
func (p *Pipeline) licenseLock(licenseID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := p.locks[licenseID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[licenseID] = l
	}
	return l
}

func (p *Pipeline) logger() *slog.Logger {
	return logging.OrDiscard(p.Logger)
}

func (p *Pipeline) parse(raw string, now time.Time) report.Result {
	if p.Parser == nil {
		return report.Parse(raw, now)
	}
	return p.Parser.Parse(raw, now)
}

func (p *Pipeline) evaluator() *compliance.Evaluator {
	if p.Evaluator == nil {
		return &compliance.Evaluator{}
	}
	return p.Evaluator
}

// CheckLicense returns the license for key when uploads may be made under
// it at now.
func (p *Pipeline) CheckLicense(key string, now time.Time) (db.License, error) {
	if strings.TrimSpace(key) == "" {
		return db.License{}, ErrInvalidLicense
	}
	lic, found, err := p.DB.GetLicenseByKey(key)
	if err != nil {
		return db.License{}, err
	}
	if !found {
		return db.License{}, ErrInvalidLicense
	}
	if !lic.Active {
		return db.License{}, ErrLicenseInactive
	}
	if lic.Expired(now) {
		return db.License{}, ErrLicenseExpired
	}
	return lic, nil
}

// UploadFile reads a report from disk and uploads it.
func (p *Pipeline) UploadFile(ctx context.Context, licenseKey, hostID, hostID2, path string, now time.Time) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("read report: %w", err)
	}
	return p.Upload(ctx, Upload{LicenseKey: licenseKey, HostID: hostID, HostID2: hostID2, Report: string(data)}, now)
}

// Upload validates u, resolves its device and stores the report, its diff
// against the previous report, the device fields and compliance flag. Events
// are published once the transaction has committed.
func (p *Pipeline) Upload(ctx context.Context, u Upload, now time.Time) (Stats, error) {
	stats, pending, err := p.upload(ctx, u, now)
	if err != nil {
		p.Metrics.IncrementUploadRejected(rejectReason(err))
		return Stats{}, err
	}
	p.Metrics.IncrementReportsReceived()
	if stats.Degraded {
		p.Metrics.IncrementReportsDegraded()
	}
	if stats.Created {
		p.Metrics.IncrementDevicesCreated()
	}
	if stats.DiffCreated {
		p.Metrics.IncrementDiffsCreated()
	}
	if stats.ComplianceChanged {
		p.Metrics.IncrementComplianceChanges()
	}
	p.publish(ctx, pending)
	return stats, nil
}

func (p *Pipeline) upload(ctx context.Context, u Upload, now time.Time) (Stats, []events.Event, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, nil, err
	}
	lic, err := p.CheckLicense(u.LicenseKey, now)
	if err != nil {
		return Stats{}, nil, err
	}
	if u.HostID == "" || u.HostID2 == "" {
		return Stats{}, nil, ErrMissingHostID
	}
	if u.Report == "" {
		return Stats{}, nil, ErrEmptyReport
	}
	if p.MaxReportBytes > 0 && int64(len(u.Report)) > p.MaxReportBytes {
		return Stats{}, nil, ErrReportTooLarge
	}

	lock := p.licenseLock(lic.ID)
	lock.Lock()
	defer lock.Unlock()

	res := p.parse(u.Report, now)
	if res.Degraded {
		p.logger().Warn("report parsed partially", "license_id", lic.ID, "hostid", u.HostID, "error", res.Err)
	}
	signals := identity.FromFacts(u.HostID, u.HostID2, res.Facts)
	stats := Stats{LicenseID: lic.ID, Facts: res.Facts.Len(), Degraded: res.Degraded, Hostname: signals.Hostname}
	var pending []events.Event

	err = p.DB.InTx(func(tx *db.Tx) error {
		candidates, err := tx.FindCandidates(lic.ID, signals)
		if err != nil {
			return err
		}
		decision := identity.Resolve(lic.ID, candidates, signals)
		stats.Score = decision.Score

		var device db.Device
		if decision.Created {
			count, err := tx.CountDevices(lic.ID)
			if err != nil {
				return err
			}
			if lic.AtCapacity(count) {
				return ErrLicenseCapacity
			}
			device, err = tx.InsertDevice(db.Device{LicenseID: lic.ID}, now)
			if err != nil {
				return err
			}
			stats.Created = true
			pending = append(pending, events.New(events.TypeDeviceCreated, lic.ID, device.ID,
				map[string]string{"hostname": signals.Hostname, "hostid": u.HostID}, now))
		} else {
			var found bool
			device, found, err = tx.GetDevice(decision.Match.ID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("matched device %d vanished", decision.Match.ID)
			}
		}
		stats.DeviceID = device.ID

		previous, hasPrevious, err := tx.LatestFullReport(device.ID)
		if err != nil {
			return err
		}
		full, err := tx.InsertFullReport(device.ID, u.Report, res.Degraded, now)
		if err != nil {
			return err
		}
		stats.FullReportID = full.ID

		if hasPrevious {
			prev := p.parse(previous.Raw, now)
			diff := delta.Compare(prev.Facts, res.Facts, p.DiffIgnore)
			data, err := delta.Encode(diff)
			if err != nil {
				return err
			}
			if _, err := tx.InsertDiffReport(device.ID, full.ID, data, now); err != nil {
				return err
			}
			stats.DiffCreated = true
			stats.DiffSize = diff.Size()
		}

		groups, err := tx.ListRuleGroups(lic.ID)
		if err != nil {
			return err
		}
		result := p.evaluator().Evaluate(groups, res.Facts)
		stats.Compliant = result.Compliant

		change, changed := compliance.DetectChange(device.Compliant, result.Compliant)
		applyFacts(&device, signals, res.Facts)
		device.Compliant = result.Compliant
		if _, err := tx.UpdateDevice(device, now); err != nil {
			return err
		}

		if changed {
			stats.ComplianceChanged = true
			pending = append(pending, events.New(events.TypeComplianceChanged, lic.ID, device.ID, map[string]string{
				"old_status": change.OldStatus(),
				"new_status": change.NewStatus(),
				"hostname":   device.Hostname,
			}, now))
		}
		for _, e := range pending {
			if _, err := tx.InsertDeviceEvent(db.DeviceEvent{
				EventID:   e.ID,
				DeviceID:  e.DeviceID,
				Type:      e.Type,
				Metadata:  e.Metadata,
				CreatedAt: e.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, nil, err
	}

	log := p.logger().With("license_id", lic.ID, "device_id", stats.DeviceID, "hostname", stats.Hostname)
	if stats.Created {
		log.Info("device created", "score", stats.Score)
	} else {
		log.Info("device matched", "score", stats.Score)
	}
	if stats.DiffCreated {
		log.Info("diff created", "entries", stats.DiffSize)
	}
	if stats.ComplianceChanged {
		log.Info("compliance changed", "compliant", stats.Compliant)
	}
	return stats, pending, nil
}

// applyFacts copies report facts and identity signals onto d. Signals absent
// from the new report keep their stored value.
func applyFacts(d *db.Device, s identity.Signals, facts *report.Facts) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.HostID, s.HostID)
	set(&d.HostID2, s.HostID2)
	set(&d.Hostname, s.Hostname)
	set(&d.IPv4, s.IPv4)
	set(&d.MAC, s.MAC)

	d.OS = facts.Text(keyOS)
	d.OSFullname = facts.Text(keyOSFullname)
	d.OSVersion = facts.Text(keyOSVersion)
	d.LynisVersion = facts.Text(keyLynisVersion)

	d.LastUpdate = nil
	if v, ok := facts.Get(report.KeyReportEnd); ok {
		if t, ok := v.Time(); ok {
			d.LastUpdate = &t
		}
	}
	d.Warnings = 0
	if v, ok := facts.Get(keyWarningCount); ok {
		if n, ok := v.Int(); ok {
			d.Warnings = int(n)
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, pending []events.Event) {
	if p.Publisher == nil {
		return
	}
	for _, e := range pending {
		if err := p.Publisher.Publish(ctx, e); err != nil {
			p.Metrics.IncrementEventPublishErrors()
			p.logger().Error("publish event", "event_id", e.ID, "event_type", e.Type, "error", err)
		}
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLicense):
		return metrics.ReasonInvalidLicense
	case errors.Is(err, ErrLicenseInactive):
		return metrics.ReasonInactive
	case errors.Is(err, ErrLicenseExpired):
		return metrics.ReasonExpired
	case errors.Is(err, ErrLicenseCapacity):
		return metrics.ReasonCapacity
	case errors.Is(err, ErrMissingHostID):
		return metrics.ReasonMissingHostID
	case errors.Is(err, ErrEmptyReport):
		return metrics.ReasonEmptyReport
	case errors.Is(err, ErrReportTooLarge):
		return metrics.ReasonTooLarge
	default:
		return metrics.ReasonInternal
	}
}
