package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload rejection reasons.
const (
	ReasonInvalidLicense = "invalid_license"
	ReasonInactive       = "inactive_license"
	ReasonExpired        = "expired_license"
	ReasonCapacity       = "capacity"
	ReasonMissingHostID  = "missing_hostid"
	ReasonEmptyReport    = "empty_report"
	ReasonTooLarge       = "too_large"
	ReasonInternal       = "internal"
)

// Metrics holds the Prometheus counters for the upload pipeline.
type Metrics struct {
	ReportsReceived   prometheus.Counter
	ReportsDegraded   prometheus.Counter
	DevicesCreated    prometheus.Counter
	DiffsCreated      prometheus.Counter
	ComplianceChanges prometheus.Counter
	EventPublishErrs  prometheus.Counter
	UploadRejected    *prometheus.CounterVec
}

// New registers the counters on reg. A nil reg yields unregistered counters.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReportsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_reports_received_total",
			Help: "Total number of reports accepted by the upload pipeline",
		}),
		ReportsDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_reports_degraded_total",
			Help: "Total number of reports whose parse recovered from an internal fault",
		}),
		DevicesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_devices_created_total",
			Help: "Total number of devices created by identity resolution",
		}),
		DiffsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_diffs_created_total",
			Help: "Total number of diff reports stored",
		}),
		ComplianceChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_compliance_changes_total",
			Help: "Total number of device compliance status changes",
		}),
		EventPublishErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "lynis_event_publish_errors_total",
			Help: "Total number of device events that failed to publish",
		}),
		UploadRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lynis_upload_rejected_total",
			Help: "Total number of rejected uploads by reason",
		}, []string{"reason"}),
	}
}

// IncrementReportsReceived increments lynis_reports_received_total.
func (m *Metrics) IncrementReportsReceived() {
	if m != nil {
		m.ReportsReceived.Inc()
	}
}

// IncrementReportsDegraded increments lynis_reports_degraded_total.
func (m *Metrics) IncrementReportsDegraded() {
	if m != nil {
		m.ReportsDegraded.Inc()
	}
}

// IncrementDevicesCreated increments lynis_devices_created_total.
func (m *Metrics) IncrementDevicesCreated() {
	if m != nil {
		m.DevicesCreated.Inc()
	}
}

// IncrementDiffsCreated increments lynis_diffs_created_total.
func (m *Metrics) IncrementDiffsCreated() {
	if m != nil {
		m.DiffsCreated.Inc()
	}
}

// IncrementComplianceChanges increments lynis_compliance_changes_total.
func (m *Metrics) IncrementComplianceChanges() {
	if m != nil {
		m.ComplianceChanges.Inc()
	}
}

// IncrementEventPublishErrors increments lynis_event_publish_errors_total.
func (m *Metrics) IncrementEventPublishErrors() {
	if m != nil {
		m.EventPublishErrs.Inc()
	}
}

// IncrementUploadRejected increments lynis_upload_rejected_total for reason.
func (m *Metrics) IncrementUploadRejected(reason string) {
	if m != nil {
		m.UploadRejected.WithLabelValues(reason).Inc()
	}
}
