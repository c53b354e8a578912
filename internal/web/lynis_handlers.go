package web

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sloppy/lynistracker/internal/ingest"
)

// Bodies the Lynis client expects from the license endpoint.
const (
	licenseValid   = "Response 100"
	licenseInvalid = "Response 500"
)

func plainResponse(w http.ResponseWriter, body string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/devices", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		s.Logger.Error("health check", "error", err)
		plainResponse(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	plainResponse(w, "OK", http.StatusOK)
}

// parseForm reads url-encoded or multipart bodies, bounded by limit bytes.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(32 << 20)
	}
	return r.ParseForm()
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(0)
	if s.Pipeline.MaxReportBytes > 0 {
		limit = s.Pipeline.MaxReportBytes + formOverhead
	}
	if err := parseForm(w, r, limit); err != nil {
		if isTooLarge(err) {
			s.Logger.Warn("upload rejected", "reason", "body too large")
			plainResponse(w, "Report too large", http.StatusRequestEntityTooLarge)
			return
		}
		plainResponse(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	upload := ingest.Upload{
		LicenseKey: r.PostFormValue("licensekey"),
		HostID:     r.PostFormValue("hostid"),
		HostID2:    r.PostFormValue("hostid2"),
		Report:     r.PostFormValue("data"),
	}
	stats, err := s.Pipeline.Upload(r.Context(), upload, s.now())
	if err != nil {
		s.uploadError(w, err)
		return
	}
	s.Logger.Debug("report uploaded", "device_id", stats.DeviceID, "created", stats.Created, "facts", stats.Facts)
	plainResponse(w, "OK", http.StatusOK)
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidLicense),
		errors.Is(err, ingest.ErrLicenseInactive),
		errors.Is(err, ingest.ErrLicenseExpired):
		plainResponse(w, "Invalid license key", http.StatusUnauthorized)
	case errors.Is(err, ingest.ErrLicenseCapacity):
		plainResponse(w, "License device limit reached", http.StatusForbidden)
	case errors.Is(err, ingest.ErrMissingHostID):
		plainResponse(w, "Host ID not found", http.StatusBadRequest)
	case errors.Is(err, ingest.ErrEmptyReport):
		plainResponse(w, "No report found", http.StatusBadRequest)
	case errors.Is(err, ingest.ErrReportTooLarge):
		plainResponse(w, "Report too large", http.StatusRequestEntityTooLarge)
	default:
		s.serverError(w, err)
		return
	}
	s.Logger.Warn("upload rejected", "reason", err.Error())
}

func (s *Server) handleLicenseCheck(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, formOverhead); err != nil {
		plainResponse(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	key := r.PostFormValue("licensekey")
	if key == "" {
		plainResponse(w, "No license key provided", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("collector_version") == "" {
		plainResponse(w, "No collector version provided", http.StatusBadRequest)
		return
	}

	_, err := s.Pipeline.CheckLicense(key, s.now())
	switch {
	case err == nil:
		plainResponse(w, licenseValid, http.StatusOK)
	case errors.Is(err, ingest.ErrInvalidLicense),
		errors.Is(err, ingest.ErrLicenseInactive),
		errors.Is(err, ingest.ErrLicenseExpired):
		s.Logger.Warn("license check failed", "reason", err.Error())
		plainResponse(w, licenseInvalid, http.StatusUnauthorized)
	default:
		s.serverError(w, err)
	}
}
