package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/export"
	"github.com/sloppy/lynistracker/internal/ingest"
	"github.com/sloppy/lynistracker/internal/query"
)

var errNoReport = errors.New("no report stored for device")

type activityResponse struct {
	DeviceID int64             `json:"device_id"`
	Hostname string            `json:"hostname"`
	Activity []ingest.Activity `json:"activity"`
}

type eventResponse struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"event_type"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

type complianceResponse struct {
	DeviceID int64                    `json:"device_id"`
	Status   string                   `json:"status"`
	Result   compliance.Result        `json:"result"`
	Failing  []compliance.RuleOutcome `json:"failing"`
}

type queryResponse struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Result   *bool  `json:"result"`
}

func (s *Server) apiListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []db.Device
		err     error
	)
	if key := strings.TrimSpace(r.URL.Query().Get("license")); key != "" {
		lic, found, lerr := s.DB.GetLicenseByKey(key)
		if lerr != nil {
			s.serverError(w, lerr)
			return
		}
		if !found {
			s.notFound(w, errors.New("license not found"))
			return
		}
		devices, err = s.DB.ListDevices(lic.ID)
	} else {
		devices, err = s.DB.ListAllDevices()
	}
	if err != nil {
		s.serverError(w, err)
		return
	}
	out := make([]export.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, export.NewDeviceInfo(d))
	}
	s.jsonResponse(w, out, http.StatusOK)
}

func (s *Server) apiGetDevice(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, export.NewDeviceInfo(device), http.StatusOK)
}

func (s *Server) apiDeviceActivity(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	bucket, valid := parseBucket(r.URL.Query().Get("event_type"))
	if !valid {
		s.badRequest(w, errors.New("event_type must be all, added, changed or removed"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	activity, err := s.Pipeline.Activity(device, bucket, limit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, activityResponse{DeviceID: device.ID, Hostname: device.Hostname, Activity: activity}, http.StatusOK)
}

func (s *Server) apiDeviceEvents(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	stored, err := s.DB.ListDeviceEvents(device.ID, strings.TrimSpace(r.URL.Query().Get("event_type")))
	if err != nil {
		s.serverError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(stored))
	for _, e := range stored {
		out = append(out, eventResponse{
			EventID:   e.EventID,
			Type:      e.Type,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	s.jsonResponse(w, out, http.StatusOK)
}

func (s *Server) apiDeviceCompliance(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	res, found, err := s.Pipeline.Compliance(device, s.now())
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found {
		s.notFound(w, errNoReport)
		return
	}
	s.jsonResponse(w, complianceResponse{
		DeviceID: device.ID,
		Status:   compliance.StatusLabel(res.Compliant),
		Result:   res,
		Failing:  res.Failing(),
	}, http.StatusOK)
}

func (s *Server) queryCache() *query.Cache {
	if s.Pipeline.Evaluator == nil {
		return nil
	}
	return s.Pipeline.Evaluator.Queries
}

func (s *Server) apiDeviceQuery(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	text := r.URL.Query().Get("q")
	q, valid := s.queryCache().Parse(text)
	if !valid {
		s.badRequest(w, errors.New("query rejected"))
		return
	}
	facts, found, err := s.Pipeline.LatestFacts(device.ID, s.now())
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found {
		s.notFound(w, errNoReport)
		return
	}

	resp := queryResponse{Field: q.Field, Operator: string(q.Operator), Value: q.Value}
	if result, known := q.Eval(facts); known {
		resp.Result = &result
	}
	s.jsonResponse(w, resp, http.StatusOK)
}

func (s *Server) apiLicenseExport(w http.ResponseWriter, r *http.Request) {
	lic, found, err := s.DB.GetLicenseByKey(chi.URLParam(r, "key"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found {
		s.notFound(w, errors.New("license not found"))
		return
	}

	format := strings.TrimSpace(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatJSON
	}
	var contentType, ext string
	switch format {
	case export.FormatJSON:
		contentType, ext = "application/json", "json"
	case export.FormatCSV:
		contentType, ext = "text/csv; charset=utf-8", "csv"
	case export.FormatText:
		contentType, ext = "text/plain; charset=utf-8", "txt"
	default:
		s.badRequest(w, fmt.Errorf("unsupported format %q", format))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "license-"+lic.Name+"."+ext))
	if err := export.Write(s.Pipeline, lic, format, s.now(), w); err != nil {
		s.Logger.Error("export failed", "license_id", lic.ID, "error", err)
	}
}
