package web

import (
	"net/http"
)

// activityPageLimit caps the diffs shown on the device page.
const activityPageLimit = 20

func (s *Server) handleDevicesList(w http.ResponseWriter, r *http.Request) {
	devices, err := s.DB.ListAllDevices()
	if err != nil {
		http.Error(w, "failed to list devices", http.StatusInternalServerError)
		return
	}
	render(w, r, devicesListPage(devices))
}

func (s *Server) handleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	device, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	now := s.now()
	detail := deviceDetail{Device: device}

	facts, found, err := s.Pipeline.LatestFacts(device.ID, now)
	if err != nil {
		http.Error(w, "failed to load report", http.StatusInternalServerError)
		return
	}
	if found {
		detail.Facts = facts
		res, err := s.Pipeline.Evaluate(device.LicenseID, facts)
		if err != nil {
			http.Error(w, "failed to load rules", http.StatusInternalServerError)
			return
		}
		detail.Compliance = &res
	}

	detail.Activity, err = s.Pipeline.Activity(device, "", activityPageLimit)
	if err != nil {
		http.Error(w, "failed to load activity", http.StatusInternalServerError)
		return
	}
	detail.Events, err = s.DB.ListDeviceEvents(device.ID, "")
	if err != nil {
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	render(w, r, deviceDetailPage(detail))
}
