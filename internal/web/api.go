package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sloppy/lynistracker/internal/db"
)

var errDeviceNotFound = errors.New("device not found")

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.Logger.Error("encode response", "error", err)
		}
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, err error, status int) {
	var body errorBody
	body.Error.Message = err.Error()
	switch status {
	case http.StatusBadRequest:
		body.Error.Code = "BAD_REQUEST"
	case http.StatusNotFound:
		body.Error.Code = "NOT_FOUND"
	case http.StatusInternalServerError:
		body.Error.Code = "INTERNAL_ERROR"
	default:
		body.Error.Code = "ERR_" + strconv.Itoa(status)
	}
	s.jsonResponse(w, body, status)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.errorResponse(w, err, http.StatusBadRequest)
}

func (s *Server) notFound(w http.ResponseWriter, err error) {
	s.errorResponse(w, err, http.StatusNotFound)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.Logger.Error("request failed", "error", err)
	s.errorResponse(w, errors.New("internal server error"), http.StatusInternalServerError)
}

// loadDevice resolves the {id} URL parameter. It writes the error response
// itself and reports whether the handler may continue.
func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) (db.Device, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, errors.New("invalid device id"))
		return db.Device{}, false
	}
	device, found, err := s.DB.GetDevice(id)
	if err != nil {
		s.serverError(w, err)
		return db.Device{}, false
	}
	if !found {
		s.notFound(w, errDeviceNotFound)
		return db.Device{}, false
	}
	return device, true
}
