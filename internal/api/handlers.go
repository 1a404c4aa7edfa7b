// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamzrod/erv-controller/internal/codec"
	"github.com/tamzrod/erv-controller/internal/erv"
	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
	"github.com/tamzrod/erv-controller/internal/session"
	"github.com/tamzrod/erv-controller/internal/status"
	"github.com/tamzrod/erv-controller/internal/transport"
)

type deviceInfo struct {
	Name    string `json:"name"`
	Session string `json:"session"`
	Model   string `json:"model"`
	State   string `json:"state"`
	Health  string `json:"health"`
}

type ackResponse struct {
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	entries := s.entries()
	out := make([]deviceInfo, 0, len(entries))
	for _, e := range entries {
		snap := e.Device.CurrentSnapshot()
		out = append(out, deviceInfo{
			Name:    e.Name,
			Session: e.ID.String(),
			Model:   string(snap.Model),
			State:   e.Device.State().String(),
			Health:  status.HealthName(status.Health(snap)),
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, e.Device.CurrentSnapshot())
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}

	var req struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.respondError(w, http.StatusBadRequest, "body must be {\"on\": true|false}")
		return
	}

	ack, err := e.Device.PowerSet(r.Context(), *req.On)
	s.respondAck(w, e, ack, err)
}

func (s *Server) handleFanSpeed(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}

	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == "" {
		s.respondError(w, http.StatusBadRequest, "body must be {\"level\": \"low|medium|high\"}")
		return
	}

	ack, err := e.Device.FanSpeedSet(r.Context(), req.Level)
	s.respondAck(w, e, ack, err)
}

type percentResponse struct {
	Percent int `json:"percent"`
}

func (s *Server) handleGetFanPercent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}
	pct, known := e.Device.FanPercent()
	if !known {
		s.respondError(w, http.StatusServiceUnavailable, "fan percent not read yet")
		return
	}
	s.respondJSON(w, http.StatusOK, percentResponse{Percent: pct})
}

func (s *Server) handleFanPercent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}

	var req struct {
		Percent *int `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		s.respondError(w, http.StatusBadRequest, "body must be {\"percent\": 0..100}")
		return
	}

	if err := e.Device.FanPercentSet(r.Context(), *req.Percent); err != nil {
		s.respondFailure(w, e, err)
		return
	}
	s.respondJSON(w, http.StatusOK, percentResponse{Percent: *req.Percent})
}

func (s *Server) handleAttribute(w http.ResponseWriter, r *http.Request) {
	e, ok := s.device(w, r)
	if !ok {
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		s.respondError(w, http.StatusBadRequest, "body must be {\"value\": \"<symbol>\"}")
		return
	}

	ack, err := e.Device.SetAttribute(r.Context(), chi.URLParam(r, "attr"), req.Value)
	s.respondAck(w, e, ack, err)
}

// ---- helpers ----

func (s *Server) device(w http.ResponseWriter, r *http.Request) (Entry, bool) {
	name := chi.URLParam(r, "name")
	e, ok := s.lookup(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown device "+name)
	}
	return e, ok
}

func (s *Server) respondAck(w http.ResponseWriter, e Entry, ack session.Ack, err error) {
	if err != nil {
		s.respondFailure(w, e, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ackResponse{Address: ack.Address, Value: ack.Value})
}

func (s *Server) respondFailure(w http.ResponseWriter, e Entry, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Str("device", e.Name).Msg("write failed")
	}
	s.respondJSON(w, code, map[string]interface{}{
		"error": err.Error(),
		"code":  erv.ErrorCode(err),
	})
}

// httpStatus maps the error taxonomy onto response codes.
func httpStatus(err error) int {
	var exc *codec.DeviceException

	switch {
	case errors.Is(err, register.ErrUnknownRegister):
		return http.StatusNotFound
	case errors.Is(err, register.ErrInvalidValue),
		errors.Is(err, register.ErrNotWritable),
		errors.Is(err, register.ErrUnsupportedRegister):
		return http.StatusBadRequest
	case errors.Is(err, poller.ErrRequiresPowerOn):
		return http.StatusConflict
	case errors.Is(err, session.ErrDeviceUnreachable), errors.As(err, &exc):
		return http.StatusBadGateway
	case errors.Is(err, transport.ErrConnection),
		errors.Is(err, transport.ErrConnectionRefused),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, poller.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
