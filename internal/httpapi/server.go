// Package httpapi serves the device state and accepts commands over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/session"
)

const commandTimeout = time.Minute

// Server routes requests to one api.Client.
type Server struct {
	client *api.Client
	log    logrus.FieldLogger
	router *httprouter.Router

	// cmdMu keeps logical operations from overlapping.
	cmdMu *sync.Mutex
}

// New builds the router for client. Commands hold lock while they run; a
// nil lock gives the server its own.
func New(client *api.Client, lock *sync.Mutex, log logrus.FieldLogger) *Server {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	s := &Server{
		client: client,
		log:    log.WithField("component", "http"),
		router: httprouter.New(),
		cmdMu:  lock,
	}

	s.router.GET("/state", s.state)
	s.router.POST("/refresh", s.command(func(ctx context.Context, _ httprouter.Params) error {
		return s.client.Refresh(ctx)
	}))
	s.router.POST("/power/:state", s.command(func(ctx context.Context, ps httprouter.Params) error {
		on, err := parseOnOff(ps.ByName("state"))
		if err != nil {
			return err
		}
		return s.client.SetPower(ctx, on)
	}))
	s.router.POST("/speed/:level", s.command(func(ctx context.Context, ps httprouter.Params) error {
		level, err := parseInt(ps.ByName("level"))
		if err != nil {
			return err
		}
		return s.client.SetSpeed(ctx, level)
	}))
	s.router.POST("/brightness/:level", s.command(func(ctx context.Context, ps httprouter.Params) error {
		level, err := parseInt(ps.ByName("level"))
		if err != nil {
			return err
		}
		return s.client.SetBrightness(ctx, level)
	}))
	s.router.POST("/direction/:direction", s.command(func(ctx context.Context, ps httprouter.Params) error {
		d, err := api.ParseDirection(ps.ByName("direction"))
		if err != nil {
			return err
		}
		return s.client.SetDirection(ctx, d)
	}))
	s.router.POST("/preset/:mode", s.command(func(ctx context.Context, ps httprouter.Params) error {
		return s.client.SetPresetMode(ctx, ps.ByName("mode"))
	}))
	s.router.POST("/switch/:name/:state", s.command(s.setSwitch))

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type stateResponse struct {
	Available   bool             `json:"available"`
	Connection  string           `json:"connection"`
	RSSI        *int16           `json:"rssi,omitempty"`
	Known       bool             `json:"known"`
	Optimistic  bool             `json:"optimistic"`
	Speed       int              `json:"speed"`
	Percentage  int              `json:"percentage"`
	Preset      string           `json:"preset"`
	Direction   string           `json:"direction,omitempty"`
	Status      *protocol.Status `json:"status,omitempty"`
	Version     uint64           `json:"version"`
	LastUpdated *time.Time       `json:"last_updated,omitempty"`
}

func (s *Server) response() stateResponse {
	snap := s.client.Snapshot()
	v := s.client.View()
	sess := s.client.Session()

	resp := stateResponse{
		Available:  snap.Fresh,
		Connection: sess.State().String(),
		Known:      v.Known,
		Optimistic: v.Optimistic,
		Speed:      v.Speed,
		Percentage: api.SpeedToPct(v.Speed),
		Preset:     api.PresetManual,
		Version:    snap.Version,
	}
	if rssi, ok := sess.RSSI(); ok {
		resp.RSSI = &rssi
	}
	if v.Known {
		status := v.Status
		resp.Status = &status
		resp.Direction = string(api.DirectionOf(v.Status, v.Speed))
		if v.Status.AutoMode {
			resp.Preset = api.PresetAuto
		}
	}
	if !snap.LastUpdated.IsZero() {
		t := snap.LastUpdated
		resp.LastUpdated = &t
	}
	return resp
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.response())
}

// command adapts a client operation into a handler that answers with the
// resulting state.
func (s *Server) command(fn func(context.Context, httprouter.Params) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.cmdMu.Lock()
		defer s.cmdMu.Unlock()

		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		log := s.log.WithField("path", r.URL.Path)
		if err := fn(ctx, ps); err != nil {
			code := statusCode(err)
			log.WithError(err).WithField("status", code).Warn("Command failed")
			s.writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		log.Debug("Command done")
		s.writeJSON(w, http.StatusOK, s.response())
	}
}

func (s *Server) setSwitch(ctx context.Context, ps httprouter.Params) error {
	on, err := parseOnOff(ps.ByName("state"))
	if err != nil {
		return err
	}
	switch ps.ByName("name") {
	case "heating":
		return s.client.SetHeating(ctx, on)
	case "winter":
		return s.client.SetWinterMode(ctx, on)
	case "auto":
		return s.client.SetAutoMode(ctx, on)
	case "night":
		return s.client.SetNightMode(ctx, on)
	case "flow-lock":
		return s.client.SetFlowsLocked(ctx, on)
	}
	return errUnknownSwitch
}

var errUnknownSwitch = errors.New("unknown switch")

func statusCode(err error) int {
	switch {
	case errors.Is(err, api.ErrValueRange):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownSwitch):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, api.ErrNoReply):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", api.ErrValueRange, s)
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", api.ErrValueRange, s)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Writing response failed")
	}
}
