package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/star/corridor/internal/clock"
	"github.com/star/corridor/internal/collision"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/forecast"
	"github.com/star/corridor/internal/route"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type airplaneRequest struct {
	DesiredDeparture time.Time `json:"desired_departure"`
	Slope            *float64  `json:"slope"`
	Intercept        *float64  `json:"intercept"`
}

func (req airplaneRequest) route() (route.Equation, error) {
	if req.DesiredDeparture.IsZero() {
		return route.Equation{}, errors.New("desired_departure is required")
	}
	if req.Slope == nil || req.Intercept == nil {
		return route.Equation{}, errors.New("slope and intercept are required")
	}
	return route.New(*req.Slope, *req.Intercept), nil
}

type admissionResponse struct {
	ID               int       `json:"id"`
	DesiredDeparture time.Time `json:"desired_departure"`
	DepartureTime    time.Time `json:"departure_time"`
	ShiftedBySeconds float64   `json:"shifted_by_seconds"`
	Shifts           int       `json:"shifts"`
}

func newAdmissionResponse(adm control.Admission) admissionResponse {
	return admissionResponse{
		ID:               adm.ID,
		DesiredDeparture: adm.Desired,
		DepartureTime:    adm.Departure,
		ShiftedBySeconds: adm.Departure.Sub(adm.Desired).Seconds(),
		Shifts:           adm.Shifts,
	}
}

type conflictPayload struct {
	ID    int        `json:"id"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
	Open  bool       `json:"open"`
}

func conflictPayloads(conflicts []control.Conflict) []conflictPayload {
	out := make([]conflictPayload, len(conflicts))
	for i, c := range conflicts {
		out[i] = conflictPayload{ID: c.ID, Start: c.Window.Start, Open: c.Window.Open}
		if !c.Window.Open {
			end := c.Window.End
			out[i].End = &end
		}
	}
	return out
}

// admissionStatus maps scheduling errors onto HTTP statuses.
func admissionStatus(err error) (int, map[string]any) {
	body := map[string]any{"error": err.Error()}

	var ce *control.ConfigurationError
	if errors.As(err, &ce) {
		body["field"] = ce.Field
		return http.StatusBadRequest, body
	}

	var te *control.SchedulingTimeoutError
	if errors.As(err, &te) {
		body["shifts"] = te.Shifts
		body["last_candidate"] = te.LastCandidate
		var de *collision.DegenerateRouteError
		if errors.As(err, &de) {
			return http.StatusUnprocessableEntity, body
		}
		return http.StatusConflict, body
	}

	return http.StatusInternalServerError, body
}

// handleAddAirplane schedules and registers an airplane.
// POST /api/v1/airplanes {"desired_departure": "...", "slope": 1, "intercept": 0}
func (s *Server) handleAddAirplane(w http.ResponseWriter, r *http.Request) {
	var req airplaneRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, err := req.route()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	adm, err := s.deps.Center.Admit(req.DesiredDeparture, rt)
	if err != nil {
		status, body := admissionStatus(err)
		writeJSON(w, status, body)
		return
	}

	w.Header().Set("Location", "/api/v1/airplanes/"+strconv.Itoa(adm.ID))
	writeJSON(w, http.StatusCreated, newAdmissionResponse(adm))
}

// handleCheckAirplane runs the scheduler without registering anything.
// POST /api/v1/airplanes/check
func (s *Server) handleCheckAirplane(w http.ResponseWriter, r *http.Request) {
	var req airplaneRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, err := req.route()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	adm, conflicts, err := s.deps.Center.Check(req.DesiredDeparture, rt)
	if err != nil {
		status, body := admissionStatus(err)
		body["conflicts"] = conflictPayloads(conflicts)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		admissionResponse
		Conflicts []conflictPayload `json:"conflicts"`
	}{newAdmissionResponse(adm), conflictPayloads(conflicts)})
}

// handleGetAirplane returns one airplane's plan and current position.
// GET /api/v1/airplanes/{id}
func (s *Server) handleGetAirplane(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid airplane id")
		return
	}

	// The registry only grows, so positions read after plans cover every plan.
	plans := s.deps.Center.Plans()
	if id > len(plans) {
		writeError(w, http.StatusNotFound, "airplane not found")
		return
	}
	plan := plans[id-1]
	pos := s.deps.Center.ListPositions()[id-1]

	body := map[string]any{
		"id":             plan.ID,
		"departure_time": plan.Departure,
		"slope":          plan.Route.Slope(),
		"intercept":      plan.Route.Intercept(),
		"position":       pos.Position,
		"airborne":       pos.Airborne,
	}
	if !plan.Landing.IsZero() {
		body["landing_time"] = plan.Landing
	}
	writeJSON(w, http.StatusOK, body)
}

// handlePositions returns the position snapshot as of the last tick, or the recorded
// snapshot for an earlier tick when at is given.
// GET /api/v1/positions?at=2026-03-01T08:00:00Z
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("at")
	if v == "" {
		writeJSON(w, http.StatusOK, s.deps.Center.Snapshot())
		return
	}

	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid at parameter, must be RFC 3339")
		return
	}
	snap, ok := s.deps.History.Get(at)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot recorded at that time")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleAdvance broadcasts an externally supplied time to every airplane. With a
// simulated clock the clock moves too, and moving it backwards is a 409.
// POST /api/v1/advance {"now": "..."}
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Now time.Time `json:"now"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Now.IsZero() {
		writeError(w, http.StatusBadRequest, "now is required")
		return
	}

	failures := []string{}
	if err := s.deps.Driver.AdvanceTo(r.Context(), req.Now); err != nil {
		if errors.Is(err, clock.ErrBackwards) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		for _, e := range unjoin(err) {
			failures = append(failures, e.Error())
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": req.Now,
		"airplanes": s.deps.Center.Len(),
		"failures":  failures,
	})
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// handleGrid bins airborne airplanes onto the sampling grid.
// GET /api/v1/grid
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	bounds := s.deps.Center.Config().Bounds
	snap := s.deps.Center.Snapshot()
	cells, outside := bounds.Occupancy(snap.Positions)
	if outside == nil {
		outside = []int{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": snap.Timestamp,
		"bounds":    bounds,
		"cells":     cells,
		"outside":   outside,
	})
}

// handleForecast projects every admitted airplane forward.
// GET /api/v1/forecast?horizon=600&step=5&start=2026-03-01T08:00:00Z
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	horizon := 600
	if v := q.Get("horizon"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 86400 {
			writeError(w, http.StatusBadRequest, "invalid horizon parameter, must be 0-86400")
			return
		}
		horizon = n
	}

	step := 5
	if v := q.Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 3600 {
			writeError(w, http.StatusBadRequest, "invalid step parameter, must be 1-3600")
			return
		}
		step = n
	}

	start := s.deps.Center.Snapshot().Timestamp
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start parameter, must be RFC 3339")
			return
		}
		start = t
	}
	if start.IsZero() {
		start = time.Now().UTC().Truncate(time.Second)
	}

	plans := s.deps.Center.Plans()
	frames, err := s.deps.Forecaster.Generate(r.Context(), plans, start,
		time.Duration(step)*time.Second, time.Duration(horizon)*time.Second)
	if err != nil {
		var be *forecast.BudgetError
		if errors.As(err, &be) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         err.Error(),
				"max_positions": be.Max,
				"frames":        be.Frames,
				"airplanes":     be.Airplanes,
			})
			return
		}
		s.logger.Warn("forecast failed", "component", "api", "error", err)
		writeError(w, http.StatusServiceUnavailable, "forecast failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start":           start,
		"step_seconds":    step,
		"horizon_seconds": horizon,
		"keyframes":       frames,
	})
}

// handleHistoryStats reports snapshot history statistics.
// GET /api/v1/history/stats
func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.History.Stats())
}
