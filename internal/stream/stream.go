// Package stream pushes airplane position batches to visualizers, either as
// Server-Sent Events on GET /api/v1/stream/positions or over a websocket on
// GET /api/v1/ws/positions.
//
// SSE message format:
//
//	data: {"type":"position_batch","t":"2026-03-01T08:00:05Z","airplanes":[{"id":1,"p":5000,"airborne":true}]}\n\n
//
// First message is always metadata describing the coordinate space:
//
//	data: {"type":"metadata","bounds":{"start":0,"stop":100000,"samples":101},"grid":[...],"airplanes":2}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Websocket clients receive the same payloads, as text frames for JSON or binary
// frames for msgpack.
package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/httputil"
	"github.com/star/corridor/internal/metrics"
)

// Source supplies recorded snapshots. history.History satisfies it.
type Source interface {
	Latest() (control.Snapshot, bool)
	Recent(n int) []control.Snapshot
}

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive interval (default: 30s).
	WriteTimeout       time.Duration // Per-message write deadline (default: 10s).
	TrustProxy         bool
}

// Handler serves both stream transports from one Source and one connection limiter.
type Handler struct {
	source  Source
	bounds  control.Bounds
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger

	// unit scales the step query parameter.
	unit time.Duration
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, bounds control.Bounds, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxTotal <= 0 {
		config.MaxTotal = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		source:  source,
		bounds:  bounds,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
		unit:    time.Second,
	}
}

// params are the query parameters shared by both transports.
type params struct {
	step     int
	trail    int
	encoding string
}

func parseParams(r *http.Request, allowEncoding bool) (params, error) {
	p := params{step: 1, trail: 10, encoding: "json"}
	q := r.URL.Query()

	if v := q.Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return p, errors.New("invalid step parameter, must be 1-60")
		}
		p.step = n
	}

	if v := q.Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			return p, errors.New("invalid trail parameter, must be 0-120")
		}
		p.trail = n
	}

	if v := q.Get("encoding"); v != "" {
		if !allowEncoding || (v != "json" && v != "msgpack") {
			return p, errors.New("invalid encoding parameter, must be json or msgpack")
		}
		p.encoding = v
	}
	return p, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// admit applies the concurrency limit. On success the caller must call the
// returned release func.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (string, func(), bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"component", "stream",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return ip, nil, false
	}
	return ip, func() { h.limiter.release(ip) }, true
}

// metadata builds the first message of every connection.
func (h *Handler) metadata(step int) metadataMessage {
	count := 0
	if snap, ok := h.source.Latest(); ok {
		count = len(snap.Positions)
	}
	return metadataMessage{
		Type:        "metadata",
		Bounds:      h.bounds,
		Grid:        h.bounds.Grid(),
		Airplanes:   count,
		StepSeconds: step,
	}
}

// next returns the batch to send if a snapshot newer than last exists.
func (h *Handler) next(last time.Time, trail int) (batchMessage, time.Time, bool) {
	snap, ok := h.source.Latest()
	if !ok || !snap.Timestamp.After(last) {
		return batchMessage{}, last, false
	}

	var history []control.Snapshot
	if trail > 0 {
		history = h.source.Recent(trail + 1)
	}
	return buildBatchMessage(snap, history), snap.Timestamp, true
}

// buildBatchMessage formats a snapshot into the batch payload. Snapshots in trail
// taken before snap contribute past positions (oldest first) for airborne airplanes.
func buildBatchMessage(snap control.Snapshot, trail []control.Snapshot) batchMessage {
	var trailIndex map[int][]float64
	for _, past := range trail {
		if !past.Timestamp.Before(snap.Timestamp) {
			continue
		}
		if trailIndex == nil {
			trailIndex = make(map[int][]float64, len(snap.Positions))
		}
		for _, p := range past.Positions {
			if p.Airborne {
				trailIndex[p.ID] = append(trailIndex[p.ID], p.Position)
			}
		}
	}

	planes := make([]airplanePayload, len(snap.Positions))
	for i, p := range snap.Positions {
		planes[i] = airplanePayload{
			ID:       p.ID,
			P:        p.Position,
			Airborne: p.Airborne,
		}
		if tr, ok := trailIndex[p.ID]; ok {
			planes[i].Tr = tr
		}
	}
	return batchMessage{
		Type:      "position_batch",
		T:         snap.Timestamp.UTC().Format(time.RFC3339Nano),
		Airplanes: planes,
	}
}

// Message payload types. Field tags serve both JSON and msgpack.

type metadataMessage struct {
	Type        string         `json:"type"`
	Bounds      control.Bounds `json:"bounds"`
	Grid        []float64      `json:"grid"`
	Airplanes   int            `json:"airplanes"`
	StepSeconds int            `json:"step_seconds"`
}

type batchMessage struct {
	Type      string            `json:"type"`
	T         string            `json:"t"`
	Airplanes []airplanePayload `json:"airplanes"`
}

type airplanePayload struct {
	ID       int       `json:"id"`
	P        float64   `json:"p"`
	Airborne bool      `json:"airborne"`
	Tr       []float64 `json:"tr,omitempty"`
}
