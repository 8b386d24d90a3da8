package stream

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/corridor/internal/metrics"
)

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?step=1&trail=10
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "sse")
	if !ok {
		return
	}

	metrics.IncStreamConnections("sse", "connect")
	metrics.IncStreamsActive("sse")

	startTime := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"transport", "sse",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", p.step,
		"trail", p.trail,
	)

	defer func() {
		release()
		metrics.IncStreamConnections("sse", "disconnect")
		metrics.DecStreamsActive("sse")
		h.logger.Info("stream disconnected",
			"component", "stream",
			"transport", "sse",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &sseClient{
		w:            w,
		flusher:      flusher,
		rc:           rc,
		writeTimeout: h.config.WriteTimeout,
		logger:       h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	if err := c.sendJSON(h.metadata(p.step)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(p.step) * h.unit)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			batch, ts, ok := h.next(last, p.trail)
			if !ok {
				continue
			}
			last = ts

			if err := c.sendJSON(batch); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
