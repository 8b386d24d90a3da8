package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/star/corridor/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// encodeFrame renders v for the requested encoding and returns the websocket
// message type to send it as.
func encodeFrame(encoding string, v any) (int, []byte, error) {
	if encoding == "msgpack" {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return 0, nil, fmt.Errorf("msgpack encode: %w", err)
		}
		return websocket.BinaryMessage, buf.Bytes(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return 0, nil, fmt.Errorf("json marshal: %w", err)
	}
	return websocket.TextMessage, data, nil
}

// HandleWebsocket serves the websocket position stream.
// GET /api/v1/ws/positions?step=1&trail=10&encoding=json|msgpack
func (h *Handler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "ws")
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "component", "stream", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	metrics.IncStreamConnections("ws", "connect")
	metrics.IncStreamsActive("ws")
	startTime := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"transport", "ws",
		"remote_ip", ip,
		"encoding", p.encoding,
		"step", p.step,
		"trail", p.trail,
	)
	defer func() {
		metrics.IncStreamConnections("ws", "disconnect")
		metrics.DecStreamsActive("ws")
		h.logger.Info("stream disconnected",
			"component", "stream",
			"transport", "ws",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Clients only send control frames; the read loop notices when they go away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		mt, data, err := encodeFrame(p.encoding, v)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		if err := conn.WriteMessage(mt, data); err != nil {
			return err
		}
		metrics.AddStreamMessage("ws", len(data))
		return nil
	}

	if err := send(h.metadata(p.step)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(p.step) * h.unit)
	defer ticker.Stop()

	pingTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer pingTicker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case <-ticker.C:
			batch, ts, ok := h.next(last, p.trail)
			if !ok {
				continue
			}
			last = ts
			if err := send(batch); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}

		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream ping error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
