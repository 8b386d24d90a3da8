package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/corridor/internal/metrics"
)

// sseClient writes to a single SSE connection.
type sseClient struct {
	w            http.ResponseWriter
	flusher      http.Flusher
	rc           *http.ResponseController
	writeTimeout time.Duration
	logger       *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// extendDeadline pushes the write deadline out before each write so that a
// long-lived stream is not cut off by the server's WriteTimeout.
func (c *sseClient) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
}

// sendJSON marshals v and sends it as "data: {json}\n\n".
func (c *sseClient) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	c.extendDeadline()
	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.AddStreamMessage("sse", n)
	return nil
}

// sendKeepalive sends an SSE comment line.
func (c *sseClient) sendKeepalive() error {
	c.extendDeadline()
	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes("sse", n)
	return nil
}
