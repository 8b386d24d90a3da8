package health

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness flips to ready once the first tick has been broadcast, so that
// position reads never serve an empty pre-tick registry to a load balancer probe.
// It satisfies clock.Observer.
type Readiness struct {
	firstTick atomic.Int64
}

// Observe records a delivered tick.
func (rd *Readiness) Observe(now time.Time) {
	rd.firstTick.CompareAndSwap(0, now.UnixNano())
}

// Ready reports whether a tick has been observed.
func (rd *Readiness) Ready() bool {
	return rd.firstTick.Load() != 0
}

// Readyz returns 200 "ready\n" after the first tick and 503 before it.
func (rd *Readiness) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !rd.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("waiting for first tick\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
