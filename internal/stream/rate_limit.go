package stream

import (
	"sync"
)

// streamLimiter tracks concurrent stream connections per IP and globally. SSE and
// websocket connections share one budget.
type streamLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
	maxTotal    int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	return &streamLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

// acquire attempts to register a new connection for the given IP.
// Returns false if the IP or global limit has been reached.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	l.total++
	return true
}

// release decrements the connection count for the given IP.
func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connections[ip] == 0 {
		return
	}
	l.connections[ip]--
	l.total--
	if l.connections[ip] == 0 {
		delete(l.connections, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}

func (l *streamLimiter) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
