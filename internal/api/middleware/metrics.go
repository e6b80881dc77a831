package middleware

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds the request counters reported by /metrics.
type Metrics struct {
	Requests     atomic.Int64
	ClientErrors atomic.Int64
	ServerErrors atomic.Int64
	InFlight     atomic.Int64
	// TotalNanos accumulates request latency.
	TotalNanos atomic.Int64
}

// Snapshot returns the counters as a JSON-friendly map.
func (m *Metrics) Snapshot() map[string]any {
	requests := m.Requests.Load()
	var avgMS float64
	if requests > 0 {
		avgMS = float64(m.TotalNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return map[string]any{
		"request_count":      requests,
		"client_error_count": m.ClientErrors.Load(),
		"server_error_count": m.ServerErrors.Load(),
		"error_count":        m.ClientErrors.Load() + m.ServerErrors.Load(),
		"in_flight":          m.InFlight.Load(),
		"avg_latency_ms":     avgMS,
	}
}

// Middleware counts requests, errors and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Requests.Add(1)
		m.InFlight.Add(1)
		defer m.InFlight.Add(-1)
		start := time.Now()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		m.TotalNanos.Add(int64(time.Since(start)))
		switch {
		case rw.statusCode >= 500:
			m.ServerErrors.Add(1)
		case rw.statusCode >= 400:
			m.ClientErrors.Add(1)
		}
	})
}
