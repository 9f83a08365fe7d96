// Package api: metrics.go implements a lightweight Prometheus-compatible /metrics
// endpoint that exposes instance-level counters and gauges without requiring an
// external dependency on the Prometheus Go client library.
package api

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics tracks lightweight counters for the /metrics endpoint.
type Metrics struct {
	HTTPRequestsTotal   atomic.Int64
	HTTPRequestDuration atomic.Int64 // total microseconds
	TezShared           atomic.Int64
	TezReceived         atomic.Int64
	StartTime           time.Time
}

// GlobalMetrics is the singleton instance.
var GlobalMetrics = &Metrics{
	StartTime: time.Now(),
}

// handleMetrics exposes Prometheus-compatible metrics in text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := GlobalMetrics
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var teamCount, contactCount, conversationCount, tezCount, peerCount, queuedCount int64
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM teams`).Scan(&teamCount)
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM contacts`).Scan(&contactCount)
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM conversations`).Scan(&conversationCount)
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM tez`).Scan(&tezCount)
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM peers`).Scan(&peerCount)
	s.DB.Pool.QueryRow(r.Context(), `SELECT COUNT(*) FROM outbound_deliveries WHERE status = 'queued'`).Scan(&queuedCount)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP tezrelay_http_requests_total Total HTTP requests served.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_http_requests_total counter\n")
	fmt.Fprintf(w, "tezrelay_http_requests_total %d\n\n", m.HTTPRequestsTotal.Load())

	fmt.Fprintf(w, "# HELP tezrelay_http_request_duration_seconds Total time spent processing HTTP requests.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_http_request_duration_seconds counter\n")
	fmt.Fprintf(w, "tezrelay_http_request_duration_seconds %f\n\n", float64(m.HTTPRequestDuration.Load())/1e6)

	fmt.Fprintf(w, "# HELP tezrelay_tez_shared_total Total Tez shared locally.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_tez_shared_total counter\n")
	fmt.Fprintf(w, "tezrelay_tez_shared_total %d\n\n", m.TezShared.Load())

	fmt.Fprintf(w, "# HELP tezrelay_tez_received_total Total Tez admitted from federation.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_tez_received_total counter\n")
	fmt.Fprintf(w, "tezrelay_tez_received_total %d\n\n", m.TezReceived.Load())

	fmt.Fprintf(w, "# HELP tezrelay_teams_total Total teams.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_teams_total gauge\n")
	fmt.Fprintf(w, "tezrelay_teams_total %d\n\n", teamCount)

	fmt.Fprintf(w, "# HELP tezrelay_contacts_total Total registered contacts.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_contacts_total gauge\n")
	fmt.Fprintf(w, "tezrelay_contacts_total %d\n\n", contactCount)

	fmt.Fprintf(w, "# HELP tezrelay_conversations_total Total conversations.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_conversations_total gauge\n")
	fmt.Fprintf(w, "tezrelay_conversations_total %d\n\n", conversationCount)

	fmt.Fprintf(w, "# HELP tezrelay_tez_total Total Tez stored.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_tez_total gauge\n")
	fmt.Fprintf(w, "tezrelay_tez_total %d\n\n", tezCount)

	fmt.Fprintf(w, "# HELP tezrelay_peers_total Total known federation peers.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_peers_total gauge\n")
	fmt.Fprintf(w, "tezrelay_peers_total %d\n\n", peerCount)

	fmt.Fprintf(w, "# HELP tezrelay_outbox_queued Deliveries currently queued for outbound federation.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_outbox_queued gauge\n")
	fmt.Fprintf(w, "tezrelay_outbox_queued %d\n\n", queuedCount)

	fmt.Fprintf(w, "# HELP tezrelay_goroutines Current number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_goroutines gauge\n")
	fmt.Fprintf(w, "tezrelay_goroutines %d\n\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP tezrelay_memory_alloc_bytes Current memory allocation in bytes.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_memory_alloc_bytes gauge\n")
	fmt.Fprintf(w, "tezrelay_memory_alloc_bytes %d\n\n", mem.Alloc)

	fmt.Fprintf(w, "# HELP tezrelay_memory_sys_bytes Total memory obtained from the OS.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_memory_sys_bytes gauge\n")
	fmt.Fprintf(w, "tezrelay_memory_sys_bytes %d\n\n", mem.Sys)

	uptime := time.Since(m.StartTime).Seconds()
	fmt.Fprintf(w, "# HELP tezrelay_uptime_seconds Time since server start.\n")
	fmt.Fprintf(w, "# TYPE tezrelay_uptime_seconds gauge\n")
	fmt.Fprintf(w, "tezrelay_uptime_seconds %f\n", uptime)
}
