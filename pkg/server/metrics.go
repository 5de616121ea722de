package server

import (
	"sync/atomic"
	"time"

	"github.com/vango-dev/reflex/pkg/middleware"
	"github.com/vango-dev/reflex/pkg/protocol"
)

// ServerMetrics is a snapshot of connection counters.
type ServerMetrics struct {
	// Connections
	ActiveConnections int64
	TotalConnections  int64

	// Messages
	MessagesReceived int64
	MessagesRejected int64

	// Network
	BytesSent     int64
	BytesReceived int64

	// Timestamp
	CollectedAt time.Time
}

// connStats aggregates counters across connections. Each update is also
// reported to the Prometheus collectors of pkg/middleware.
type connStats struct {
	active        atomic.Int64
	total         atomic.Int64
	messages      atomic.Int64
	rejections    atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

func (s *connStats) opened() {
	s.active.Add(1)
	s.total.Add(1)
	middleware.RecordConnectionOpen()
}

func (s *connStats) closed() {
	s.active.Add(-1)
	middleware.RecordConnectionClose()
}

func (s *connStats) received(n int) {
	s.messages.Add(1)
	s.bytesReceived.Add(int64(n))
}

func (s *connStats) sent(n int) {
	s.bytesSent.Add(int64(n))
}

func (s *connStats) rejected(code protocol.ErrorCode) {
	s.rejections.Add(1)
	middleware.RecordRejected(code)
}

// Metrics returns the current connection counters.
func (s *Server) Metrics() *ServerMetrics {
	return &ServerMetrics{
		ActiveConnections: s.stats.active.Load(),
		TotalConnections:  s.stats.total.Load(),
		MessagesReceived:  s.stats.messages.Load(),
		MessagesRejected:  s.stats.rejections.Load(),
		BytesSent:         s.stats.bytesSent.Load(),
		BytesReceived:     s.stats.bytesReceived.Load(),
		CollectedAt:       time.Now(),
	}
}
