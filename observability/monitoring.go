// Package observability aggregates delivery telemetry for the diagnostic
// surface. Counters are atomic; readers get point-in-time copies.
package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats aggregates every metric exposed by the debug endpoint.
type MonitoringStats struct {
	MessagesRouted     uint64  `json:"messages_routed"`
	EventsDelivered    uint64  `json:"events_delivered"`
	DeliveryFailures   uint64  `json:"delivery_failures"`
	NotificationsSent  uint64  `json:"notifications_sent"`
	RateLimitRejects   uint64  `json:"rate_limit_rejects"`
	ConnectionsReaped  uint64  `json:"connections_reaped"`
	AllocMemMb         uint64  `json:"alloc_mem_mb"`
	NumGC              uint32  `json:"num_gc"`
	ReaperRSSBytes     uint64  `json:"reaper_rss_bytes"`
	ReaperCPUPercent   float64 `json:"reaper_cpu_percent"`
	CollectedAt        string  `json:"collected_at"`
}

type MonitoringManager struct {
	log *slog.Logger
	mu  sync.RWMutex

	messagesRouted    uint64
	eventsDelivered   uint64
	deliveryFailures  uint64
	notificationsSent uint64
	rateLimitRejects  uint64
	connectionsReaped uint64

	selfRSS uint64
	selfCPU float64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrMessagesRouted() {
	atomic.AddUint64(&mm.messagesRouted, 1)
}

func (mm *MonitoringManager) IncrEventsDelivered() {
	atomic.AddUint64(&mm.eventsDelivered, 1)
}

func (mm *MonitoringManager) IncrDeliveryFailures() {
	atomic.AddUint64(&mm.deliveryFailures, 1)
}

func (mm *MonitoringManager) IncrNotificationsSent() {
	atomic.AddUint64(&mm.notificationsSent, 1)
}

func (mm *MonitoringManager) IncrRateLimitRejects() {
	atomic.AddUint64(&mm.rateLimitRejects, 1)
}

func (mm *MonitoringManager) AddConnectionsReaped(n uint64) {
	atomic.AddUint64(&mm.connectionsReaped, n)
}

// SetSelfStats records the reaper's process-level stats (RSS, CPU).
func (mm *MonitoringManager) SetSelfStats(rss uint64, cpu float64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.selfRSS = rss
	mm.selfCPU = cpu
}

// GetLatest assembles a point-in-time copy of every counter plus Go
// runtime memory stats. Read-only by construction.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	mm.mu.RLock()
	rss, cpu := mm.selfRSS, mm.selfCPU
	mm.mu.RUnlock()

	return MonitoringStats{
		MessagesRouted:    atomic.LoadUint64(&mm.messagesRouted),
		EventsDelivered:   atomic.LoadUint64(&mm.eventsDelivered),
		DeliveryFailures:  atomic.LoadUint64(&mm.deliveryFailures),
		NotificationsSent: atomic.LoadUint64(&mm.notificationsSent),
		RateLimitRejects:  atomic.LoadUint64(&mm.rateLimitRejects),
		ConnectionsReaped: atomic.LoadUint64(&mm.connectionsReaped),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
		ReaperRSSBytes:    rss,
		ReaperCPUPercent:  cpu,
		CollectedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

// AsMap flattens the stats for templated diagnostic pages.
func (s MonitoringStats) AsMap() map[string]any {
	return map[string]any{
		"messages_routed":    s.MessagesRouted,
		"events_delivered":   s.EventsDelivered,
		"delivery_failures":  s.DeliveryFailures,
		"notifications_sent": s.NotificationsSent,
		"rate_limit_rejects": s.RateLimitRejects,
		"connections_reaped": s.ConnectionsReaped,
		"alloc_mem_mb":       s.AllocMemMb,
		"num_gc":             s.NumGC,
		"collected_at":       s.CollectedAt,
	}
}
