package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the Xiangqi game server.
//
// Naming convention: namespace_subsystem_name
// - namespace: xiangqi (application-level grouping)
// - subsystem: websocket, room, game (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, members)
// - Counter: Cumulative events (commands processed, moves rejected)
// - Histogram: Latency distributions (command processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xiangqi",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xiangqi",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks the number of members in each room.
	// Gauge rather than Histogram because we want the current count per room,
	// not a distribution of historical counts.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xiangqi",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of inbound commands processed
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xiangqi",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket commands processed",
	}, []string{"action", "status"})

	// MessageProcessingDuration tracks the time spent processing commands
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xiangqi",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket commands",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"action"})

	// Moves tracks accepted and rejected move attempts
	Moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xiangqi",
		Subsystem: "game",
		Name:      "moves_total",
		Help:      "Total move attempts by validation outcome",
	}, []string{"status"})

	// GamesFinished tracks completed games by winning color
	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xiangqi",
		Subsystem: "game",
		Name:      "games_finished_total",
		Help:      "Total games finished, labeled by winner",
	}, []string{"winner"})

	// RateLimitExceeded tracks rejected requests per endpoint and limit type
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xiangqi",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"endpoint", "limit_type"})

	// CircuitBreakerState tracks the state of circuit breakers (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xiangqi",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerFailures tracks operations dropped by open circuit breakers
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xiangqi",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Total operations dropped while a circuit breaker was open",
	}, []string{"name"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
