// Package bus mirrors room lifecycle and game-result events to Redis pub/sub
// channels so external consumers (lobby dashboards, audit tooling) can watch
// server activity. The in-memory hub remains the single source of truth:
// nothing is ever read back from Redis, and the server runs identically in
// single-instance mode with a nil *Service.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
)

// publishQueueSize bounds the backlog of events awaiting mirroring. The mirror
// is best-effort: when the queue is full the event is dropped, never the
// caller blocked.
const publishQueueSize = 256

// publishTimeout bounds one Redis round-trip performed by the worker.
const publishTimeout = 2 * time.Second

type publishJob struct {
	roomID  string
	event   string
	payload any
}

// EventPayload is the standardized envelope published to Redis channels.
type EventPayload struct {
	RoomID  string          `json:"roomId"`
	Event   string          `json:"event"`   // The event type (e.g., "room_created", "game_finished")
	Payload json.RawMessage `json:"payload"` // The event-specific data
}

// Service handles all interaction with the Redis server.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker

	queueMu     sync.RWMutex
	queueClosed bool
	queue       chan publishJob
	workerDone  sync.WaitGroup
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis connection and verifies connectivity.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis", "addr", addr)
	s := &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		queue:  make(chan publishJob, publishQueueSize),
	}
	s.workerDone.Add(1)
	go s.publishWorker()
	return s, nil
}

// PublishAsync hands an event to the mirror worker and returns immediately.
// Callers holding locks use this instead of Publish so a slow Redis
// round-trip never stalls them; a full queue drops the event.
func (s *Service) PublishAsync(roomID string, event string, payload any) {
	if s == nil || s.client == nil {
		return
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.queueClosed {
		return
	}

	select {
	case s.queue <- publishJob{roomID: roomID, event: event, payload: payload}:
	default:
		slog.Warn("Event mirror queue full, dropping event", "roomID", roomID, "event", event)
	}
}

func (s *Service) publishWorker() {
	defer s.workerDone.Done()
	for job := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		_ = s.Publish(ctx, job.roomID, job.event, job.payload)
		cancel()
	}
}

// Publish mirrors an event to the room's channel and the server-wide feed.
func (s *Service) Publish(ctx context.Context, roomID string, event string, payload any) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := EventPayload{
			RoomID:  roomID,
			Event:   event,
			Payload: innerBytes,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		// Channel schema: "xiangqi:room:{id}" plus a server-wide feed
		channel := fmt.Sprintf("xiangqi:room:%s", roomID)
		if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
			return nil, err
		}
		return nil, s.client.Publish(ctx, "xiangqi:events", data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis Circuit Breaker Open: dropping publish", "roomID", roomID)
			return nil // Graceful degradation: drop message, don't crash caller
		}
		slog.Error("Redis Publish Failed", "roomID", roomID, "error", err)
		return err
	}

	return nil
}

// Ping checks Redis connectivity using the PING command.
// Used by health checks to verify Redis is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close drains the mirror worker and shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	s.queueMu.Lock()
	if !s.queueClosed {
		s.queueClosed = true
		close(s.queue)
	}
	s.queueMu.Unlock()
	s.workerDone.Wait()

	return s.client.Close()
}
