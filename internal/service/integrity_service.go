package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hirepath/assess-backend/internal/config"
	"github.com/hirepath/assess-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViolationCounter bumps a session's violation counters and returns the new
// total.
type ViolationCounter interface {
	IncrementViolation(ctx context.Context, id uuid.UUID, vtype model.ViolationType) (int, error)
}

// EventPublisher fans a violation event out to the audit pipeline and the
// live monitor stream. Publishing is best-effort: the synchronous counter on
// the session row is the source of truth for termination decisions.
type EventPublisher interface {
	Publish(ctx context.Context, e model.ViolationEvent)
}

// IntegrityService tallies client-reported proctoring violations. Counters
// are written synchronously so the termination decision sees every prior
// report; the itemized event log and the monitor stream are fed
// asynchronously.
type IntegrityService struct {
	counter   ViolationCounter
	publisher EventPublisher
	threshold int
	clock     Clock
	log       zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(counter ViolationCounter, publisher EventPublisher, threshold int, clock Clock, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		counter:   counter,
		publisher: publisher,
		threshold: threshold,
		clock:     clock,
		log:       log.With().Str("component", "integrity").Logger(),
	}
}

// Record counts one violation against the session and emits the itemized
// event. Returns the updated total.
func (s *IntegrityService) Record(ctx context.Context, sessionID uuid.UUID, vtype model.ViolationType) (int, error) {
	count, err := s.counter.IncrementViolation(ctx, sessionID, vtype)
	if err != nil {
		return 0, err
	}

	s.publisher.Publish(ctx, model.ViolationEvent{
		SessionID:  sessionID,
		Type:       vtype,
		RecordedAt: s.clock(),
	})

	s.log.Info().Str("session_id", sessionID.String()).Str("type", string(vtype)).
		Int("violation_count", count).Msg("Violation recorded")
	return count, nil
}

// ShouldTerminate reports whether the running total has reached the
// configured termination threshold.
func (s *IntegrityService) ShouldTerminate(count int) bool {
	return count >= s.threshold
}

// RedisEventPublisher queues events for the batch persistence worker and
// publishes them on the session's monitor channel for live observers.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb, log: log.With().Str("component", "violation_publisher").Logger()}
}

// Publish enqueues the event and notifies the monitor channel. Failures are
// logged, not returned; the caller already holds the authoritative counter.
func (p *RedisEventPublisher) Publish(ctx context.Context, e model.ViolationEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to encode violation event")
		return
	}

	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		p.log.Error().Err(err).Str("session_id", e.SessionID.String()).
			Msg("Failed to enqueue violation event for persistence")
	}

	channel := config.CacheKey.SessionMonitorChannel(e.SessionID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish violation to monitor stream")
	}
}
