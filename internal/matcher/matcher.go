// Package matcher binds the oldest waiting customer to an available
// agent and fans the assignment out to both parties.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/agents"
	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/media"
	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/notify"
	"warm-transfer-service/internal/observability/metrics"
	"warm-transfer-service/internal/queue"
)

// Notifier is the slice of the fan-out hub the matcher needs.
type Notifier interface {
	SendTo(kind notify.TargetKind, id string, message any)
}

// AssignmentNotice is the payload delivered to both parties on a match.
type AssignmentNotice struct {
	Event    string `json:"event"`
	Room     string `json:"room"`
	Token    string `json:"token,omitempty"`
	Agent    string `json:"agent"`
	Customer string `json:"customer"`
	Category string `json:"category"`
}

// Matcher runs the assignment algorithm. The scan-and-assign sequence
// holds mu so the same agent can never be bound twice; credential
// issuance and fan-out happen after the lock is released so a slow
// media platform never stalls other matches.
type Matcher struct {
	mu        sync.Mutex
	queue     *queue.Store
	registry  *agents.Registry
	platform  media.Platform
	notifier  Notifier
	publisher *events.Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// New creates a matcher over the given stores and collaborators.
func New(q *queue.Store, r *agents.Registry, p media.Platform, n Notifier, pub *events.Publisher, logger zerolog.Logger) *Matcher {
	return &Matcher{
		queue:     q,
		registry:  r,
		platform:  p,
		notifier:  n,
		publisher: pub,
		logger:    logger.With().Str("component", "matcher").Logger(),
		metrics:   metrics.DefaultMetrics,
	}
}

// TryMatch attempts one assignment. With a non-empty agentID it targets
// that agent; otherwise it scans for any available agent. A nil result
// means no match was possible, which is a normal outcome.
func (m *Matcher) TryMatch(agentID string) *models.Assignment {
	m.mu.Lock()

	if agentID == "" {
		var ok bool
		if agentID, ok = m.registry.FirstAvailable(); !ok {
			m.mu.Unlock()
			return nil
		}
	} else if m.registry.Get(agentID).Status != models.AgentAvailable {
		m.mu.Unlock()
		return nil
	}

	entry, ok := m.queue.PopFront()
	if !ok {
		m.mu.Unlock()
		return nil
	}

	if !m.registry.Assign(agentID, entry.Identity) {
		// The agent changed status between the scan and the assign.
		m.queue.Requeue(entry)
		m.mu.Unlock()
		return nil
	}

	// The pair is bound; everything past this point is fan-out and may
	// block on external services without holding up other matches.
	m.mu.Unlock()

	room := roomName(entry.Identity)
	m.metrics.QueueDepth.Set(float64(m.queue.Len()))
	assignment := &models.Assignment{
		Customer: entry.Identity,
		Agent:    agentID,
		Category: entry.Category,
		Room:     room,
	}

	ctx := context.Background()

	agentToken, err := m.platform.IssueCredential(ctx, room, "agent_"+agentID, media.ParticipantPermissions)
	if err != nil {
		m.logger.Error().Err(err).Str("agent", agentID).Msg("Failed to issue agent credential")
	}
	customerToken, err := m.platform.IssueCredential(ctx, room, entry.Identity, media.ParticipantPermissions)
	if err != nil {
		m.logger.Error().Err(err).Str("customer", entry.Identity).Msg("Failed to issue customer credential")
	}
	assignment.AgentToken = agentToken
	assignment.CustomerToken = customerToken

	m.notifier.SendTo(notify.KindAgent, agentID, AssignmentNotice{
		Event:    "customer_assigned",
		Room:     room,
		Token:    agentToken,
		Agent:    agentID,
		Customer: entry.Identity,
		Category: entry.Category,
	})
	m.notifier.SendTo(notify.KindCustomer, entry.Identity, AssignmentNotice{
		Event:    "agent_assigned",
		Room:     room,
		Token:    customerToken,
		Agent:    agentID,
		Customer: entry.Identity,
		Category: entry.Category,
	})

	if err := m.publisher.PublishAssignment(ctx, room, models.AssignmentEvent{
		EventType: "support.queue.assignment",
		Customer:  entry.Identity,
		Agent:     agentID,
		Category:  entry.Category,
		Room:      room,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish assignment event")
	}

	m.metrics.MatchesTotal.Inc()

	m.logger.Info().
		Str("customer", entry.Identity).
		Str("agent", agentID).
		Str("room", room).
		Msg("Customer assigned to agent")

	return assignment
}

// roomName derives a unique room for a new conversation. The customer
// handle is embedded for log readability.
func roomName(identity string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, identity)
	return fmt.Sprintf("support-%s-%s", sanitized, uuid.NewString()[:8])
}
