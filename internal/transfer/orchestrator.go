// Package transfer orchestrates warm hand-offs between agents: summary
// generation, room preparation, credential issuance and the optional
// phone leg for the incoming agent.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/directory"
	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/media"
	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/notify"
	"warm-transfer-service/internal/observability/metrics"
	"warm-transfer-service/internal/summary"
	"warm-transfer-service/internal/transcription"
)

var (
	ErrRoomRequired      = errors.New("transfer: room is required")
	ErrFromAgentRequired = errors.New("transfer: originating agent is required")
	ErrNoTargetAgent     = errors.New("transfer: no target agent found")
	ErrUnknownTransfer   = errors.New("transfer: no pending transfer for that agent")
	ErrNotReady          = errors.New("transfer: not ready to join")
)

// RoomStrategy selects where the incoming agent joins.
type RoomStrategy string

const (
	// StrategyReuseRoom keeps the conversation in its original room and
	// only issues a credential for the incoming agent.
	StrategyReuseRoom RoomStrategy = "reuse_room"
	// StrategyNewRoom moves the hand-off into a freshly created room.
	StrategyNewRoom RoomStrategy = "new_room"
)

const externalCallTimeout = 30 * time.Second

// TranscriptSource is the slice of the transcription manager the
// orchestrator reads from.
type TranscriptSource interface {
	Status(key string) (transcription.State, bool)
	Segments(key string) []models.TranscriptSegment
	SummaryText(key string) string
}

// Notifier is the slice of the fan-out hub the orchestrator needs.
type Notifier interface {
	SendTo(kind notify.TargetKind, id string, message any)
}

// Dialer places the optional phone leg. A nil Dialer disables it.
type Dialer interface {
	PlaceCall(ctx context.Context, phone, callbackURL, statusCallbackURL string) (string, error)
}

// Notice is the payload delivered to the target agent as the transfer
// progresses.
type Notice struct {
	Event       string `json:"event"`
	TransferID  string `json:"transferId"`
	Room        string `json:"room"`
	FromAgent   string `json:"fromAgent"`
	Summary     string `json:"summary"`
	ReadyToJoin bool   `json:"readyToJoin"`
}

// Request describes one transfer initiation.
type Request struct {
	Room       string
	FromAgent  string
	Category   string
	Summary    string // caller-supplied; used verbatim when non-empty
	TargetRole string // overrides category-based directory resolution
	CallerID   string // caller email for directory context, optional
	CallerType string // "investor" or "prospect", optional
	Phone      string // dial the incoming agent when non-empty
	Strategy   RoomStrategy
}

// Orchestrator drives warm transfers end to end. Records are keyed by
// the target agent: one pending transfer per incoming agent, last
// writer wins.
type Orchestrator struct {
	mu        sync.Mutex
	records   map[string]*models.TransferRecord
	summaries map[string]string // room -> last generated summary

	platform    media.Platform
	summarizer  summary.Summarizer
	directory   *directory.Directory
	transcripts TranscriptSource
	dialer      Dialer
	notifier    Notifier
	publisher   *events.Publisher
	webhookBase string
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates the orchestrator. dialer may be nil when no telephony
// gateway is configured.
func New(p media.Platform, s summary.Summarizer, d *directory.Directory, ts TranscriptSource, dialer Dialer, n Notifier, pub *events.Publisher, webhookBase string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		records:     make(map[string]*models.TransferRecord),
		summaries:   make(map[string]string),
		platform:    p,
		summarizer:  s,
		directory:   d,
		transcripts: ts,
		dialer:      dialer,
		notifier:    n,
		publisher:   pub,
		webhookBase: webhookBase,
		logger:      logger.With().Str("component", "transfer").Logger(),
		metrics:     metrics.DefaultMetrics,
		now:         time.Now,
	}
}

// Initiate starts a warm transfer out of the given room. Integration
// failures (summarizer, platform, dialer) degrade in place; only input
// and directory resolution problems surface as errors.
func (o *Orchestrator) Initiate(ctx context.Context, req Request) (*models.TransferRecord, error) {
	if req.Room == "" {
		return nil, ErrRoomRequired
	}
	if req.FromAgent == "" {
		return nil, ErrFromAgentRequired
	}

	target, err := o.resolveTarget(req)
	if err != nil {
		return nil, err
	}

	rec := &models.TransferRecord{
		ID:          uuid.NewString(),
		TargetAgent: target.ID,
		Room:        req.Room,
		FromAgent:   req.FromAgent,
		CreatedAt:   o.now(),
		Credentials: make(map[string]string),
		State:       models.TransferRequested,
	}
	o.publishStage(ctx, rec)

	callerCtx := o.lookupCaller(req)
	rec.Summary, rec.Context = o.buildSummary(ctx, req, callerCtx)
	rec.State = models.TransferSummarized
	o.publishStage(ctx, rec)

	rec.Room = o.prepareRoom(ctx, req)
	rec.State = models.TransferRoomReady
	o.publishStage(ctx, rec)

	identity := "agent_" + target.ID
	token, err := o.platform.IssueCredential(ctx, rec.Room, identity, media.ParticipantPermissions)
	if err != nil {
		o.logger.Error().Err(err).Str("agent", target.ID).Msg("Failed to issue transfer credential")
	} else {
		rec.Credentials[identity] = token
	}

	if o.dialer != nil && req.Phone != "" {
		rec.CallSID = o.placeCall(ctx, req.Phone, rec)
	}

	rec.State = models.TransferAwaitingAgent
	o.publishStage(ctx, rec)

	o.store(rec)
	o.rememberSummary(req.Room, rec.Summary)

	o.notifier.SendTo(notify.KindAgent, target.ID, Notice{
		Event:       "transfer_pending",
		TransferID:  rec.ID,
		Room:        rec.Room,
		FromAgent:   rec.FromAgent,
		Summary:     rec.Summary,
		ReadyToJoin: false,
	})

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyReuseRoom
	}
	o.metrics.TransfersInitiated.WithLabelValues(string(strategy)).Inc()

	o.logger.Info().
		Str("transfer", rec.ID).
		Str("from", rec.FromAgent).
		Str("to", rec.TargetAgent).
		Str("room", rec.Room).
		Msg("Warm transfer initiated")

	return o.snapshot(rec), nil
}

// MarkReady flips the pending transfer for targetAgent to joinable.
// The flag only ever moves false to true; repeating the call is a
// no-op.
func (o *Orchestrator) MarkReady(ctx context.Context, targetAgent string) (*models.TransferRecord, error) {
	o.mu.Lock()
	rec, ok := o.records[targetAgent]
	if !ok {
		o.mu.Unlock()
		return nil, ErrUnknownTransfer
	}
	already := rec.ReadyToJoin
	rec.ReadyToJoin = true
	rec.State = models.TransferReadyToJoin
	snap := o.snapshot(rec)
	o.mu.Unlock()

	if !already {
		o.publishStage(ctx, snap)
		o.notifier.SendTo(notify.KindAgent, targetAgent, Notice{
			Event:       "transfer_ready",
			TransferID:  snap.ID,
			Room:        snap.Room,
			FromAgent:   snap.FromAgent,
			Summary:     snap.Summary,
			ReadyToJoin: true,
		})
	}
	return snap, nil
}

// Pending returns the transfer waiting for targetAgent, but only once
// it has been marked ready to join.
func (o *Orchestrator) Pending(targetAgent string) (*models.TransferRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[targetAgent]
	if !ok {
		return nil, ErrUnknownTransfer
	}
	if !rec.ReadyToJoin {
		return nil, ErrNotReady
	}
	return o.snapshot(rec), nil
}

// Complete finishes the hand-off: the originating agent is
// disconnected from the room and the pending record is retired.
func (o *Orchestrator) Complete(ctx context.Context, targetAgent string) (*models.TransferRecord, error) {
	o.mu.Lock()
	rec, ok := o.records[targetAgent]
	if ok {
		delete(o.records, targetAgent)
	}
	o.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTransfer
	}

	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	if err := o.platform.Disconnect(callCtx, rec.Room, "agent_"+rec.FromAgent); err != nil {
		o.logger.Error().Err(err).
			Str("room", rec.Room).
			Str("agent", rec.FromAgent).
			Msg("Failed to disconnect originating agent")
	}

	rec.State = models.TransferCompleted
	o.publishStage(ctx, rec)

	o.logger.Info().
		Str("transfer", rec.ID).
		Str("room", rec.Room).
		Msg("Warm transfer completed")
	return o.snapshot(rec), nil
}

// ReapRoomIfIdle deletes a room when participant inspection shows it
// empty. It reports whether the room was deleted.
func (o *Orchestrator) ReapRoomIfIdle(ctx context.Context, room string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()

	participants, err := o.platform.ListParticipants(callCtx, room)
	if err != nil {
		return false, fmt.Errorf("transfer: list participants: %w", err)
	}
	if len(participants) > 0 {
		return false, nil
	}
	if err := o.platform.DeleteRoom(callCtx, room); err != nil {
		return false, fmt.Errorf("transfer: delete room: %w", err)
	}
	o.logger.Info().Str("room", room).Msg("Idle room deleted")
	return true, nil
}

func (o *Orchestrator) resolveTarget(req Request) (*models.DirectoryAgent, error) {
	var (
		target *models.DirectoryAgent
		err    error
	)
	if req.TargetRole != "" {
		target, err = o.directory.AgentByRole(req.TargetRole)
	} else {
		target, err = o.directory.AgentForCategory(req.Category)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTargetAgent, err)
	}
	return target, nil
}

func (o *Orchestrator) lookupCaller(req Request) *models.CallerContext {
	if req.CallerID == "" || req.CallerType == "" {
		return nil
	}
	callerCtx, err := o.directory.CallerContext(req.CallerID, req.CallerType)
	if err != nil {
		o.logger.Debug().Str("caller", req.CallerID).Msg("No caller context found")
		return nil
	}
	return callerCtx
}

// buildSummary decides the hand-off summary and the transcript context
// it was built from. A caller-supplied summary is used verbatim and the
// summarizer is never consulted.
func (o *Orchestrator) buildSummary(ctx context.Context, req Request, caller *models.CallerContext) (summaryText, contextText string) {
	if req.Summary != "" {
		return req.Summary, ""
	}

	if _, started := o.transcripts.Status(req.Room); !started {
		return summary.PlaceholderNoTranscript, ""
	}
	if strings.TrimSpace(o.transcripts.SummaryText(req.Room)) == "" {
		return summary.PlaceholderEmptyTranscript, ""
	}

	o.mu.Lock()
	running := o.summaries[req.Room]
	o.mu.Unlock()
	contextText = summary.BuildContext(o.transcripts.Segments(req.Room), running)

	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	out, err := o.summarizer.Summarize(callCtx, contextText, req.Category, caller)
	if err != nil {
		o.logger.Warn().Err(err).Str("room", req.Room).Msg("Summarizer failed, using fallback")
		if out == "" {
			out = summary.Fallback(req.Category)
		}
	}
	return out, contextText
}

func (o *Orchestrator) prepareRoom(ctx context.Context, req Request) string {
	if req.Strategy != StrategyNewRoom {
		return req.Room
	}
	name := fmt.Sprintf("transfer-%s", uuid.NewString()[:8])
	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	if err := o.platform.CreateRoom(callCtx, name); err != nil {
		o.logger.Error().Err(err).Str("room", name).Msg("Failed to create transfer room, reusing original")
		return req.Room
	}
	return name
}

func (o *Orchestrator) placeCall(ctx context.Context, phone string, rec *models.TransferRecord) string {
	callbackURL := fmt.Sprintf("%s/api/twilio/voice?room=%s", o.webhookBase, rec.Room)
	statusURL := fmt.Sprintf("%s/api/twilio/status", o.webhookBase)

	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	sid, err := o.dialer.PlaceCall(callCtx, phone, callbackURL, statusURL)
	if err != nil {
		// The web leg of the transfer still works without the phone leg.
		o.logger.Error().Err(err).Str("phone", phone).Msg("Failed to place transfer call")
		return ""
	}
	return sid
}

// store saves the record under its target agent slot. An unconsumed
// pending transfer for the same agent is overwritten.
func (o *Orchestrator) store(rec *models.TransferRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.records[rec.TargetAgent]; ok {
		o.logger.Warn().
			Str("agent", rec.TargetAgent).
			Str("replaced", old.ID).
			Str("with", rec.ID).
			Msg("Overwriting unconsumed pending transfer")
	}
	o.records[rec.TargetAgent] = rec
}

func (o *Orchestrator) rememberSummary(room, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries[room] = text
}

func (o *Orchestrator) publishStage(ctx context.Context, rec *models.TransferRecord) {
	o.metrics.TransferStages.WithLabelValues(string(rec.State)).Inc()
	if err := o.publisher.PublishTransferStage(ctx, rec.Room, models.TransferStageEvent{
		EventType:   "support.transfer.stage",
		TransferID:  rec.ID,
		Room:        rec.Room,
		FromAgent:   rec.FromAgent,
		TargetAgent: rec.TargetAgent,
		State:       string(rec.State),
		Timestamp:   o.now().UnixMilli(),
	}); err != nil {
		o.logger.Warn().Err(err).Str("state", string(rec.State)).Msg("Failed to publish transfer stage")
	}
}

// snapshot copies a record so callers never share the stored map entry.
func (o *Orchestrator) snapshot(rec *models.TransferRecord) *models.TransferRecord {
	cp := *rec
	cp.Credentials = make(map[string]string, len(rec.Credentials))
	for k, v := range rec.Credentials {
		cp.Credentials[k] = v
	}
	return &cp
}
