// Package httpapi exposes the synchronous HTTP surface of the warm
// transfer service.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/agents"
	"warm-transfer-service/internal/chat"
	"warm-transfer-service/internal/directory"
	"warm-transfer-service/internal/matcher"
	"warm-transfer-service/internal/media"
	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/observability/metrics"
	"warm-transfer-service/internal/queue"
	"warm-transfer-service/internal/telephony"
	"warm-transfer-service/internal/transcription"
	"warm-transfer-service/internal/transfer"
)

// Handlers bundles the service state the HTTP surface operates on.
type Handlers struct {
	queue       *queue.Store
	registry    *agents.Registry
	matcher     *matcher.Matcher
	transcripts *transcription.Manager
	transfers   *transfer.Orchestrator
	directory   *directory.Directory
	responder   chat.Responder
	platform    media.Platform
	gateway     telephony.Gateway // nil when telephony is not configured
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// New creates the handler set.
func New(q *queue.Store, r *agents.Registry, m *matcher.Matcher, t *transcription.Manager, tr *transfer.Orchestrator, d *directory.Directory, c chat.Responder, p media.Platform, g telephony.Gateway, logger zerolog.Logger) *Handlers {
	return &Handlers{
		queue:       q,
		registry:    r,
		matcher:     m,
		transcripts: t,
		transfers:   tr,
		directory:   d,
		responder:   c,
		platform:    p,
		gateway:     g,
		logger:      logger.With().Str("component", "httpapi").Logger(),
		metrics:     metrics.DefaultMetrics,
	}
}

type enqueueRequest struct {
	Identity string `json:"identity"`
	Category string `json:"category"`
}

func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	position, err := h.queue.Enqueue(req.Identity, req.Category)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			writeError(w, http.StatusConflict, "identity already queued")
			return
		}
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	h.metrics.EnqueuesTotal.Inc()
	h.metrics.QueueDepth.Set(float64(h.queue.Len()))

	// A free agent may already be waiting for work.
	h.matcher.TryMatch("")

	writeJSON(w, http.StatusCreated, map[string]any{"identity": req.Identity, "position": position})
}

func (h *Handlers) queuePosition(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	position, ok := h.queue.PositionOf(identity)
	if !ok {
		writeError(w, http.StatusNotFound, "not in queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity, "position": position})
}

func (h *Handlers) abandon(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	h.queue.Remove(identity)
	h.metrics.QueueDepth.Set(float64(h.queue.Len()))
	w.WriteHeader(http.StatusNoContent)
}

type agentStatusRequest struct {
	Status          string `json:"status"`
	CurrentCustomer string `json:"currentCustomer"`
}

// agentStatus updates an agent's availability. When the update makes
// the agent available the matcher hook runs before this handler
// responds, so a resulting assignment is visible in the returned
// record.
func (h *Handlers) agentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.registry.SetStatus(agentID, models.AgentStatus(req.Status), req.CurrentCustomer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Get(agentID))
}

func (h *Handlers) agentGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Get(chi.URLParam(r, "agentID")))
}

// agentNext lets an agent explicitly pull the oldest waiting customer.
func (h *Handlers) agentNext(w http.ResponseWriter, r *http.Request) {
	assignment := h.matcher.TryMatch(chi.URLParam(r, "agentID"))
	if assignment == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type transferRequest struct {
	Room       string `json:"room"`
	FromAgent  string `json:"fromAgent"`
	Category   string `json:"category"`
	Summary    string `json:"summary"`
	TargetRole string `json:"targetRole"`
	CallerID   string `json:"callerId"`
	CallerType string `json:"callerType"`
	Phone      string `json:"phone"`
	Strategy   string `json:"strategy"`
}

func (h *Handlers) transferInitiate(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.transfers.Initiate(r.Context(), transfer.Request{
		Room:       req.Room,
		FromAgent:  req.FromAgent,
		Category:   req.Category,
		Summary:    req.Summary,
		TargetRole: req.TargetRole,
		CallerID:   req.CallerID,
		CallerType: req.CallerType,
		Phone:      req.Phone,
		Strategy:   transfer.RoomStrategy(req.Strategy),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) transferReady(w http.ResponseWriter, r *http.Request) {
	rec, err := h.transfers.MarkReady(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) transferPending(w http.ResponseWriter, r *http.Request) {
	rec, err := h.transfers.Pending(chi.URLParam(r, "agentID"))
	switch {
	case errors.Is(err, transfer.ErrUnknownTransfer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, transfer.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handlers) transferComplete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.transfers.Complete(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) roomReap(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.transfers.ReapRoomIfIdle(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handlers) transcriptionStart(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if err := h.transcripts.Start(r.Context(), room); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room, "active": h.transcripts.IsActive(room)})
}

func (h *Handlers) transcriptionStop(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if err := h.transcripts.Stop(room); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The session loop processes the stop asynchronously; give the
	// transition a bounded window so the response reflects the actual
	// state rather than assuming it.
	deadline := time.Now().Add(2 * time.Second)
	for h.transcripts.IsActive(room) && time.Now().Before(deadline) && r.Context().Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room, "active": h.transcripts.IsActive(room)})
}

func (h *Handlers) transcriptionSegments(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	writeJSON(w, http.StatusOK, map[string]any{
		"room":     room,
		"active":   h.transcripts.IsActive(room),
		"segments": h.transcripts.Segments(room),
	})
}

func (h *Handlers) transcriptionSummary(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	writeJSON(w, http.StatusOK, map[string]any{
		"room": room,
		"text": h.transcripts.SummaryText(room),
	})
}

type roomCreateRequest struct {
	Identity string `json:"identity"`
	Type     string `json:"type"` // "agent" or "customer"
	Category string `json:"category"`
	Room     string `json:"room"`
}

// roomCreate is the direct entry point: agents get a room and a join
// credential immediately, customers are put in the queue instead.
func (h *Handlers) roomCreate(w http.ResponseWriter, r *http.Request) {
	var req roomCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	switch req.Type {
	case "agent":
		room := req.Room
		if room == "" {
			room = fmt.Sprintf("support-%s", uuid.NewString()[:8])
		}
		if err := h.platform.CreateRoom(r.Context(), room); err != nil {
			h.logger.Error().Err(err).Str("room", room).Msg("Failed to create room")
		}
		token, err := h.platform.IssueCredential(r.Context(), room, "agent_"+req.Identity, media.ParticipantPermissions)
		if err != nil {
			writeError(w, http.StatusBadGateway, "credential issuance failed")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"room": room, "token": token})
	case "customer", "":
		position, err := h.queue.Enqueue(req.Identity, req.Category)
		if err != nil {
			if errors.Is(err, queue.ErrAlreadyQueued) {
				writeError(w, http.StatusConflict, "identity already queued")
				return
			}
			writeError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		h.metrics.EnqueuesTotal.Inc()
		h.metrics.QueueDepth.Set(float64(h.queue.Len()))
		h.matcher.TryMatch("")
		writeJSON(w, http.StatusAccepted, map[string]any{"identity": req.Identity, "position": position})
	default:
		writeError(w, http.StatusBadRequest, "type must be agent or customer")
	}
}

func (h *Handlers) callerContext(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	callerType := r.URL.Query().Get("type")
	if email == "" || callerType == "" {
		writeError(w, http.StatusBadRequest, "email and type are required")
		return
	}
	ctx, err := h.directory.CallerContext(email, callerType)
	if err != nil {
		writeError(w, http.StatusNotFound, "caller not found")
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

type chatRequest struct {
	Message    string         `json:"message"`
	Email      string         `json:"email"`
	CallerType string         `json:"caller_type"`
	History    []chat.Message `json:"conversation_history"`
}

// chatRespond answers a caller message with a generated reply. The
// caller's directory record, when one exists, enriches the prompt; an
// unknown caller still gets a reply.
func (h *Handlers) chatRespond(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var caller *models.CallerContext
	if req.Email != "" && req.CallerType != "" {
		if ctx, err := h.directory.CallerContext(req.Email, req.CallerType); err == nil {
			caller = ctx
		}
	}

	reply, err := h.responder.Respond(r.Context(), req.Message, req.CallerType, caller, req.History)
	if err != nil {
		// The responder degrades to its fallback text on failure.
		h.logger.Warn().Err(err).Msg("Chat response degraded to fallback")
	}

	history := append(req.History,
		chat.Message{Role: "user", Content: req.Message},
		chat.Message{Role: "assistant", Content: reply},
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"response":             reply,
		"conversation_history": history,
	})
}

// twilioVoice answers the carrier webhook for an answered transfer
// call with TwiML that drops the agent into the room.
func (h *Handlers) twilioVoice(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = r.URL.Query().Get("room_name")
	}
	if room == "" {
		writeError(w, http.StatusBadRequest, "room is required")
		return
	}
	doc, err := telephony.VoiceResponse(room, r.URL.Query().Get("say"))
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("Failed to render voice response")
		writeError(w, http.StatusInternalServerError, "twiml rendering failed")
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (h *Handlers) callStatus(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeError(w, http.StatusNotImplemented, "telephony not configured")
		return
	}
	sid := chi.URLParam(r, "sid")
	status, err := h.gateway.CallStatus(r.Context(), sid)
	if err != nil {
		h.logger.Warn().Err(err).Str("sid", sid).Msg("Call status lookup failed")
	}
	writeJSON(w, http.StatusOK, map[string]any{"sid": sid, "status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
