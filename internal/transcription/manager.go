// Package transcription owns one buffering/decoding session per active
// conversation, accumulating timestamped text segments from the speech
// engine.
//
// All inputs to a session - audio frames, transcript results, upstream
// errors, stop requests - flow through a single typed event channel
// consumed by one goroutine per session, so frames and results for a
// session are never reordered while different sessions proceed fully in
// parallel.
package transcription

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/observability/metrics"
	"warm-transfer-service/internal/stt"
)

// DefaultChunkBytes is roughly 100ms of 16kHz mono 16-bit audio.
const DefaultChunkBytes = 3200

// dispatchTimeout bounds one upstream audio write.
const dispatchTimeout = 30 * time.Second

type eventKind int

const (
	evAudio eventKind = iota
	evResult
	evError
)

type event struct {
	kind   eventKind
	audio  []byte
	result stt.Result
	err    error
}

// session is the per-conversation state. The consume loop owns buffer
// exclusively; mu guards state, closed and segments, which readers
// access concurrently.
type session struct {
	key      string
	adapter  stt.Adapter
	events   chan event
	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	state    State
	closed   bool
	segments []models.TranscriptSegment

	buffer []byte
}

// enqueue hands an event to the session loop. Events arriving after
// close land in the buffered channel and are discarded with it.
func (s *session) enqueue(ev event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	select {
	case s.events <- ev:
	default:
		// Backpressure: the loop has fallen far behind; shedding the
		// oldest-first would reorder, so shed the new event instead.
		// Stop requests bypass this queue entirely, see requestStop.
	}
}

// requestStop signals the session loop to shut down. Audio and results
// may be shed under backpressure; a stop must always land, so it rides
// a dedicated channel the loop checks on every iteration.
func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// OnResult implements stt.Callback.
func (s *session) OnResult(res stt.Result) {
	s.enqueue(event{kind: evResult, result: res})
}

// OnError implements stt.Callback.
func (s *session) OnError(err error) {
	s.enqueue(event{kind: evError, err: err})
}

// Manager owns all transcription sessions, at most one per
// conversation key.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	factory    stt.Factory
	chunkBytes int
	publisher  *events.Publisher
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewManager creates a session manager. factory builds one upstream
// adapter per session; chunkBytes <= 0 selects the default.
func NewManager(factory stt.Factory, chunkBytes int, pub *events.Publisher, logger zerolog.Logger) *Manager {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	return &Manager{
		sessions:   make(map[string]*session),
		factory:    factory,
		chunkBytes: chunkBytes,
		publisher:  pub,
		logger:     logger.With().Str("component", "transcription").Logger(),
		metrics:    metrics.DefaultMetrics,
	}
}

// Start opens a transcription session for key. Starting a key that is
// already active is a no-op returning success. A stopped session for
// the same key is replaced, its segments discarded.
func (m *Manager) Start(ctx context.Context, key string) error {
	m.mu.Lock()

	if existing, ok := m.sessions[key]; ok {
		existing.mu.Lock()
		state := existing.state
		existing.mu.Unlock()
		if state != StateStopped {
			m.mu.Unlock()
			return nil
		}
	}

	s := &session{
		key:    key,
		state:  StateStarting,
		events: make(chan event, 256),
		stop:   make(chan struct{}),
	}
	m.sessions[key] = s
	m.mu.Unlock()

	adapter, err := m.factory(ctx)
	if err != nil {
		m.dropSession(key, s)
		return fmt.Errorf("transcription: create adapter: %w", err)
	}

	// The stream outlives the caller's request context: only Stop or an
	// upstream error may end it.
	if err := adapter.Start(context.Background(), s); err != nil {
		m.dropSession(key, s)
		return fmt.Errorf("transcription: start stream: %w", err)
	}

	s.adapter = adapter
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	go m.consume(s)

	m.metrics.SessionsTotal.Inc()
	m.metrics.SessionsActive.Inc()
	m.logger.Info().Str("session", key).Msg("Transcription session started")
	return nil
}

// Ingest feeds one raw audio frame into the session for key. Frames
// for unknown or stopped sessions are dropped.
func (m *Manager) Ingest(key string, frame []byte) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.enqueue(event{kind: evAudio, audio: buf})
}

// Stop tears down the session for key. Calling stop when no session
// exists returns success and mutates nothing. Captured segments remain
// readable until Clear.
func (m *Manager) Stop(key string) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	s.requestStop()
	return nil
}

// Clear removes the session for key entirely, destroying its segment
// list. Active sessions are stopped first.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.requestStop()
}

// IsActive reports whether key has a live session.
func (m *Manager) IsActive(key string) bool {
	state, ok := m.Status(key)
	return ok && state == StateActive
}

// Status returns the session state for key, or false when no session
// exists (never started, or cleared).
func (m *Manager) Status(key string) (State, bool) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

// Segments returns the ordered segment list for key. The returned
// slice is a copy.
func (m *Manager) Segments(key string) []models.TranscriptSegment {
	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TranscriptSegment, len(s.segments))
	copy(out, s.segments)
	return out
}

// SummaryText concatenates the text of final segments, space-joined,
// in arrival order.
func (m *Manager) SummaryText(key string) string {
	var parts []string
	for _, seg := range m.Segments(key) {
		if seg.Final {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// consume is the per-session loop. It exclusively owns the audio
// buffer and performs all upstream writes, preserving frame order. The
// stop channel is checked ahead of the event queue so a stop is acted
// on even when the queue is saturated.
func (m *Manager) consume(s *session) {
	for {
		select {
		case <-s.stop:
			m.deactivate(s, true)
			return
		default:
		}

		select {
		case <-s.stop:
			m.deactivate(s, true)
			return
		case ev := <-s.events:
			switch ev.kind {
			case evAudio:
				if !m.handleAudio(s, ev.audio) {
					return
				}
			case evResult:
				m.handleResult(s, ev.result)
			case evError:
				m.logger.Warn().Err(ev.err).Str("session", s.key).Msg("Upstream stream error, session marked inactive")
				m.deactivate(s, false)
				return
			}
		}
	}
}

// handleAudio buffers one frame and dispatches full chunks upstream.
// It returns false when it tore the session down, telling the loop to
// exit.
func (m *Manager) handleAudio(s *session, frame []byte) bool {
	s.buffer = append(s.buffer, frame...)
	m.metrics.AudioBytes.Add(float64(len(frame)))

	for len(s.buffer) >= m.chunkBytes {
		select {
		case <-s.stop:
			// Undispatched buffered audio is abandoned with the session.
			m.deactivate(s, true)
			return false
		default:
		}

		chunk := s.buffer[:m.chunkBytes]

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		err := s.adapter.SendAudio(ctx, chunk)
		cancel()
		if err != nil {
			m.logger.Warn().Err(err).Str("session", s.key).Msg("Audio dispatch failed, session marked inactive")
			m.deactivate(s, false)
			return false
		}

		s.buffer = s.buffer[m.chunkBytes:]
		m.metrics.ChunksDispatched.Inc()
	}
	return true
}

func (m *Manager) handleResult(s *session, res stt.Result) {
	if strings.TrimSpace(res.Text) == "" {
		m.logger.Warn().Str("session", s.key).Bool("final", res.IsFinal).Msg("Dropping empty transcript segment")
		m.metrics.SegmentsDropped.WithLabelValues("empty").Inc()
		return
	}

	seg := models.TranscriptSegment{
		Session:    s.key,
		Speaker:    speakerOf(res),
		Text:       res.Text,
		CapturedAt: time.Now(),
		Final:      res.IsFinal,
		Confidence: res.Confidence,
		Words:      res.Words,
	}

	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	finality := "interim"
	if seg.Final {
		finality = "final"
	}
	m.metrics.SegmentsStored.WithLabelValues(finality).Inc()

	if seg.Final {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := m.publisher.PublishTranscript(ctx, s.key, models.TranscriptFinalEvent{
			EventType:  "support.transcript.final",
			Session:    s.key,
			Speaker:    seg.Speaker,
			Text:       seg.Text,
			Confidence: seg.Confidence,
			Timestamp:  seg.CapturedAt.UnixMilli(),
		}); err != nil {
			m.logger.Warn().Err(err).Str("session", s.key).Msg("Failed to publish transcript event")
		}
	}
}

// deactivate transitions the session to stopped and releases the
// upstream connection. graceful distinguishes an explicit stop from an
// upstream failure, for logging only; segments survive either way.
func (m *Manager) deactivate(s *session, graceful bool) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.closed = true
	s.mu.Unlock()

	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			m.logger.Warn().Err(err).Str("session", s.key).Msg("Error closing upstream stream")
		}
	}

	m.metrics.SessionsActive.Dec()
	m.logger.Info().Str("session", s.key).Bool("graceful", graceful).Msg("Transcription session stopped")
}

// dropSession removes a session that failed before going active.
func (m *Manager) dropSession(key string, s *session) {
	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

// speakerOf derives the speaker label from the first word-level
// annotation, defaulting to "unknown".
func speakerOf(res stt.Result) string {
	if len(res.Words) > 0 && res.Words[0].SpeakerTag > 0 {
		return fmt.Sprintf("speaker-%d", res.Words[0].SpeakerTag)
	}
	return "unknown"
}
