package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP router for the service. wsHandler, when
// non-nil, is mounted at /ws for connection upgrades.
func NewRouter(h *Handlers, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/queue", h.enqueue)
		r.Get("/queue/{identity}", h.queuePosition)
		r.Delete("/queue/{identity}", h.abandon)

		r.Post("/agents/{agentID}/status", h.agentStatus)
		r.Get("/agents/{agentID}", h.agentGet)
		r.Post("/agents/{agentID}/next", h.agentNext)

		r.Post("/transfer", h.transferInitiate)
		r.Post("/transfer/{agentID}/ready", h.transferReady)
		r.Get("/transfer/{agentID}", h.transferPending)
		r.Post("/transfer/{agentID}/complete", h.transferComplete)

		r.Post("/rooms/{room}/reap", h.roomReap)
		r.Post("/room/create", h.roomCreate)

		r.Post("/transcription/{room}/start", h.transcriptionStart)
		r.Post("/transcription/{room}/stop", h.transcriptionStop)
		r.Get("/transcription/{room}", h.transcriptionSegments)
		r.Get("/transcription/{room}/summary", h.transcriptionSummary)

		r.Get("/caller-context", h.callerContext)
		r.Post("/chat", h.chatRespond)

		r.Post("/twilio/voice", h.twilioVoice)
		r.Get("/calls/{sid}", h.callStatus)
	})

	return r
}
