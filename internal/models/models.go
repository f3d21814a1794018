// Package models defines the data structures shared across the warm
// transfer service: queue entries, agent records, transcript segments
// and transfer records.
package models

import "time"

// QueueStatus is the lifecycle status of a queue entry.
type QueueStatus string

const (
	QueueWaiting  QueueStatus = "waiting"
	QueueAssigned QueueStatus = "assigned"
)

// QueueEntry is one waiting customer. Identity is the customer handle
// (typically an email address) and is unique among waiting entries.
type QueueEntry struct {
	Identity   string      `json:"identity"`
	Category   string      `json:"category"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	Status     QueueStatus `json:"status"`
}

// AgentStatus is the availability state of an agent.
type AgentStatus string

const (
	AgentOffline   AgentStatus = "offline"
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
)

// AgentRecord holds an agent's current status. CurrentCustomer is
// non-empty iff Status is AgentBusy.
type AgentRecord struct {
	ID              string      `json:"id"`
	Status          AgentStatus `json:"status"`
	CurrentCustomer string      `json:"currentCustomer,omitempty"`
}

// WordInfo is a word-level annotation on a transcript segment:
// timing offsets relative to the start of the audio stream and the
// speaker tag assigned by diarization (0 when diarization is off).
type WordInfo struct {
	Word       string        `json:"word"`
	Start      time.Duration `json:"startMs"`
	End        time.Duration `json:"endMs"`
	SpeakerTag int           `json:"speakerTag,omitempty"`
}

// TranscriptSegment is one speech-to-text result for a conversation.
// Interim segments may be superseded by a later final segment covering
// the same audio; both are retained and summary views filter to finals.
type TranscriptSegment struct {
	Session    string     `json:"session"`
	Speaker    string     `json:"speaker"`
	Text       string     `json:"text"`
	CapturedAt time.Time  `json:"capturedAt"`
	Final      bool       `json:"final"`
	Confidence float64    `json:"confidence,omitempty"`
	Words      []WordInfo `json:"words,omitempty"`
}

// TransferState tracks how far a warm transfer has progressed.
type TransferState string

const (
	TransferRequested     TransferState = "requested"
	TransferSummarized    TransferState = "summarized"
	TransferRoomReady     TransferState = "room_ready"
	TransferAwaitingAgent TransferState = "awaiting_second_agent"
	TransferReadyToJoin   TransferState = "ready_to_join"
	TransferCompleted     TransferState = "completed"
)

// TransferRecord is one pending warm transfer, keyed by the target
// agent slot. Credentials maps joining identity to its room token.
// ReadyToJoin only ever transitions false to true.
type TransferRecord struct {
	ID          string            `json:"id"`
	TargetAgent string            `json:"targetAgent"`
	Room        string            `json:"room"`
	Summary     string            `json:"summary"`
	Credentials map[string]string `json:"credentials"`
	FromAgent   string            `json:"fromAgent"`
	CreatedAt   time.Time         `json:"createdAt"`
	ReadyToJoin bool              `json:"readyToJoin"`
	State       TransferState     `json:"state"`
	Context     string            `json:"context,omitempty"`
	CallSID     string            `json:"callSid,omitempty"`
}

// Assignment describes a customer/agent pairing produced by the matcher.
type Assignment struct {
	Customer      string `json:"customer"`
	Agent         string `json:"agent"`
	Category      string `json:"category"`
	Room          string `json:"room"`
	AgentToken    string `json:"agentToken,omitempty"`
	CustomerToken string `json:"customerToken,omitempty"`
}

// DirectoryAgent is one entry in the agent directory.
type DirectoryAgent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Phone string `json:"phone,omitempty"`
}

// CallerContext is what the directory knows about a caller, used to
// enrich transfer summaries.
type CallerContext struct {
	Type    string `json:"type"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Summary string `json:"summary,omitempty"`
}
