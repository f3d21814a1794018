package models

// Event payloads published to Kafka. Keys are the conversation room so
// consumers see per-conversation ordering.

// AssignmentEvent is emitted when the matcher binds a customer to an agent.
type AssignmentEvent struct {
	EventType string `json:"eventType"`
	Customer  string `json:"customer"`
	Agent     string `json:"agent"`
	Category  string `json:"category"`
	Room      string `json:"room"`
	Timestamp int64  `json:"timestamp"`
}

// TransferStageEvent is emitted on every transfer state transition.
type TransferStageEvent struct {
	EventType   string `json:"eventType"`
	TransferID  string `json:"transferId"`
	Room        string `json:"room"`
	FromAgent   string `json:"fromAgent"`
	TargetAgent string `json:"targetAgent"`
	State       string `json:"state"`
	Timestamp   int64  `json:"timestamp"`
}

// TranscriptFinalEvent is emitted for every stored final segment.
type TranscriptFinalEvent struct {
	EventType  string  `json:"eventType"`
	Session    string  `json:"session"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}
