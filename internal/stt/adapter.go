// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"

	"warm-transfer-service/internal/models"
)

// Result is one transcript event from the provider. Interim results
// carry IsFinal=false and may be revised; a final result closes the
// utterance. Words carry timing and diarization speaker tags when the
// provider supplies them.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []models.WordInfo
}

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnResult is called for every interim or final transcript.
	OnResult(res Result)

	// OnError is called when an error occurs during transcription.
	// The stream is unusable afterwards.
	OnError(err error)
}

// Adapter defines the interface for STT providers (Google, Azure, AWS, etc.).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Factory builds one adapter per transcription session.
type Factory func(ctx context.Context) (Adapter, error)
