// Package mock provides a mock STT adapter for running without cloud
// credentials. It simulates realistic speech-to-text behavior with
// progressive interim transcripts and exactly one final transcript per
// utterance, including word-level speaker tags.
package mock

import (
	"context"
	"sync"
	"time"

	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for the final
	SpeakerTag int      // Diarization tag attached to every word
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I can't", "I can't log", "I can't log in"},
		Final:      "I can't log in to my account since the password reset",
		Confidence: 0.94,
		SpeakerTag: 1,
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please transfer me to someone who can help",
		Confidence: 0.97,
		SpeakerTag: 1,
	},
	{
		Partials:   []string{"Let me", "Let me check your"},
		Final:      "Let me check your account permissions",
		Confidence: 0.91,
		SpeakerTag: 2,
	},
	{
		Partials:   []string{"I've been", "I've been waiting", "I've been waiting for"},
		Final:      "I've been waiting for over an hour",
		Confidence: 0.89,
		SpeakerTag: 1,
	},
}

// Adapter implements stt.Adapter with mock responses: one interim per
// audio frame, then a single final once all interims are spent.
type Adapter struct {
	cb        stt.Callback
	mu        sync.Mutex
	utterance SimulatedUtterance
	partialIx int
	finalSent bool
	closed    bool
}

// utteranceCounter cycles through the default utterances.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock STT adapter.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{utterance: DefaultUtterances[idx]}
}

// NewWithUtterance creates a mock adapter that plays a fixed utterance.
func NewWithUtterance(u SimulatedUtterance) *Adapter {
	return &Adapter{utterance: u}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
	return nil
}

// SendAudio simulates receiving audio and triggers progressive interim
// transcripts; once all interims are sent the utterance completes with
// a final, mimicking silence detection.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIx < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIx]
		a.partialIx++

		go func(text string) {
			time.Sleep(50 * time.Millisecond)
			a.mu.Lock()
			cb := a.cb
			closed := a.closed
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnResult(stt.Result{Text: text, IsFinal: false})
			}
		}(partial)
	} else if !a.finalSent {
		a.finalSent = true

		go func() {
			time.Sleep(100 * time.Millisecond)
			a.mu.Lock()
			cb := a.cb
			closed := a.closed
			utt := a.utterance
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnResult(finalResult(utt))
			}
		}()
	}

	return nil
}

// Close ends the mock session. If the final wasn't reached naturally
// (stream ended early), it is sent now.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if !a.finalSent && a.cb != nil {
		a.finalSent = true
		cb := a.cb
		utt := a.utterance
		go func() {
			time.Sleep(100 * time.Millisecond)
			cb.OnResult(finalResult(utt))
		}()
	}

	return nil
}

func finalResult(u SimulatedUtterance) stt.Result {
	res := stt.Result{
		Text:       u.Final,
		IsFinal:    true,
		Confidence: u.Confidence,
	}
	if u.SpeakerTag > 0 {
		// One word entry per token, all tagged with the utterance speaker.
		offset := time.Duration(0)
		for _, w := range splitWords(u.Final) {
			res.Words = append(res.Words, models.WordInfo{
				Word:       w,
				Start:      offset,
				End:        offset + 300*time.Millisecond,
				SpeakerTag: u.SpeakerTag,
			})
			offset += 300 * time.Millisecond
		}
	}
	return res
}

func splitWords(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
