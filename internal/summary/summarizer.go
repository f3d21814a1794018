// Package summary produces short hand-off summaries for warm transfers.
//
// The production implementation calls an OpenAI-compatible chat
// completion endpoint. Any failure degrades to a deterministic
// per-category fallback sentence so a transfer never stalls on the
// summarizer.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/observability/metrics"
)

// PlaceholderNoTranscript is used when transcription was never started
// for the conversation.
const PlaceholderNoTranscript = "no transcription available for this conversation"

// PlaceholderEmptyTranscript is used when transcription ran but
// captured no final text.
const PlaceholderEmptyTranscript = "transcription failed, ask the customer to repeat the issue"

const systemPrompt = "You are a helpful assistant that creates concise call summaries for warm transfers between customer service agents."

const promptTemplate = `Please summarize the following customer service call conversation into a very short and clear paragraph that an agent can quickly read out loud to another agent for a warm transfer. Focus on the customer's issue and what has been done so far. Keep it under 3 sentences and make it conversational:

%s`

// Summarizer turns raw conversation context into a hand-off summary.
type Summarizer interface {
	Summarize(ctx context.Context, text, category string, caller *models.CallerContext) (string, error)
}

// Fallback returns the deterministic per-category summary used when
// the model call fails or no model is configured.
func Fallback(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "billing":
		return "Customer called about a billing question. Their account has been located and the disputed charge identified. They need help resolving the charge."
	case "technical", "tech":
		return "Customer called about a technical issue. I've verified their account and helped them reset their password. They're now experiencing issues with their dashboard access and need immediate assistance."
	case "account":
		return "Customer called about account access. Identity has been verified and a recovery email sent. They still cannot sign in and need further help."
	default:
		return "Customer called with a support request. Initial troubleshooting is done and the details are in the transcript. They need a specialist to take over."
	}
}

// contextSegmentLimit bounds how much transcript is sent to the model.
const contextSegmentLimit = 10

// BuildContext assembles the model input from captured transcript
// segments and the running summary. Only final segments are used, the
// most recent contextSegmentLimit of them, each annotated with speaker
// and capture time.
func BuildContext(segments []models.TranscriptSegment, runningSummary string) string {
	finals := segments[:0:0]
	for _, s := range segments {
		if s.Final {
			finals = append(finals, s)
		}
	}
	if len(finals) > contextSegmentLimit {
		finals = finals[len(finals)-contextSegmentLimit:]
	}

	var b strings.Builder
	for _, s := range finals {
		fmt.Fprintf(&b, "[%s %s] %s\n", s.CapturedAt.Format("15:04:05"), s.Speaker, s.Text)
	}
	if runningSummary != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Previous summary: ")
		b.WriteString(runningSummary)
	}
	return b.String()
}

// OpenAI is the chat-completion backed Summarizer.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Config carries the OpenAI client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOpenAI builds the production summarizer. The API key must be set;
// callers without one should use Fallback directly.
func NewOpenAI(cfg Config, logger zerolog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summary: api key not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		logger:  logger.With().Str("component", "summarizer").Logger(),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Summarize calls the model and returns its summary, or the
// per-category fallback together with the underlying error.
func (o *OpenAI) Summarize(ctx context.Context, text, category string, caller *models.CallerContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(promptTemplate, text)
	if caller != nil && caller.Summary != "" {
		userPrompt += "\n\nCaller background: " + caller.Summary
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	o.metrics.RecordExternalCall("openai", err, start)
	if err != nil {
		o.logger.Error().Err(err).Str("category", category).Msg("summary generation failed, using fallback")
		o.metrics.SummaryFallbacks.Inc()
		return Fallback(category), err
	}
	if len(resp.Choices) == 0 {
		o.logger.Error().Str("category", category).Msg("summary response had no choices, using fallback")
		o.metrics.SummaryFallbacks.Inc()
		return Fallback(category), fmt.Errorf("summary: empty completion")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		o.metrics.SummaryFallbacks.Inc()
		return Fallback(category), fmt.Errorf("summary: blank completion")
	}
	o.logger.Info().Str("category", category).Msg("generated call summary")
	return out, nil
}

// Static always returns the per-category fallback. It stands in for
// the model in credential-free runs and tests.
type Static struct{}

func (Static) Summarize(_ context.Context, _ string, category string, _ *models.CallerContext) (string, error) {
	return Fallback(category), nil
}
