// Package chat produces conversational replies for callers interacting
// with the service before or between agent hand-offs, grounded in what
// the directory knows about them.
//
// Like the summarizer, the production implementation calls an
// OpenAI-compatible chat completion endpoint and degrades to a
// deterministic per-caller-type reply on any failure.
package chat

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

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responder generates the next assistant reply for a caller message.
type Responder interface {
	Respond(ctx context.Context, message, callerType string, caller *models.CallerContext, history []Message) (string, error)
}

// Fallback is the deterministic reply used when the model call fails
// or no model is configured.
func Fallback(callerType string) string {
	if strings.EqualFold(strings.TrimSpace(callerType), "investor") {
		return "I understand you have questions about your investment. Let me connect you with our compliance specialist who can provide more detailed assistance."
	}
	return "Thank you for your interest. Let me connect you with one of our General Partners who can discuss investment opportunities with you."
}

const investorPrompt = `You are a professional support specialist at a venture capital firm. You are speaking with a current investor who has questions about their investment or portfolio.

Key guidelines:
- Be professional, knowledgeable, and helpful
- Focus on compliance, portfolio performance, and investor relations
- If you don't know something specific, offer to connect them with the appropriate specialist
- Maintain confidentiality and professionalism
- Keep responses concise but informative`

const prospectPrompt = `You are a professional representative at a venture capital firm. You are speaking with a prospective investor who is interested in learning about investment opportunities.

Key guidelines:
- Be welcoming, professional, and informative
- Focus on the investment thesis, portfolio companies, and track record
- If they have specific questions about investment opportunities, offer to connect them with a General Partner
- Keep responses engaging but professional`

const closingPrompt = `

Remember: if the conversation requires specialized knowledge (compliance, legal, investment decisions), offer to transfer the caller to the appropriate expert.`

// systemPrompt assembles the role instructions for the caller type,
// enriched with what the directory knows about the caller.
func systemPrompt(callerType string, caller *models.CallerContext) string {
	var b strings.Builder
	if strings.EqualFold(strings.TrimSpace(callerType), "investor") {
		b.WriteString(investorPrompt)
	} else {
		b.WriteString(prospectPrompt)
	}
	if caller != nil {
		fmt.Fprintf(&b, "\n\nCurrent caller context:\n- Name: %s\n- Background: %s", caller.Name, caller.Summary)
	}
	b.WriteString(closingPrompt)
	return b.String()
}

// OpenAI is the chat-completion backed Responder.
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

// NewOpenAI builds the production responder. The API key must be set;
// callers without one should use Static.
func NewOpenAI(cfg Config, logger zerolog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("chat: api key not configured")
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
		logger:  logger.With().Str("component", "chat").Logger(),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Respond calls the model with the system prompt, the prior turns and
// the new message, returning the reply or the fallback together with
// the underlying error.
func (o *OpenAI) Respond(ctx context.Context, message, callerType string, caller *models.CallerContext, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(callerType, caller),
	})
	for _, h := range history {
		if h.Role != openai.ChatMessageRoleUser && h.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   500,
		Temperature: 0.7,
	})
	o.metrics.RecordExternalCall("openai", err, start)
	if err != nil {
		o.logger.Error().Err(err).Str("caller_type", callerType).Msg("chat completion failed, using fallback")
		return Fallback(callerType), err
	}
	if len(resp.Choices) == 0 {
		return Fallback(callerType), fmt.Errorf("chat: empty completion")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return Fallback(callerType), fmt.Errorf("chat: blank completion")
	}
	return out, nil
}

// Static always returns the per-caller-type fallback. It stands in for
// the model in credential-free runs and tests.
type Static struct{}

func (Static) Respond(_ context.Context, _ string, callerType string, _ *models.CallerContext, _ []Message) (string, error) {
	return Fallback(callerType), nil
}
