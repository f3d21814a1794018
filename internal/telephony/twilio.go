package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"warm-transfer-service/internal/observability/metrics"
)

// ErrNotConfigured is returned when Twilio credentials are missing.
var ErrNotConfigured = errors.New("telephony: twilio credentials not configured")

// Twilio is the production Gateway backed by the Twilio REST API.
type Twilio struct {
	client     *twilio.RestClient
	fromNumber string
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// Config carries the Twilio account settings.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// NewTwilio builds the Twilio-backed gateway.
func NewTwilio(cfg Config, logger zerolog.Logger) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrNotConfigured
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Twilio{
		client:     client,
		fromNumber: cfg.FromNumber,
		logger:     logger.With().Str("component", "telephony").Logger(),
		metrics:    metrics.DefaultMetrics,
	}, nil
}

// PlaceCall dials an outbound call and hands the answered leg to the
// voice webhook at callbackURL.
func (t *Twilio) PlaceCall(ctx context.Context, phone, callbackURL, statusCallbackURL string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(phone)
	params.SetFrom(t.fromNumber)
	params.SetUrl(callbackURL)
	params.SetMethod("POST")
	if statusCallbackURL != "" {
		params.SetStatusCallback(statusCallbackURL)
		params.SetStatusCallbackMethod("POST")
	}

	start := time.Now()
	call, err := t.client.Api.CreateCall(params)
	t.metrics.RecordExternalCall("twilio", err, start)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("telephony: create call returned no sid")
	}
	t.logger.Info().Str("sid", *call.Sid).Str("to", phone).Msg("outbound call placed")
	return *call.Sid, nil
}

// CallStatus fetches the status of a call by SID. Lookup failures are
// reported as "unknown" with the error.
func (t *Twilio) CallStatus(ctx context.Context, sid string) (string, error) {
	start := time.Now()
	call, err := t.client.Api.FetchCall(sid, &twilioapi.FetchCallParams{})
	t.metrics.RecordExternalCall("twilio", err, start)
	if err != nil {
		return "unknown", fmt.Errorf("telephony: fetch call %s: %w", sid, err)
	}
	if call.Status == nil {
		return "unknown", nil
	}
	return *call.Status, nil
}

// VoiceResponse renders the TwiML that connects an answered call to a
// conference room, optionally reading the hand-off summary first.
func VoiceResponse(room, summary string) (string, error) {
	var elements []twiml.Element
	if summary != "" {
		elements = append(elements, &twiml.VoiceSay{Message: summary})
	}
	elements = append(elements, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{&twiml.VoiceRoom{Name: room}},
	})
	doc, err := twiml.Voice(elements)
	if err != nil {
		return "", fmt.Errorf("telephony: render twiml: %w", err)
	}
	return doc, nil
}
