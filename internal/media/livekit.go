package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"warm-transfer-service/internal/observability/metrics"
)

// LiveKit talks to a LiveKit-compatible server: join credentials are
// HS256 JWTs carrying video grants, room administration goes through
// the Twirp-style RoomService HTTP endpoints.
type LiveKit struct {
	baseURL   string
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	http      *http.Client
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewLiveKit creates a LiveKit platform client. url is the server's
// HTTP endpoint (ws/wss schemes are rewritten).
func NewLiveKit(url, apiKey, apiSecret string, tokenTTL time.Duration, logger zerolog.Logger) *LiveKit {
	url = strings.TrimSuffix(url, "/")
	url = strings.Replace(url, "wss://", "https://", 1)
	url = strings.Replace(url, "ws://", "http://", 1)

	return &LiveKit{
		baseURL:   url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		tokenTTL:  tokenTTL,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With().Str("component", "media").Logger(),
		metrics:   metrics.DefaultMetrics,
	}
}

// IssueCredential mints a join token for identity in room.
func (l *LiveKit) IssueCredential(_ context.Context, room, identity string, perms Permissions) (string, error) {
	if l.apiKey == "" || l.apiSecret == "" {
		return "", fmt.Errorf("media: api key and secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": l.apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(l.tokenTTL).Unix(),
		"video": map[string]any{
			"room":           room,
			"roomJoin":       true,
			"canPublish":     perms.CanPublish,
			"canSubscribe":   perms.CanSubscribe,
			"canPublishData": perms.CanPublishData,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.apiSecret))
	if err != nil {
		return "", fmt.Errorf("media: sign credential: %w", err)
	}

	l.logger.Debug().Str("room", room).Str("identity", identity).Msg("Issued room credential")
	return token, nil
}

// CreateRoom creates the room on the server. Rooms also auto-create on
// first join, so a failure here is surfaced but callers may degrade.
func (l *LiveKit) CreateRoom(ctx context.Context, name string) error {
	var out json.RawMessage
	return l.call(ctx, "CreateRoom", map[string]any{"name": name}, &out)
}

// Disconnect removes identity from room.
func (l *LiveKit) Disconnect(ctx context.Context, room, identity string) error {
	var out json.RawMessage
	return l.call(ctx, "RemoveParticipant", map[string]any{"room": room, "identity": identity}, &out)
}

// ListParticipants returns the identities currently in room.
func (l *LiveKit) ListParticipants(ctx context.Context, room string) ([]string, error) {
	var out struct {
		Participants []struct {
			Identity string `json:"identity"`
		} `json:"participants"`
	}
	if err := l.call(ctx, "ListParticipants", map[string]any{"room": room}, &out); err != nil {
		return nil, err
	}

	identities := make([]string, 0, len(out.Participants))
	for _, p := range out.Participants {
		identities = append(identities, p.Identity)
	}
	return identities, nil
}

// DeleteRoom deletes room, disconnecting everyone still in it.
func (l *LiveKit) DeleteRoom(ctx context.Context, name string) error {
	var out json.RawMessage
	return l.call(ctx, "DeleteRoom", map[string]any{"room": name}, &out)
}

// call POSTs one RoomService RPC with an admin-granted token.
func (l *LiveKit) call(ctx context.Context, method string, in any, out any) error {
	start := time.Now()
	err := l.doCall(ctx, method, in, out)
	l.metrics.RecordExternalCall("livekit", err, start)
	if err != nil {
		l.logger.Error().Err(err).Str("method", method).Msg("Room service call failed")
	}
	return err
}

func (l *LiveKit) doCall(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("media: marshal %s request: %w", method, err)
	}

	url := l.baseURL + "/twirp/livekit.RoomService/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("media: build %s request: %w", method, err)
	}

	admin, err := l.adminToken()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("media: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("media: %s: status %d: %s", method, resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// adminToken mints a short-lived token with room admin grants.
func (l *LiveKit) adminToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": l.apiKey,
		"nbf": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"video": map[string]any{
			"roomCreate": true,
			"roomAdmin":  true,
			"roomList":   true,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.apiSecret))
}
