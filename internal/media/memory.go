package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Platform for development runs and tests. It
// tracks rooms and participants and issues opaque random tokens.
type Memory struct {
	mu           sync.Mutex
	rooms        map[string]map[string]bool
	issuedTokens map[string]string // token -> room/identity
}

// NewMemory creates an empty in-memory platform.
func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]map[string]bool),
		issuedTokens: make(map[string]string),
	}
}

// CreateRoom registers room. Idempotent.
func (m *Memory) CreateRoom(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[name]; !ok {
		m.rooms[name] = make(map[string]bool)
	}
	return nil
}

// IssueCredential returns an opaque token and records identity as a
// participant. Rooms auto-create, mirroring the real platform.
func (m *Memory) IssueCredential(_ context.Context, room, identity string, _ Permissions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(map[string]bool)
	}
	m.rooms[room][identity] = true

	token := uuid.NewString()
	m.issuedTokens[token] = room + "/" + identity
	return token, nil
}

// Disconnect removes identity from room.
func (m *Memory) Disconnect(_ context.Context, room, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	participants, ok := m.rooms[room]
	if !ok {
		return fmt.Errorf("media: room %s not found", room)
	}
	delete(participants, identity)
	return nil
}

// ListParticipants returns identities currently in room.
func (m *Memory) ListParticipants(_ context.Context, room string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participants, ok := m.rooms[room]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(participants))
	for id := range participants {
		out = append(out, id)
	}
	return out, nil
}

// DeleteRoom removes room and all its participants.
func (m *Memory) DeleteRoom(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
	return nil
}
