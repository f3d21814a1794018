// Package media defines the contract with the real-time room platform
// that carries audio/video and issues join credentials.
package media

import "context"

// Permissions are the grants attached to a join credential.
type Permissions struct {
	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// ParticipantPermissions is the default grant set for a conversation
// participant.
var ParticipantPermissions = Permissions{
	CanPublish:     true,
	CanSubscribe:   true,
	CanPublishData: true,
}

// Platform is the room platform the core orchestrates against. The
// core never assumes more of CreateRoom than "subsequent credential
// issuance for that room name succeeds".
type Platform interface {
	CreateRoom(ctx context.Context, name string) error
	IssueCredential(ctx context.Context, room, identity string, perms Permissions) (string, error)
	Disconnect(ctx context.Context, room, identity string) error
	ListParticipants(ctx context.Context, room string) ([]string, error)
	DeleteRoom(ctx context.Context, name string) error
}
