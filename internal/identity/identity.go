package identity

import (
	"context"
	"errors"
)

var ErrUnknownParticipant = errors.New("unknown participant")

// Identity is an authenticated user as reported by the auth collaborator.
type Identity struct {
	UserID      string
	DisplayName string
}

// Resolver maps a participant id to an authenticated identity. The battle
// engine trusts the identity but never issues one.
type Resolver interface {
	Resolve(ctx context.Context, participantID string) (Identity, error)
}

// TrustingResolver accepts any non-empty participant id. It stands in for
// the auth service in standalone and test deployments.
type TrustingResolver struct{}

func (TrustingResolver) Resolve(_ context.Context, participantID string) (Identity, error) {
	if participantID == "" {
		return Identity{}, ErrUnknownParticipant
	}
	return Identity{UserID: participantID, DisplayName: participantID}, nil
}
