package battle

import "github.com/prepdash/battle-backend/internal/judge"

type EventType string

const (
	EvtParticipantJoined       EventType = "participant_joined"
	EvtParticipantLeft         EventType = "participant_left"
	EvtParticipantDisconnected EventType = "participant_disconnected"
	EvtParticipantReconnected  EventType = "participant_reconnected"
	EvtBattleStarted           EventType = "battle_started"
	EvtSubmissionVerdict       EventType = "submission_verdict"
	EvtBattleFinished          EventType = "battle_finished"
	EvtBattleAbandoned         EventType = "battle_abandoned"
)

// Event is one session state transition, fanned out to every bound
// connection. Seq increases by one per event within a battle, so
// subscribers can assert ordering.
type Event struct {
	Type          EventType      `json:"type"`
	BattleID      string         `json:"battle_id"`
	Seq           int            `json:"seq"`
	ParticipantID string         `json:"participant_id,omitempty"`
	Verdict       *judge.Verdict `json:"verdict,omitempty"`
	WinnerID      string         `json:"winner_id,omitempty"`
}
