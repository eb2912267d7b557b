package types

import (
	"github.com/prepdash/battle-backend/internal/battle"
	"github.com/prepdash/battle-backend/internal/judge"
)

// Client -> Server over the battle channel.
type ClientMessage struct {
	Type          string `json:"type"` // "join_battle" | "leave_battle"
	BattleID      string `json:"battle_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
}

// Server -> Client: either a battle event, a state snapshot sent right
// after binding, or an error.
type ServerMessage struct {
	Type     string          `json:"type"` // "event" | "snapshot" | "error"
	Event    *battle.Event   `json:"event,omitempty"`
	Snapshot *BattleSnapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type BattleSnapshot struct {
	BattleID  string           `json:"battle_id"`
	ProblemID string           `json:"problem_id"`
	Status    battle.State     `json:"status"`
	Capacity  int              `json:"capacity"`
	WinnerID  string           `json:"winner_id,omitempty"`
	Players   []PlayerSnapshot `json:"players"`
}

type PlayerSnapshot struct {
	UserID    string           `json:"user_id"`
	Readiness battle.Readiness `json:"readiness"`
	Verdict   *judge.Verdict   `json:"verdict,omitempty"`
}

func SnapshotFromView(v battle.View) BattleSnapshot {
	snap := BattleSnapshot{
		BattleID:  v.ID,
		ProblemID: v.ProblemID,
		Status:    v.State,
		Capacity:  v.Capacity,
		WinnerID:  v.WinnerID,
	}
	for _, p := range v.Roster {
		snap.Players = append(snap.Players, PlayerSnapshot{
			UserID:    p.UserID,
			Readiness: p.Readiness,
			Verdict:   p.Verdict,
		})
	}
	return snap
}
