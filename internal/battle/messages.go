package battle

import (
	"time"

	"github.com/prepdash/battle-backend/internal/judge"
)

// Session messages. Everything that touches roster, state, or verdicts
// flows through the inbox and is handled by the session loop alone.
type msg interface{ isBattleMsg() }

type joinMsg struct {
	userID string
	reply  chan error
}

type leaveMsg struct {
	userID string
	reply  chan error
}

type bindMsg struct {
	clientID string
	userID   string
	outbox   chan Event
	reply    chan error
}

type unbindMsg struct {
	clientID string
	userID   string
}

type submitMsg struct {
	userID   string
	language string
	code     []byte
	reply    chan SubmitResult
}

// verdictMsg re-enters the loop from an evaluation goroutine.
type verdictMsg struct {
	sub     judge.Submission
	verdict judge.Verdict
	err     error
	joinSeq int
	reply   chan SubmitResult
}

type viewMsg struct {
	reply chan View
}

type shutdownMsg struct{}

func (joinMsg) isBattleMsg()     {}
func (leaveMsg) isBattleMsg()    {}
func (bindMsg) isBattleMsg()     {}
func (unbindMsg) isBattleMsg()   {}
func (submitMsg) isBattleMsg()   {}
func (verdictMsg) isBattleMsg()  {}
func (viewMsg) isBattleMsg()     {}
func (shutdownMsg) isBattleMsg() {}

type SubmitResult struct {
	Verdict judge.Verdict
	Err     error
}

// View reflects session internals without data races; used by the API,
// the registry janitor, and tests.
type View struct {
	ID         string
	ProblemID  string
	Capacity   int
	State      State
	WinnerID   string
	Roster     []ParticipantView
	NumClients int
	CreatedAt  time.Time
	StartedAt  time.Time
	EndedAt    time.Time
}

type ParticipantView struct {
	UserID    string
	Readiness Readiness
	Verdict   *judge.Verdict
}
