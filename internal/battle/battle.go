package battle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepdash/battle-backend/internal/judge"
	"github.com/prepdash/battle-backend/internal/problem"
)

type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
	StateAbandoned  State = "abandoned"
)

func (s State) Terminal() bool { return s == StateFinished || s == StateAbandoned }

type Readiness string

const (
	ReadinessJoined       Readiness = "joined"
	ReadinessSubmitted    Readiness = "submitted"
	ReadinessDisconnected Readiness = "disconnected"
)

var (
	ErrBattleFull           = errors.New("battle full")
	ErrBattleAlreadyStarted = errors.New("battle already started")
	ErrBattleNotStarted     = errors.New("battle not started")
	ErrBattleOver           = errors.New("battle over")
	ErrNotParticipant       = errors.New("not a participant of this battle")
	ErrEvaluationInFlight   = errors.New("evaluation already in flight")
	ErrLanguageNotAllowed   = errors.New("language not supported by this problem")
	ErrSessionClosed        = errors.New("battle session closed")
	ErrSessionCorrupt       = errors.New("battle session corrupt")
)

type participant struct {
	userID    string
	readiness Readiness
	joinedAt  time.Time
	// joinSeq is the admission order, stable across forfeits. Roster
	// indices shift when someone leaves, so they cannot break ties.
	joinSeq int
}

// Evaluator is the slice of the judge a session drives. *judge.Judge
// satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, sub judge.Submission, prob problem.Problem) (judge.Verdict, error)
}

// Outcome is what survives a battle: just enough to declare the result.
type Outcome struct {
	BattleID     string
	ProblemID    string
	Status       State
	WinnerID     string
	Participants int
	CreatedAt    time.Time
	StartedAt    time.Time
	EndedAt      time.Time
}

// Archiver persists terminal outcomes. May be nil.
type Archiver interface {
	Record(ctx context.Context, o Outcome) error
}

type Config struct {
	EvalTimeout time.Duration
	Archiver    Archiver
	Logger      *zap.Logger
}

// Session is one battle: fixed problem, fixed capacity, a single goroutine
// owning all mutable state. Slow work (the judge) runs off the loop and
// re-enters as a verdictMsg, so state reads never stall behind an
// evaluation.
type Session struct {
	id        string
	problem   problem.Problem
	capacity  int
	evaluator Evaluator

	inbox    chan msg
	roster   []*participant
	state    State
	winnerID string
	standing map[string]judge.Verdict
	inflight map[string]bool
	subs     map[string]chan Event
	seq      int
	nextJoin int
	poisoned bool

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	evalTimeout time.Duration
	archiver    Archiver
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSession(parent context.Context, id string, prob problem.Problem, capacity int, ev Evaluator, cfg Config) *Session {
	if capacity < 2 {
		capacity = 2
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:          id,
		problem:     prob,
		capacity:    capacity,
		evaluator:   ev,
		inbox:       make(chan msg, 64),
		state:       StateWaiting,
		standing:    make(map[string]judge.Verdict),
		inflight:    make(map[string]bool),
		subs:        make(map[string]chan Event),
		createdAt:   time.Now(),
		evalTimeout: cfg.EvalTimeout,
		archiver:    cfg.Archiver,
		log:         log.With(zap.String("battle_id", id)),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Join admits a participant. Capacity check and append happen on the loop,
// so concurrent joins can never overshoot capacity.
func (s *Session) Join(ctx context.Context, userID string) error {
	reply := make(chan error, 1)
	return s.roundTrip(ctx, joinMsg{userID: userID, reply: reply}, reply)
}

// Leave is an explicit forfeit: the participant is removed from the
// roster. The last active participant standing wins.
func (s *Session) Leave(ctx context.Context, userID string) error {
	reply := make(chan error, 1)
	return s.roundTrip(ctx, leaveMsg{userID: userID, reply: reply}, reply)
}

// Bind attaches a connection's outbox to this battle. A participant
// re-binding after a disconnect is restored to Joined.
func (s *Session) Bind(ctx context.Context, clientID, userID string, outbox chan Event) error {
	reply := make(chan error, 1)
	return s.roundTrip(ctx, bindMsg{clientID: clientID, userID: userID, outbox: outbox, reply: reply}, reply)
}

// Unbind detaches a connection and degrades its participant to
// Disconnected. Required side effect of transport loss, so it only gives
// up when the session itself is gone.
func (s *Session) Unbind(clientID, userID string) {
	select {
	case s.inbox <- unbindMsg{clientID: clientID, userID: userID}:
	case <-s.ctx.Done():
	}
}

// Submit evaluates code for userID and blocks until the verdict (or a
// synchronous rejection). The session loop is free the whole time.
func (s *Session) Submit(ctx context.Context, userID, language string, code []byte) (judge.Verdict, error) {
	reply := make(chan SubmitResult, 1)
	if err := s.send(ctx, submitMsg{userID: userID, language: language, code: code, reply: reply}); err != nil {
		return judge.Verdict{}, err
	}
	select {
	case res := <-reply:
		return res.Verdict, res.Err
	case <-ctx.Done():
		return judge.Verdict{}, ctx.Err()
	case <-s.ctx.Done():
		return judge.Verdict{}, ErrSessionClosed
	}
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, viewMsg{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.ctx.Done():
		return View{}, ErrSessionClosed
	}
}

func (s *Session) Close() {
	select {
	case s.inbox <- shutdownMsg{}:
	case <-s.ctx.Done():
	}
}

func (s *Session) send(ctx context.Context, m msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) roundTrip(ctx context.Context, m msg, reply chan error) error {
	if err := s.send(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case m := <-s.inbox:
			if s.dispatch(m) {
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) dispatch(m msg) (stop bool) {
	switch msg := m.(type) {
	case joinMsg:
		msg.reply <- s.handleJoin(msg.userID)
	case leaveMsg:
		msg.reply <- s.handleLeave(msg.userID)
	case bindMsg:
		s.handleBind(msg)
		msg.reply <- nil
	case unbindMsg:
		s.handleUnbind(msg)
	case submitMsg:
		s.handleSubmit(msg)
	case verdictMsg:
		return s.handleVerdict(msg)
	case viewMsg:
		msg.reply <- s.view()
	case shutdownMsg:
		return true
	}
	return false
}

func (s *Session) handleJoin(userID string) error {
	if s.poisoned {
		return ErrSessionCorrupt
	}
	if s.find(userID) != nil {
		return nil // rejoin is a no-op
	}
	if len(s.roster) >= s.capacity {
		return ErrBattleFull
	}
	if s.state != StateWaiting {
		return ErrBattleAlreadyStarted
	}

	s.roster = append(s.roster, &participant{
		userID:    userID,
		readiness: ReadinessJoined,
		joinedAt:  time.Now(),
		joinSeq:   s.nextJoin,
	})
	s.nextJoin++
	s.broadcast(Event{Type: EvtParticipantJoined, ParticipantID: userID})

	if len(s.roster) == s.capacity {
		s.state = StateInProgress
		s.startedAt = time.Now()
		s.broadcast(Event{Type: EvtBattleStarted})
		s.log.Info("battle started", zap.Int("capacity", s.capacity))
	}
	return nil
}

func (s *Session) handleLeave(userID string) error {
	idx := s.indexOf(userID)
	if idx < 0 {
		return ErrNotParticipant
	}
	if s.state.Terminal() {
		return nil
	}

	s.roster = append(s.roster[:idx], s.roster[idx+1:]...)
	s.broadcast(Event{Type: EvtParticipantLeft, ParticipantID: userID})

	if s.state != StateInProgress {
		return nil
	}
	active := s.activeCount()
	switch {
	case len(s.roster) == 0 || active == 0:
		s.abandon()
	case len(s.roster) == 1 && active == 1:
		// Everyone else forfeited.
		s.finish(winnerCandidate{userID: s.roster[0].userID})
	}
	return nil
}

func (s *Session) handleBind(m bindMsg) {
	s.subs[m.clientID] = m.outbox
	if p := s.find(m.userID); p != nil && p.readiness == ReadinessDisconnected {
		p.readiness = ReadinessJoined
		s.broadcast(Event{Type: EvtParticipantReconnected, ParticipantID: m.userID})
	}
}

func (s *Session) handleUnbind(m unbindMsg) {
	if ch, ok := s.subs[m.clientID]; ok {
		close(ch)
		delete(s.subs, m.clientID)
	}

	p := s.find(m.userID)
	if p == nil || p.readiness == ReadinessDisconnected || s.state.Terminal() {
		return
	}
	p.readiness = ReadinessDisconnected
	s.broadcast(Event{Type: EvtParticipantDisconnected, ParticipantID: m.userID})

	if s.state == StateInProgress && s.activeCount() == 0 {
		s.abandon()
	}
}

func (s *Session) handleSubmit(m submitMsg) {
	if s.poisoned {
		replyTo(m.reply, SubmitResult{Err: ErrSessionCorrupt})
		return
	}
	switch {
	case s.state == StateWaiting:
		replyTo(m.reply, SubmitResult{Err: ErrBattleNotStarted})
		return
	case s.state.Terminal():
		replyTo(m.reply, SubmitResult{Err: ErrBattleOver})
		return
	}
	idx := s.indexOf(m.userID)
	if idx < 0 {
		replyTo(m.reply, SubmitResult{Err: ErrNotParticipant})
		return
	}
	if s.inflight[m.userID] {
		replyTo(m.reply, SubmitResult{Err: ErrEvaluationInFlight})
		return
	}
	if !s.problem.SupportsLanguage(m.language) {
		replyTo(m.reply, SubmitResult{Err: ErrLanguageNotAllowed})
		return
	}

	sub := judge.Submission{
		ID:            uuid.NewString(),
		ParticipantID: m.userID,
		BattleID:      s.id,
		Code:          m.code,
		Language:      m.language,
		SubmittedAt:   time.Now(),
	}
	s.inflight[m.userID] = true
	s.roster[idx].readiness = ReadinessSubmitted

	go s.evaluate(sub, s.roster[idx].joinSeq, m.reply)
}

// evaluate runs on its own goroutine; the verdict re-enters the loop as a
// message. A session that terminates meanwhile simply never awaits it.
func (s *Session) evaluate(sub judge.Submission, joinSeq int, reply chan SubmitResult) {
	ctx := s.ctx
	if s.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.evalTimeout)
		defer cancel()
	}

	v, err := s.evaluator.Evaluate(ctx, sub, s.problem)

	select {
	case s.inbox <- verdictMsg{sub: sub, verdict: v, err: err, joinSeq: joinSeq, reply: reply}:
	case <-s.ctx.Done():
		replyTo(reply, SubmitResult{Err: ErrSessionClosed})
	}
}

func (s *Session) handleVerdict(m verdictMsg) (stop bool) {
	s.recordVerdict(m)
	if m.err != nil || !m.verdict.Accepted() || s.state != StateInProgress {
		return false
	}
	// A forfeited participant's in-flight verdict still gets recorded,
	// but cannot win.
	if s.indexOf(m.sub.ParticipantID) < 0 {
		return false
	}

	// Accepted while in progress: the battle is over. Drain any verdicts
	// already queued so simultaneous accepts tie-break on submission
	// time rather than message arrival order.
	cands := []winnerCandidate{{userID: m.sub.ParticipantID, submittedAt: m.sub.SubmittedAt, joinSeq: m.joinSeq}}
	var deferred []msg
	for draining := true; draining; {
		select {
		case other := <-s.inbox:
			if vm, ok := other.(verdictMsg); ok {
				s.recordVerdict(vm)
				if vm.err == nil && vm.verdict.Accepted() && s.indexOf(vm.sub.ParticipantID) >= 0 {
					cands = append(cands, winnerCandidate{userID: vm.sub.ParticipantID, submittedAt: vm.sub.SubmittedAt, joinSeq: vm.joinSeq})
				}
			} else {
				deferred = append(deferred, other)
			}
		default:
			draining = false
		}
	}

	s.finish(pickWinner(cands))

	for _, d := range deferred {
		if s.dispatch(d) {
			return true
		}
	}
	return false
}

// recordVerdict applies bookkeeping shared by live and late verdicts:
// clears the in-flight slot, replaces the participant's standing verdict,
// answers the submitter, and fans the verdict out. It never decides a
// winner.
func (s *Session) recordVerdict(m verdictMsg) {
	delete(s.inflight, m.sub.ParticipantID)

	if m.err != nil {
		s.log.Warn("evaluation failed",
			zap.String("participant_id", m.sub.ParticipantID),
			zap.Error(m.err),
		)
		replyTo(m.reply, SubmitResult{Err: m.err})
		return
	}

	s.standing[m.sub.ParticipantID] = m.verdict
	replyTo(m.reply, SubmitResult{Verdict: m.verdict})
	v := m.verdict
	s.broadcast(Event{Type: EvtSubmissionVerdict, ParticipantID: m.sub.ParticipantID, Verdict: &v})
}

func (s *Session) finish(w winnerCandidate) {
	if s.state != StateInProgress {
		return
	}
	if s.winnerID != "" {
		// At most one winner per session. A second write is a
		// programming error: poison this session, leave others alone.
		s.log.Error("second winner recorded, poisoning session",
			zap.String("winner_id", s.winnerID),
			zap.String("attempted", w.userID),
		)
		s.poisoned = true
		return
	}

	s.winnerID = w.userID
	s.state = StateFinished
	s.endedAt = time.Now()
	s.broadcast(Event{Type: EvtBattleFinished, WinnerID: w.userID})
	s.log.Info("battle finished", zap.String("winner_id", w.userID))
	s.archive()
}

func (s *Session) abandon() {
	if s.state.Terminal() {
		return
	}
	s.state = StateAbandoned
	s.endedAt = time.Now()
	s.broadcast(Event{Type: EvtBattleAbandoned})
	s.log.Info("battle abandoned")
	s.archive()
}

func (s *Session) archive() {
	if s.archiver == nil {
		return
	}
	o := Outcome{
		BattleID:     s.id,
		ProblemID:    s.problem.ID,
		Status:       s.state,
		WinnerID:     s.winnerID,
		Participants: len(s.roster),
		CreatedAt:    s.createdAt,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.archiver.Record(ctx, o); err != nil {
			s.log.Warn("archive battle outcome", zap.Error(err))
		}
	}()
}

func (s *Session) view() View {
	v := View{
		ID:         s.id,
		ProblemID:  s.problem.ID,
		Capacity:   s.capacity,
		State:      s.state,
		WinnerID:   s.winnerID,
		NumClients: len(s.subs),
		CreatedAt:  s.createdAt,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
	}
	for _, p := range s.roster {
		pv := ParticipantView{UserID: p.userID, Readiness: p.readiness}
		if verdict, ok := s.standing[p.userID]; ok {
			vc := verdict
			pv.Verdict = &vc
		}
		v.Roster = append(v.Roster, pv)
	}
	return v
}

func (s *Session) broadcast(e Event) {
	s.seq++
	e.Seq = s.seq
	e.BattleID = s.id
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow or dead subscriber: drop it rather than stall
			// the battle.
			close(ch)
			delete(s.subs, id)
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel()
}

func (s *Session) find(userID string) *participant {
	if i := s.indexOf(userID); i >= 0 {
		return s.roster[i]
	}
	return nil
}

func (s *Session) indexOf(userID string) int {
	for i, p := range s.roster {
		if p.userID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) activeCount() int {
	n := 0
	for _, p := range s.roster {
		if p.readiness != ReadinessDisconnected {
			n++
		}
	}
	return n
}

func replyTo(ch chan SubmitResult, r SubmitResult) {
	select {
	case ch <- r:
	default:
	}
}
