package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepdash/battle-backend/internal/battle"
	"github.com/prepdash/battle-backend/internal/problem"
)

var (
	ErrBattleNotFound = errors.New("battle not found")
	ErrBadCapacity    = errors.New("capacity must be at least 2")
)

// DefaultCapacity matches the client UI, which always shows "X / 2
// players".
const DefaultCapacity = 2

type registryMsg interface{ isRegistryMsg() }

type putMsg struct {
	id      string
	session *battle.Session
}

type getMsg struct {
	id    string
	reply chan *battle.Session
}

type snapshotMsg struct {
	reply chan []*battle.Session
}

type removeMsg struct {
	id string
}

type shutdownMsg struct{}

func (putMsg) isRegistryMsg()      {}
func (getMsg) isRegistryMsg()      {}
func (snapshotMsg) isRegistryMsg() {}
func (removeMsg) isRegistryMsg()   {}
func (shutdownMsg) isRegistryMsg() {}

// Summary is one row of a battle listing.
type Summary struct {
	BattleID   string       `json:"battle_id"`
	ProblemID  string       `json:"problem_id"`
	RosterSize int          `json:"roster_size"`
	Capacity   int          `json:"capacity"`
	Status     battle.State `json:"status"`
}

type Config struct {
	// How long finished/abandoned battles stay queryable.
	Retention     time.Duration
	SweepInterval time.Duration
	// Per-session evaluation bound, passed through to sessions.
	EvalTimeout time.Duration
}

type Deps struct {
	Problems  problem.Store
	Evaluator battle.Evaluator
	Archiver  battle.Archiver
	Logger    *zap.Logger
}

// Registry is the process-wide directory of battle sessions. Its loop
// guards only the id-to-session map; everything per-battle happens inside
// the session, so unrelated battles never serialize on each other.
type Registry struct {
	inbox    chan registryMsg
	sessions map[string]*battle.Session

	cfg  Config
	deps Deps
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, cfg Config, deps Deps) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan registryMsg, 64),
		sessions: make(map[string]*battle.Session),
		cfg:      cfg,
		deps:     deps,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	go r.janitor()
	return r
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case m := <-r.inbox:
			switch msg := m.(type) {
			case putMsg:
				r.sessions[msg.id] = msg.session
			case getMsg:
				msg.reply <- r.sessions[msg.id] // may be nil
			case snapshotMsg:
				all := make([]*battle.Session, 0, len(r.sessions))
				for _, s := range r.sessions {
					all = append(all, s)
				}
				msg.reply <- all
			case removeMsg:
				if s := r.sessions[msg.id]; s != nil {
					s.Close()
					delete(r.sessions, msg.id)
				}
			case shutdownMsg:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Registry) shutdown() {
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
	r.cancel()
}

// Create verifies the problem exists, then registers a fresh session in
// Waiting state. A real problem reference is always required.
func (r *Registry) Create(ctx context.Context, problemID string, capacity int) (string, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 2 {
		return "", ErrBadCapacity
	}
	prob, err := r.deps.Problems.Get(ctx, problemID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s := battle.NewSession(r.ctx, id, prob, capacity, r.deps.Evaluator, battle.Config{
		EvalTimeout: r.cfg.EvalTimeout,
		Archiver:    r.deps.Archiver,
		Logger:      r.log,
	})
	if err := r.send(ctx, putMsg{id: id, session: s}); err != nil {
		s.Close()
		return "", err
	}
	r.log.Info("battle created",
		zap.String("battle_id", id),
		zap.String("problem_id", problemID),
		zap.Int("capacity", capacity),
	)
	return id, nil
}

// Get returns the live session for id.
func (r *Registry) Get(ctx context.Context, id string) (*battle.Session, error) {
	reply := make(chan *battle.Session, 1)
	if err := r.send(ctx, getMsg{id: id, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		if s == nil {
			return nil, ErrBattleNotFound
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}
}

// Join admits a participant. Admission is atomic inside the session loop:
// concurrent joins on a full battle can never overshoot capacity.
func (r *Registry) Join(ctx context.Context, battleID, userID string) error {
	s, err := r.Get(ctx, battleID)
	if err != nil {
		return err
	}
	return s.Join(ctx, userID)
}

// List returns summaries of battles, newest state included, optionally
// filtered by status. The registry loop only hands out the session set;
// views are collected outside it.
func (r *Registry) List(ctx context.Context, filter battle.State) ([]Summary, error) {
	reply := make(chan []*battle.Session, 1)
	if err := r.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return nil, err
	}
	var all []*battle.Session
	select {
	case all = <-reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}

	summaries := make([]Summary, 0, len(all))
	for _, s := range all {
		v, err := s.View(ctx)
		if err != nil {
			continue // closed while listing
		}
		if filter != "" && v.State != filter {
			continue
		}
		summaries = append(summaries, Summary{
			BattleID:   v.ID,
			ProblemID:  v.ProblemID,
			RosterSize: len(v.Roster),
			Capacity:   v.Capacity,
			Status:     v.State,
		})
	}
	return summaries, nil
}

// Remove retires a session immediately.
func (r *Registry) Remove(id string) {
	select {
	case r.inbox <- removeMsg{id: id}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) Close() {
	select {
	case r.inbox <- shutdownMsg{}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) send(ctx context.Context, m registryMsg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// janitor evicts terminal sessions after the retention window, and
// Waiting sessions nobody is attached to — a lobby whose creator walked
// away would otherwise be listed forever. A session with live connections
// is never evicted, whatever its age.
func (r *Registry) janitor() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.SweepInterval)
	defer cancel()

	reply := make(chan []*battle.Session, 1)
	if err := r.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return
	}
	var all []*battle.Session
	select {
	case all = <-reply:
	case <-ctx.Done():
		return
	}

	cutoff := time.Now().Add(-r.cfg.Retention)
	for _, s := range all {
		v, err := s.View(ctx)
		if err != nil || v.NumClients > 0 {
			continue
		}
		switch {
		case v.State.Terminal() && v.EndedAt.Before(cutoff):
		case v.State == battle.StateWaiting && v.CreatedAt.Before(cutoff):
		default:
			continue
		}
		r.log.Info("evicting retired battle", zap.String("battle_id", v.ID))
		r.Remove(v.ID)
	}
}
