package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prepdash/battle-backend/internal/battle"
	"github.com/prepdash/battle-backend/internal/executor"
	"github.com/prepdash/battle-backend/internal/identity"
	"github.com/prepdash/battle-backend/internal/problem"
	"github.com/prepdash/battle-backend/internal/registry"
	"github.com/prepdash/battle-backend/internal/types"
)

type API struct {
	Registry *registry.Registry
	Identity identity.Resolver
	Log      *zap.Logger
}

type createBattleRequest struct {
	ProblemID string `json:"problem_id"`
	Capacity  int    `json:"capacity"`
}

func (a *API) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	if req.ProblemID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "problem_id is required")
		return
	}

	id, err := a.Registry.Create(r.Context(), req.ProblemID, req.Capacity)
	if err != nil {
		a.writeBattleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"battle_id": id})
}

func (a *API) ListBattles(w http.ResponseWriter, r *http.Request) {
	filter := battle.State(r.URL.Query().Get("status"))
	summaries, err := a.Registry.List(r.Context(), filter)
	if err != nil {
		a.writeBattleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) GetBattle(w http.ResponseWriter, r *http.Request) {
	session, err := a.Registry.Get(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		a.writeBattleError(w, err)
		return
	}
	view, err := session.View(r.Context())
	if err != nil {
		a.writeBattleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SnapshotFromView(view))
}

type joinBattleRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (a *API) JoinBattle(w http.ResponseWriter, r *http.Request) {
	var req joinBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	ident, err := a.Identity.Resolve(r.Context(), req.ParticipantID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "unknown participant")
		return
	}

	if err := a.Registry.Join(r.Context(), chi.URLParam(r, "battleID"), ident.UserID); err != nil {
		a.writeBattleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "joined battle"})
}

type submitRequest struct {
	ParticipantID string `json:"participant_id"`
	Code          string `json:"code"`
	Language      string `json:"language"`
}

// Submit evaluates synchronously: the response carries the verdict, while
// the submission_verdict event fans out to bound connections.
func (a *API) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid json")
		return
	}
	ident, err := a.Identity.Resolve(r.Context(), req.ParticipantID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "unknown participant")
		return
	}

	session, err := a.Registry.Get(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		a.writeBattleError(w, err)
		return
	}

	verdict, err := session.Submit(r.Context(), ident.UserID, req.Language, []byte(req.Code))
	if err != nil {
		a.writeBattleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// writeBattleError maps the admission and validation taxonomy onto HTTP.
// Admission errors carry a stable code so clients can decide to retry a
// different battle.
func (a *API) writeBattleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrBattleNotFound), errors.Is(err, problem.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, battle.ErrBattleFull):
		writeError(w, http.StatusConflict, "Full", err.Error())
	case errors.Is(err, battle.ErrBattleAlreadyStarted):
		writeError(w, http.StatusConflict, "AlreadyStarted", err.Error())
	case errors.Is(err, battle.ErrBattleNotStarted):
		writeError(w, http.StatusConflict, "NotStarted", err.Error())
	case errors.Is(err, battle.ErrBattleOver):
		writeError(w, http.StatusConflict, "BattleOver", err.Error())
	case errors.Is(err, battle.ErrEvaluationInFlight):
		writeError(w, http.StatusConflict, "EvaluationInFlight", err.Error())
	case errors.Is(err, battle.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "NotParticipant", err.Error())
	case errors.Is(err, battle.ErrLanguageNotAllowed),
		errors.Is(err, executor.ErrUnsupportedLanguage),
		errors.Is(err, executor.ErrPayloadTooLarge),
		errors.Is(err, registry.ErrBadCapacity):
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
	default:
		a.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
