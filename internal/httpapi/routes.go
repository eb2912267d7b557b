package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepdash/battle-backend/internal/ws"
)

func SetupRoutes(api *API) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/battles/create", api.CreateBattle)
		r.Get("/battles", api.ListBattles)
		r.Get("/battles/{battleID}", api.GetBattle)
		r.Post("/battles/{battleID}/join", api.JoinBattle)
		r.Post("/battles/{battleID}/submit", api.Submit)
	})
	r.Get("/ws", ws.Handler(api.Registry, api.Identity, api.Log))
	r.Get("/healthz", Healthz)
	return r
}
