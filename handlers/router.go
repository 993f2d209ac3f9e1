package handlers

import (
	"net/http"

	"github.com/ferreirogomes/cotas/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter monta as rotas HTTP sobre o orquestrador.
func NewRouter(o *services.Orchestrator, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	assetHandler := NewAssetHandler(o, logger)
	holderHandler := NewHolderHandler(o, logger)
	proposalHandler := NewProposalHandler(o, logger)
	actionHandler := NewActionHandler(o, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", assetHandler.CreateAsset)
		r.Get("/", assetHandler.ListAssets)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", assetHandler.GetAssetByID)
			r.Post("/transition", assetHandler.TransitionAsset)
			r.Post("/verdict", assetHandler.ApplyVerdict)
			r.Get("/quote", assetHandler.GetQuote)
			r.Get("/income", assetHandler.GetIncome)
			r.Post("/income/flag-missed", assetHandler.FlagMissedDeposit)
			r.Get("/settlement", assetHandler.GetSettlement)
			r.Get("/holdings", holderHandler.ListHoldings)
			r.Get("/holdings/{holder}", holderHandler.GetHolding)
			r.Get("/proposals", proposalHandler.ListProposals)
		})
	})

	r.Route("/proposals/{id}", func(r chi.Router) {
		r.Get("/", proposalHandler.GetProposal)
		r.Post("/finalize", proposalHandler.Finalize)
		r.Post("/executed", proposalHandler.MarkExecuted)
		r.Post("/resolution", proposalHandler.RecordResolution)
	})

	r.Route("/actions", func(r chi.Router) {
		r.Post("/prepare", actionHandler.Prepare)
		r.Post("/complete", actionHandler.Complete)
		r.Post("/perform", actionHandler.Perform)
	})

	return r
}
