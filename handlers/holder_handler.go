package handlers

import (
	"net/http"

	"github.com/ferreirogomes/cotas/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HolderHandler expõe as posições dos detentores.
type HolderHandler struct {
	Service *services.Orchestrator
	logger  *zap.Logger
}

func NewHolderHandler(s *services.Orchestrator, logger *zap.Logger) *HolderHandler {
	return &HolderHandler{Service: s, logger: logger}
}

// ListHoldings lista as posições de um ativo.
// GET /assets/{id}/holdings
func (h *HolderHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.Service.Holdings(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// GetHolding devolve unidades, renda disponível e participação de um detentor.
// GET /assets/{id}/holdings/{holder}
func (h *HolderHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Holding(chi.URLParam(r, "id"), chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
