package handlers

import (
	"net/http"
	"strconv"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AssetHandler lida com requisições HTTP relacionadas a ativos.
type AssetHandler struct {
	Service *services.Orchestrator
	logger  *zap.Logger
}

// NewAssetHandler cria uma nova instância do handler de ativos.
func NewAssetHandler(s *services.Orchestrator, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{Service: s, logger: logger}
}

// CreateAsset lista um novo ativo, que começa pendente de verificação.
// POST /assets
func (h *AssetHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var spec models.AssetSpec
	if err := decode(r, &spec, apperrors.ErrInvalidSpec); err != nil {
		writeError(w, h.logger, err)
		return
	}

	asset, err := h.Service.ListAsset(r.Context(), spec)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// ListAssets devolve todos os ativos.
// GET /assets
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Assets())
}

// GetAssetByID obtém um ativo pelo ID.
// GET /assets/{id}
func (h *AssetHandler) GetAssetByID(w http.ResponseWriter, r *http.Request) {
	asset, err := h.Service.Asset(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// TransitionAsset move o ativo para o próximo estado.
// POST /assets/{id}/transition
func (h *AssetHandler) TransitionAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State models.AssetState `json:"state"`
	}
	if err := decode(r, &req, apperrors.ErrInvalidTransition); err != nil {
		writeError(w, h.logger, err)
		return
	}

	asset, err := h.Service.TransitionAsset(r.Context(), chi.URLParam(r, "id"), req.State)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// ApplyVerdict recebe o veredito do oráculo de verificação de documentos.
// POST /assets/{id}/verdict
func (h *AssetHandler) ApplyVerdict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verdict models.Verdict `json:"verdict"`
	}
	if err := decode(r, &req, apperrors.ErrInvalidTransition); err != nil {
		writeError(w, h.logger, err)
		return
	}

	asset, err := h.Service.ApplyVerdict(r.Context(), chi.URLParam(r, "id"), req.Verdict)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// GetQuote cota a compra de ?units= unidades.
// GET /assets/{id}/quote
func (h *AssetHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	units, err := strconv.ParseUint(r.URL.Query().Get("units"), 10, 64)
	if err != nil {
		writeError(w, h.logger, apperrors.Wrap(apperrors.ErrInvalidUnits, err))
		return
	}

	q, err := h.Service.Quote(chi.URLParam(r, "id"), units)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetIncome devolve o acumulado de renda do ativo.
// GET /assets/{id}/income
func (h *AssetHandler) GetIncome(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Service.Accrual(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// FlagMissedDeposit registra um depósito trimestral atrasado.
// POST /assets/{id}/income/flag-missed
func (h *AssetHandler) FlagMissedDeposit(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Service.FlagMissedDeposit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GetSettlement devolve a liquidação do ativo vendido.
// GET /assets/{id}/settlement
func (h *AssetHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, found := h.Service.Settlement(id)
	if !found {
		writeError(w, h.logger, apperrors.Newf(apperrors.ErrNotFound, "ativo %s não foi liquidado", id))
		return
	}
	writeJSON(w, http.StatusOK, s)
}
