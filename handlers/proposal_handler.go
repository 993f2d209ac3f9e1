package handlers

import (
	"net/http"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProposalHandler lida com a leitura e o encerramento de propostas. Criar e votar são ações
// assinadas e passam pelo ActionHandler.
type ProposalHandler struct {
	Service *services.Orchestrator
	logger  *zap.Logger
}

func NewProposalHandler(s *services.Orchestrator, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{Service: s, logger: logger}
}

// ListProposals lista as propostas de um ativo.
// GET /assets/{id}/proposals
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.Service.Proposals(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// GET /proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Proposal(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Finalize apura a votação depois do prazo.
// POST /proposals/{id}/finalize
func (h *ProposalHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// MarkExecuted registra a execução de uma proposta aprovada que não é de venda.
// POST /proposals/{id}/executed
func (h *ProposalHandler) MarkExecuted(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.MarkExecuted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RecordResolution anexa o CID da ata gerada para uma proposta encerrada.
// POST /proposals/{id}/resolution
func (h *ProposalHandler) RecordResolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CID string `json:"cid"`
	}
	if err := decode(r, &req, apperrors.ErrInvalidSpec); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.Service.RecordResolution(r.Context(), chi.URLParam(r, "id"), req.CID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
