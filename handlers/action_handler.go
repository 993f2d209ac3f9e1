package handlers

import (
	"net/http"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/services"

	"go.uber.org/zap"
)

// ActionHandler conduz as ações assinadas: comprar, resgatar, depositar, propor, votar e vender.
type ActionHandler struct {
	Service *services.Orchestrator
	logger  *zap.Logger
}

func NewActionHandler(s *services.Orchestrator, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{Service: s, logger: logger}
}

// Prepare monta o envelope canônico para a carteira do usuário assinar.
// POST /actions/prepare
func (h *ActionHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	var intent models.Intent
	if err := decode(r, &intent, apperrors.ErrInvalidIntent); err != nil {
		writeError(w, h.logger, err)
		return
	}

	prepared, err := h.Service.Prepare(r.Context(), intent)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, prepared)
}

// CompleteRequest traz a intenção de volta junto com o envelope assinado pela carteira.
type CompleteRequest struct {
	Intent models.Intent         `json:"intent"`
	Signed models.SignedEnvelope `json:"signed"` // payload e signature em base64
}

// Complete submete o envelope assinado e aplica a ação no ledger.
// POST /actions/complete
func (h *ActionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decode(r, &req, apperrors.ErrInvalidIntent); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.Service.Complete(r.Context(), req.Intent, req.Signed)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Perform executa a ação com o assinante configurado no servidor.
// POST /actions/perform
func (h *ActionHandler) Perform(w http.ResponseWriter, r *http.Request) {
	var intent models.Intent
	if err := decode(r, &intent, apperrors.ErrInvalidIntent); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.Service.Perform(r.Context(), intent)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
