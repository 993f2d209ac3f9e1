package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ferreirogomes/cotas/apperrors"

	"go.uber.org/zap"
)

// errorResponse é o corpo de toda resposta de erro.
type errorResponse struct {
	Code  apperrors.Code `json:"code"`
	Error string         `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError traduz o erro de domínio em status e código. Erros internos não expõem detalhes.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	resp := errorResponse{Code: apperrors.CodeOf(err), Error: err.Error()}
	if status == http.StatusInternalServerError {
		logger.Error("erro interno na requisição", zap.Error(err))
		resp.Error = "erro interno"
	}
	writeJSON(w, status, resp)
}

// decode lê o corpo JSON; um corpo inválido vira o erro de validação base.
func decode(r *http.Request, v any, base *apperrors.Error) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(base, err)
	}
	return nil
}
