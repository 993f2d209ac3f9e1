package apperrors

import "net/http"

// HTTPStatus traduz um erro para o status HTTP correspondente.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConnectionTimeout, CodeSigningTimeout, CodeSubmitTimeout:
		return http.StatusGatewayTimeout
	}
	switch ClassOf(err) {
	case ClassValidation, ClassProtocol:
		return http.StatusBadRequest
	case ClassStateConflict:
		return http.StatusConflict
	case ClassExternalRejection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
