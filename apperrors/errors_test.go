package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ferreirogomes/cotas/apperrors"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := apperrors.Newf(apperrors.ErrOversold, "ativo %s: restam %d unidades", "a1", 3)

	assert.True(t, errors.Is(err, apperrors.ErrOversold))
	assert.False(t, errors.Is(err, apperrors.ErrAlreadyVoted))
	assert.Contains(t, err.Error(), "restam 3")
}

func TestClassSurvivesWrapping(t *testing.T) {
	cause := errors.New("socket fechado")
	err := fmt.Errorf("falha ao assinar: %w", apperrors.Wrap(apperrors.ErrSigningRejected, cause))

	assert.Equal(t, apperrors.ClassExternalRejection, apperrors.ClassOf(err))
	assert.Equal(t, apperrors.CodeSigningRejected, apperrors.CodeOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, apperrors.Retryable(err))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, apperrors.ClassInternal, apperrors.ClassOf(err))
	assert.Equal(t, apperrors.CodeUnknown, apperrors.CodeOf(err))
	assert.False(t, apperrors.Retryable(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		apperrors.ErrInvalidSpec:       http.StatusBadRequest,
		apperrors.ErrNotFound:          http.StatusNotFound,
		apperrors.ErrOversold:          http.StatusConflict,
		apperrors.ErrSigningRejected:   http.StatusBadGateway,
		apperrors.ErrSigningTimeout:    http.StatusGatewayTimeout,
		apperrors.ErrMalformedEnvelope: http.StatusBadRequest,
		errors.New("x"):                http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, apperrors.HTTPStatus(err), err.Error())
	}
}
