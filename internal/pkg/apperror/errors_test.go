package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeNotFound:        http.StatusNotFound,
		ErrCodeUnauthorized:    http.StatusUnauthorized,
		ErrCodeForbidden:       http.StatusForbidden,
		ErrCodeValidation:      http.StatusBadRequest,
		ErrCodeConflict:        http.StatusConflict,
		ErrCodePaymentRequired: http.StatusPaymentRequired,
		ErrCodeUnavailable:     http.StatusServiceUnavailable,
		ErrCodeInternal:        http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus, string(code))
	}
}

func TestAs_FindsWrapped(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("service: %w", Wrap(cause, ErrCodeConflict, "конфликт"))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "конфликт", appErr.Message)
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))
}
