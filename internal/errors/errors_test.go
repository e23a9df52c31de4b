package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, CodeAlreadyExists.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, CodeInvalidSheet.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, CodeUnavailable.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Code("SOMETHING_ELSE").HTTPStatus())
}

func TestError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("loading: %w", NotFoundf("dataset %q not found", "conifers"))

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))
}

func TestError_Cause(t *testing.T) {
	err := InvalidSheet(io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrInvalidSheet)
	assert.Equal(t, "could not read sheet: unexpected EOF", err.Error())
}

func TestError_WithDetails(t *testing.T) {
	base := Validation("bad request")
	detailed := base.WithDetails(map[string]string{"slug": "is required"})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]string{"slug": "is required"}, detailed.Details)
	assert.Equal(t, CodeValidation, detailed.Code)
}
