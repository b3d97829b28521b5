package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("load report: %w", Clone(ErrNotFound, "report not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, http.StatusNotFound, FromError(err).Status)
	assert.Equal(t, "report not found", FromError(err).Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestValidationListsFields(t *testing.T) {
	payload := struct {
		Email string `validate:"required,email"`
		Grade int    `validate:"min=1,max=12"`
	}{Email: "nope", Grade: 13}

	appErr := Validation(validator.New().Struct(payload), "invalid payload")

	require.True(t, errors.Is(appErr, ErrValidation))
	details, ok := appErr.Details.([]FieldError)
	require.True(t, ok)
	assert.ElementsMatch(t, []FieldError{{Field: "Email", Rule: "email"}, {Field: "Grade", Rule: "max"}}, details)
}

func TestValidationWithoutFieldErrors(t *testing.T) {
	appErr := Validation(errors.New("bad json"), "invalid payload")

	assert.Nil(t, appErr.Details)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}
