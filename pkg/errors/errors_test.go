package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("term 1: %w", Clone(ErrUnschedulableSession, "Math theory"))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrUnschedulableSession.Code, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Equal(t, "Math theory", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, "internal server error: boom", appErr.Error())
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrExportFailure, "disk full")
	assert.Equal(t, "disk full", clone.Message)
	assert.Equal(t, "timetable export failed", ErrExportFailure.Message)
	assert.Nil(t, Clone(nil, "x"))
}

func TestWrapUnwraps(t *testing.T) {
	cause := stderrors.New("no rows")
	err := Wrap(cause, ErrNotFound.Code, ErrNotFound.Status, "run not found")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "run not found: no rows", err.Error())
}
