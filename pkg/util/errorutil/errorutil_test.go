package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("split: %w", NewInvalidSplitSpec("too few tickets", map[string]any{"rule": "min_tickets"}))

	assert.True(t, HasCode(err, CodeInvalidSplitSpec))
	assert.False(t, HasCode(err, CodeInvalidMergeSpec))
	assert.False(t, HasCode(errors.New("plain"), CodeInvalidSplitSpec))
}

func TestOnlyStorageFailureIsRetryable(t *testing.T) {
	storage := ToDomainError(NewStorageFailure(errors.New("connection reset")))
	require.True(t, storage.Retryable())
	assert.Equal(t, http.StatusServiceUnavailable, storage.HTTPStatus)

	for _, err := range []error{
		NewNotFound("ticket", nil),
		NewSelfReference("t1"),
		NewSystemGenerated("r1", "parent_of"),
		NewTenantMismatch(nil),
	} {
		assert.False(t, ToDomainError(err).Retryable(), err.Error())
	}
}

func TestToDomainErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	domainErr := ToDomainError(cause)

	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.Equal(t, http.StatusInternalServerError, domainErr.HTTPStatus)
	assert.ErrorIs(t, domainErr, cause)
	assert.Nil(t, ToDomainError(nil))
}

func TestNotFoundKeepsDetails(t *testing.T) {
	domainErr := ToDomainError(NewNotFound("ticket", map[string]any{"ticket_id": "t-9"}))

	assert.Equal(t, "ticket not found", domainErr.Message)
	assert.Equal(t, "t-9", domainErr.Details["ticket_id"])
}
