package traderr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrInsufficientAvailable, http.StatusUnprocessableEntity},
		{ErrInvalidUnlock, http.StatusUnprocessableEntity},
		{ErrInvalidOrder, http.StatusUnprocessableEntity},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrConfirmationMismatch, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrForbidden, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrStaleQuote, http.StatusServiceUnavailable},
		{ErrStorageFailure, http.StatusInternalServerError},
		{errors.New("something else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestHTTPStatusSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", fmt.Errorf("lock: %w", ErrInsufficientAvailable))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
}
