package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/circlelock"
	"github.com/shellbound/focuscircle/internal/identity"
	"github.com/shellbound/focuscircle/internal/invitecode"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"github.com/shellbound/focuscircle/internal/timer"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{invitecode.ErrInvalidCode, http.StatusBadRequest, "validation_error"},
		{circledomain.ErrInvalidDuration, http.StatusBadRequest, "validation_error"},
		{memberdomain.ErrInvalidStatus, http.StatusBadRequest, "validation_error"},
		{newValidationError("name", "invalid_name", "too long"), http.StatusBadRequest, "validation_error"},
		{identity.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
		{memberdomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{timer.ErrNotCreator, http.StatusForbidden, "forbidden"},
		{circlelock.ErrBusy, http.StatusConflict, "concurrent_modification"},
		{memberdomain.ErrCircleNotJoinable, http.StatusConflict, "conflict"},
		{memberdomain.ErrRejoinNotAllowed, http.StatusConflict, "conflict"},
		{timer.ErrNotCancellable, http.StatusConflict, "conflict"},
		{circledomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{circledomain.ErrCodeSpaceExhausted, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v", tc.err), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestMapErrorWrapped(t *testing.T) {
	status, payload := mapError(fmt.Errorf("join: %w", memberdomain.ErrCircleNotActive))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
}
