package api

import (
	"errors"
	"net/http"

	"github.com/farkleio/tablecore/internal/apperr"
)

// statusFor maps an apperr sentinel to its default HTTP status. A few
// endpoints (queue-next's 200 round_in_progress/not_seated) handle
// particular errors locally instead of calling this helper.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidPlayerID),
		errors.Is(err, apperr.ErrInvalidSessionID),
		errors.Is(err, apperr.ErrInvalidUID),
		errors.Is(err, apperr.ErrInvalidAction),
		errors.Is(err, apperr.ErrMissingAdminRole),
		errors.Is(err, apperr.ErrInvalidAdminRole),
		errors.Is(err, apperr.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrTokenNotFound),
		errors.Is(err, apperr.ErrSessionTokenMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrRoomBanned),
		errors.Is(err, apperr.ErrNotRoomOwner):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrUnknownSession),
		errors.Is(err, apperr.ErrUnknownPlayer),
		errors.Is(err, apperr.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRoomCodeTaken),
		errors.Is(err, apperr.ErrRoomFull),
		errors.Is(err, apperr.ErrCannotModerateSelf),
		errors.Is(err, apperr.ErrBootstrapOwnerLocked),
		errors.Is(err, apperr.ErrRoomNotPrivate):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrSessionExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
