// Package apperr defines the closed set of reason strings reported to
// callers over HTTP and WebSocket. Every sentinel here is a plain error
// whose Error() text IS the wire reason string, so handlers can surface
// err.Error() directly without a lookup table.
package apperr

import "errors"

// Validation
var (
	ErrInvalidSessionID = errors.New("invalid_session_id")
	ErrInvalidPlayerID = errors.New("invalid_player_id")
	ErrInvalidUID = errors.New("invalid_uid")
	ErrMissingAdminRole = errors.New("missing_admin_role")
	ErrInvalidAdminRole = errors.New("invalid_admin_role")
	ErrInvalidAction = errors.New("invalid_action")
)

// Authorization
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenNotFound = errors.New("token_not_found")
	ErrSessionTokenMismatch = errors.New("session_token_mismatch")
	ErrNotRoomOwner = errors.New("not_room_owner")
	ErrBootstrapOwnerLocked = errors.New("bootstrap_owner_locked")
	ErrRoomBanned = errors.New("room_banned")
)

// Not-found / lifecycle
var (
	ErrUnknownSession = errors.New("unknown_session")
	ErrUnknownPlayer = errors.New("unknown_player")
	ErrSessionExpired = errors.New("session_expired")
	ErrRoomNotFound = errors.New("room_not_found")
	ErrRoomCodeTaken = errors.New("room_code_taken")
	ErrRoomFull = errors.New("room_full")
	ErrRoomNotPrivate = errors.New("room_not_private")
)

// State machine
var (
	ErrTurnUnavailable = errors.New("turn_unavailable")
	ErrTurnNotActive = errors.New("turn_not_active")
	ErrNotYourTurn = errors.New("not_your_turn")
	ErrTurnActionInvalidPhase = errors.New("turn_action_invalid_phase")
	ErrTurnActionInvalidPayload = errors.New("turn_action_invalid_payload")
	ErrTurnActionInvalidScore = errors.New("turn_action_invalid_score")
	ErrScorePointsMismatch = errors.New("score_points_mismatch")
	ErrScoreRollMismatch = errors.New("score_roll_mismatch")
	ErrTurnAdvanceFailed = errors.New("turn_advance_failed")
	ErrRoundInProgress = errors.New("round_in_progress")
	ErrNotSeated = errors.New("not_seated")
	ErrCannotModerateSelf = errors.New("cannot_moderate_self")
)

// Wire
var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrMessageTooLarge = errors.New("message_too_large")
	ErrUnsupportedMessageType = errors.New("unsupported_message_type")
)

// Moderation
var (
	ErrRoomChannelSenderRestricted = errors.New("room_channel_sender_restricted")
	ErrRoomChannelInvalidMessage = errors.New("room_channel_invalid_message")
	ErrRoomChannelBlocked = errors.New("room_channel_blocked")
	ErrRoomChannelMessageBlocked = errors.New("room_channel_message_blocked")
	ErrInteractionBlocked = errors.New("interaction_blocked")
)

// Reason extracts the wire reason string from any error produced by this
// package, falling back to "internal_error" for anything unrecognized —
// callers at the HTTP/WebSocket boundary use this rather than err.Error()
// so a wrapped error (fmt.Errorf("...: %w", sentinel)) still yields the
// short reason instead of the full wrapped message.
func Reason(err error) string {
	for _, known := range allReasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}

var allReasons = []error{
	ErrInvalidSessionID, ErrInvalidPlayerID, ErrInvalidUID, ErrMissingAdminRole, ErrInvalidAdminRole, ErrInvalidAction,
	ErrUnauthorized, ErrTokenNotFound, ErrSessionTokenMismatch, ErrNotRoomOwner, ErrBootstrapOwnerLocked, ErrRoomBanned,
	ErrUnknownSession, ErrUnknownPlayer, ErrSessionExpired, ErrRoomNotFound, ErrRoomCodeTaken, ErrRoomFull, ErrRoomNotPrivate,
	ErrTurnUnavailable, ErrTurnNotActive, ErrNotYourTurn, ErrTurnActionInvalidPhase, ErrTurnActionInvalidPayload,
	ErrTurnActionInvalidScore, ErrScorePointsMismatch, ErrScoreRollMismatch, ErrTurnAdvanceFailed, ErrRoundInProgress,
	ErrNotSeated, ErrCannotModerateSelf,
	ErrInvalidPayload, ErrMessageTooLarge, ErrUnsupportedMessageType,
	ErrRoomChannelSenderRestricted, ErrRoomChannelInvalidMessage, ErrRoomChannelBlocked, ErrRoomChannelMessageBlocked,
	ErrInteractionBlocked,
}
