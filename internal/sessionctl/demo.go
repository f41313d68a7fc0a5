package sessionctl

import (
	"time"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/turn"
)

// DemoAction is one of the four controls POST /sessions/:id/demo-controls
// accepts.
type DemoAction string

const (
	DemoActionPause DemoAction = "pause"
	DemoActionResume DemoAction = "resume"
	DemoActionSpeedFast DemoAction = "speed_fast"
	DemoActionSpeedNormal DemoAction = "speed_normal"
)

// DemoControlsResult is the {controls, session} success payload.
type DemoControlsResult struct {
	DemoMode bool `json:"demoMode"`
	DemoAutoRun bool `json:"demoAutoRun"`
	DemoSpeedMode bool `json:"demoSpeedMode"`
}

// ApplyDemoControls implements POST /sessions/:id/demo-controls:
// owner-only, private-room-only (room_not_private otherwise). pause and
// resume toggle DemoAutoRun (whether bot-only tables keep advancing
// unattended); speed_fast/speed_normal toggle DemoSpeedMode. Either
// change can flip turnFlowReady for an all-bot table, so the turn
// reconciler is re-run before persisting.
func (s *Service) ApplyDemoControls(sessionID, playerID string, action DemoAction, now time.Time) (DemoControlsResult, error) {
	var result DemoControlsResult
	var domainErr error

	err := s.Store.World.WithSession(sessionID, func(sess *domain.Session) error {
		if sess.RoomKind != domain.RoomKindPrivate {
			domainErr = apperr.ErrRoomNotPrivate
			return nil
		}
		if sess.OwnerPlayerID != playerID {
			domainErr = apperr.ErrNotRoomOwner
			return nil
		}

		switch action {
		case DemoActionPause:
			sess.DemoAutoRun = false
		case DemoActionResume:
			sess.DemoMode = true
			sess.DemoAutoRun = true
		case DemoActionSpeedFast:
			sess.DemoSpeedMode = true
		case DemoActionSpeedNormal:
			sess.DemoSpeedMode = false
		default:
			domainErr = apperr.ErrInvalidAction
			return nil
		}

		turn.EnsureSessionTurnState(sess, now)
		sess.LastActivityAt = now

		result = DemoControlsResult{DemoMode: sess.DemoMode, DemoAutoRun: sess.DemoAutoRun, DemoSpeedMode: sess.DemoSpeedMode}
		return nil
	})
	if err != nil {
		return DemoControlsResult{}, err
	}
	return result, domainErr
}
