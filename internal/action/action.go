// Package action implements the turn-action contract: a roll/select/
// score state machine and the bot-turn driver that wraps it.
package action

import (
	"strconv"
	"time"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/turn"
)

// DiceRoller is the pluggable capability the engine depends on for
// rolling dice and computing a selection's point value — the concrete
// Farkle scoring table lives outside this package so it can be swapped
// or tuned without touching the state machine.
type DiceRoller interface {
	RollDice(count int) []domain.Die
	ComputeScore(dice []domain.Die, selectedDiceIDs []string) int
}

// Payload is the client-submitted turn_action body.
type Payload struct {
	Action string `json:"action"`
	DiceCount int `json:"diceCount,omitempty"`
	SelectedDiceIDs []string `json:"selectedDiceIds,omitempty"`
	Points int `json:"points,omitempty"`
	RollServerID string `json:"rollServerId,omitempty"`
}

// Result mirrors the {ok, code, reason, action, message, ...} contract
// the turn_action endpoint reports over the wire.
type Result struct {
	OK bool
	Code int
	Reason string
	Action string
	Message map[string]interface{}
	WinnerResolved bool
	ShouldBroadcastState bool
	ShouldPersist bool
	ActionTimestamp time.Time
	Sync bool
}

func errResult(code int, reason string, sync bool) *Result {
	return &Result{OK: false, Code: code, Reason: reason, Sync: sync}
}

// ProcessTurnAction runs one roll/select/score step against session for
// playerID. It mutates session.TurnState and the acting participant in
// place on success; callers are responsible for persistence/broadcast
// per the returned flags.
func ProcessTurnAction(session *domain.Session, playerID string, payload Payload, roller DiceRoller, now time.Time) *Result {
	ts := &session.TurnState
	if session.SessionComplete {
		return errResult(409, apperr.ErrTurnUnavailable.Error(), false)
	}
	if ts.ActiveTurnPlayerID == "" {
		return errResult(409, apperr.ErrTurnUnavailable.Error(), false)
	}
	if ts.ActiveTurnPlayerID != playerID {
		return errResult(403, apperr.ErrNotYourTurn.Error(), true)
	}
	participant, ok := session.Participants[playerID]
	if !ok {
		return errResult(404, apperr.ErrUnknownPlayer.Error(), true)
	}

	switch payload.Action {
	case "roll":
		return processRoll(session, participant, payload, roller, now)
	case "select":
		return processSelect(session, payload, roller, now)
	case "score":
		return processScore(session, participant, payload, roller, now)
	default:
		return errResult(400, apperr.ErrTurnActionInvalidPayload.Error(), false)
	}
}

func processRoll(session *domain.Session, participant *domain.Participant, payload Payload, roller DiceRoller, now time.Time) *Result {
	ts := &session.TurnState
	if ts.Phase != domain.PhaseAwaitRoll {
		return errResult(409, apperr.ErrTurnActionInvalidPhase.Error(), true)
	}

	diceCount := payload.DiceCount
	if diceCount <= 0 {
		diceCount = participant.RemainingDice
	}
	if diceCount <= 0 {
		diceCount = 6
	}
	dice := roller.RollDice(diceCount)

	rollIndex := 0
	if ts.LastRollSnapshot != nil {
		rollIndex = ts.LastRollSnapshot.RollIndex + 1
	}
	snapshot := domain.RollSnapshot{
		RollIndex: rollIndex,
		ServerRollID: newServerRollID(session.SessionID, participant.PlayerID, rollIndex, now),
		Dice: dice,
	}
	ts.LastRollSnapshot = &snapshot
	ts.LastScoreSummary = nil
	ts.Phase = domain.PhaseAwaitScore
	ts.UpdatedAt = now
	participant.TurnTimeoutCount = 0
	participant.TurnTimeoutRound = nil

	return &Result{
		OK: true,
		Code: 200,
		Action: "roll",
		Message: map[string]interface{}{
			"type": "turn_action",
			"sessionId": session.SessionID,
			"playerId": participant.PlayerID,
			"action": "roll",
			"rollSnapshot": snapshot,
			"timestamp": now,
		},
		ShouldBroadcastState: true,
		ShouldPersist: true,
		ActionTimestamp: now,
	}
}

// processSelect is preview-only: it projects a score summary but must
// not mutate participant score, persist, or broadcast state.
func processSelect(session *domain.Session, payload Payload, roller DiceRoller, now time.Time) *Result {
	ts := &session.TurnState
	if ts.Phase != domain.PhaseAwaitScore {
		return errResult(409, apperr.ErrTurnActionInvalidPhase.Error(), true)
	}
	if ts.LastRollSnapshot == nil {
		return errResult(409, apperr.ErrTurnActionInvalidPhase.Error(), true)
	}

	points := roller.ComputeScore(ts.LastRollSnapshot.Dice, payload.SelectedDiceIDs)
	return &Result{
		OK: true,
		Code: 200,
		Action: "select",
		Message: map[string]interface{}{
			"type": "turn_action",
			"sessionId": session.SessionID,
			"action": "select",
			"selectedDiceIds": payload.SelectedDiceIDs,
			"projectedPoints": points,
			"timestamp": now,
		},
		ActionTimestamp: now,
	}
}

func processScore(session *domain.Session, participant *domain.Participant, payload Payload, roller DiceRoller, now time.Time) *Result {
	ts := &session.TurnState
	if ts.Phase != domain.PhaseAwaitScore {
		return errResult(409, apperr.ErrTurnActionInvalidPhase.Error(), true)
	}
	if ts.LastRollSnapshot == nil || payload.RollServerID != ts.LastRollSnapshot.ServerRollID {
		return errResult(409, apperr.ErrScoreRollMismatch.Error(), true)
	}

	computed := roller.ComputeScore(ts.LastRollSnapshot.Dice, payload.SelectedDiceIDs)
	if computed != payload.Points {
		return errResult(409, apperr.ErrScorePointsMismatch.Error(), true)
	}

	summary := domain.ScoreSummary{
		SelectedDiceIDs: payload.SelectedDiceIDs,
		Points: payload.Points,
		RollServerID: payload.RollServerID,
		ProjectedTotalScore: participant.Score + payload.Points,
	}
	turn.ApplyParticipantScoreUpdate(participant, summary, len(ts.LastRollSnapshot.Dice), now)
	summary.RemainingDice = participant.RemainingDice
	summary.IsComplete = participant.IsComplete

	ts.LastScoreSummary = &summary
	ts.Phase = domain.PhaseReadyToEnd
	ts.UpdatedAt = now
	participant.TurnTimeoutCount = 0
	participant.TurnTimeoutRound = nil

	message := map[string]interface{}{
		"type": "turn_action",
		"sessionId": session.SessionID,
		"playerId": participant.PlayerID,
		"action": "score",
		"scoreSummary": summary,
		"timestamp": now,
	}
	if participant.IsComplete {
		message["roundComplete"] = turn.CompleteSessionRoundWithWinner(session, participant.PlayerID, now)
	}

	return &Result{
		OK: true,
		Code: 200,
		Action: "score",
		Message: message,
		WinnerResolved: participant.IsComplete,
		ShouldBroadcastState: true,
		ShouldPersist: true,
		ActionTimestamp: now,
	}
}

func newServerRollID(sessionID, playerID string, rollIndex int, now time.Time) string {
	return sessionID + ":" + playerID + ":" + strconv.Itoa(rollIndex) + ":" + strconv.FormatInt(now.UnixNano()%1_000_000, 10)
}
