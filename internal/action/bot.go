package action

import (
	"fmt"
	"time"

	"github.com/farkleio/tablecore/internal/domain"
	"github.com/farkleio/tablecore/internal/turn"
)

// ExecuteBotTurn runs one full bot pass: roll, then select+score using
// the bot's own dice, then advances the turn. It is
// invoked from the bot-loop scheduler whenever the active participant is
// a bot and the phase is await_roll.
func ExecuteBotTurn(session *domain.Session, playerID string, roller DiceRoller, now time.Time) (turnEnd, turnStart map[string]interface{}, err error) {
	participant, ok := session.Participants[playerID]
	if !ok || !participant.IsBot {
		return nil, nil, fmt.Errorf("executeBotTurn: %s is not a bot participant", playerID)
	}

	rollResult := ProcessTurnAction(session, playerID, Payload{Action: "roll"}, roller, now)
	if !rollResult.OK {
		return nil, nil, fmt.Errorf("executeBotTurn: roll failed: %s", rollResult.Reason)
	}

	snapshot := session.TurnState.LastRollSnapshot
	selectedDiceIDs := bestScoringSelection(snapshot.Dice, roller)
	points := roller.ComputeScore(snapshot.Dice, selectedDiceIDs)

	scoreResult := ProcessTurnAction(session, playerID, Payload{
		Action: "score",
		SelectedDiceIDs: selectedDiceIDs,
		Points: points,
		RollServerID: snapshot.ServerRollID,
	}, roller, now)
	if !scoreResult.OK {
		return nil, nil, fmt.Errorf("executeBotTurn: score failed: %s", scoreResult.Reason)
	}

	return turn.AdvanceSessionTurn(session, playerID, now)
}

// bestScoringSelection greedily selects the single highest-scoring die as
// a conservative bot strategy; internal/botengine runs this same strategy
// for every bot, its profiles only setting the reaction delay.
func bestScoringSelection(dice []domain.Die, roller DiceRoller) []string {
	bestID := ""
	bestPoints := -1
	for _, d := range dice {
		points := roller.ComputeScore(dice, []string{d.DieID})
		if points > bestPoints {
			bestPoints = points
			bestID = d.DieID
		}
	}
	if bestID == "" {
		return nil
	}
	return []string{bestID}
}
