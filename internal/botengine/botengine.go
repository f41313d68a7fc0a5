// Package botengine defines the bot-turn capability: a small interface
// the turn scheduler depends on, with one scripted reference
// implementation.
package botengine

import (
	"time"

	"github.com/farkleio/tablecore/internal/action"
	"github.com/farkleio/tablecore/internal/domain"
)

// Engine runs a bot's turn when it becomes active.
type Engine interface {
	RunTurn(session *domain.Session, playerID string, now time.Time) (turnEnd, turnStart map[string]interface{}, err error)
}

// ScriptedEngine is the reference Engine: every bot uses the same
// conservative DiceRoller-backed strategy, personality (BotProfile)
// only affects ReactionDelay, which callers may use to stagger
// broadcasts — the engine itself is synchronous.
type ScriptedEngine struct {
	Roller action.DiceRoller
}

// NewScriptedEngine wires a ScriptedEngine over the given DiceRoller
// (typically action.NewFarkleRoller()).
func NewScriptedEngine(roller action.DiceRoller) *ScriptedEngine {
	return &ScriptedEngine{Roller: roller}
}

// RunTurn delegates to action.ExecuteBotTurn.
func (e *ScriptedEngine) RunTurn(session *domain.Session, playerID string, now time.Time) (map[string]interface{}, map[string]interface{}, error) {
	return action.ExecuteBotTurn(session, playerID, e.Roller, now)
}

// ReactionDelay returns the configured reaction delay for playerID, or a
// sane default if the participant has no BotProfile.
func ReactionDelay(session *domain.Session, playerID string) time.Duration {
	p, ok := session.Participants[playerID]
	if !ok || !p.IsBot || p.BotProfile == nil {
		return 400 * time.Millisecond
	}
	return time.Duration(p.BotProfile.ReactionDelay) * time.Millisecond
}
