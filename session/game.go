// Package session holds the per-user game session core: the registry that
// enforces one live session per (channel, user) key, the variant interface
// each game kind implements, and the harness that serializes actions,
// runs the timers, and settles exactly once.
package session

import (
	"github.com/bwmarrin/discordgo"

	"arcade-go/models"
)

// Key identifies a session. At most one live session exists per key.
type Key struct {
	ChannelID string
	UserID    string
}

// Action is one discrete user (or timer) originated input, already parsed by
// the transport shell. Prices is a market snapshot captured before the
// transition so Apply stays pure.
type Action struct {
	Name   string
	Args   map[string]string
	Prices map[string]float64
}

// Built-in action names shared across game kinds. Timer expiries are fed
// through Apply like any other action so the stop and timeout paths share
// one settlement code path.
const (
	ActUp      = "up"
	ActDown    = "down"
	ActLeft    = "left"
	ActRight   = "right"
	ActStop    = "stop"
	ActTimeout = "timeout"
	ActExpire  = "expire"
)

// Terminal reasons carried in Step.Reason.
const (
	ReasonStop     = "stop"
	ReasonGameOver = "game_over"
	ReasonTimeout  = "timeout"
	ReasonExpired  = "expired"
)

// State is the game-specific state value threaded through Apply. Games treat
// it as immutable per step: Apply returns a fresh value.
type State interface{}

// EffectKind tags a ledger side effect requested by a transition.
type EffectKind int

const (
	// EffectDebit withdraws Amount from the user balance; failing with
	// insufficient funds rejects the whole step.
	EffectDebit EffectKind = iota
	// EffectCredit deposits Amount. Failures are logged, never fatal.
	EffectCredit
	// EffectOpenPosition persists Position.
	EffectOpenPosition
	// EffectUpdatePosition rewrites Position.
	EffectUpdatePosition
	// EffectClosePosition deletes Position by ID.
	EffectClosePosition
)

// Effect is one external call requested by a pure transition and executed by
// the harness.
type Effect struct {
	Kind     EffectKind
	Amount   int64
	Position *models.Position
}

// Step reports what one transition did.
type Step struct {
	Moved    bool   // board visibly changed; re-render
	Invalid  bool   // rejected input; feedback only, no re-render
	Note     string // short status line for the reply
	Terminal bool
	Reason   string
	Effects  []Effect
}

// Settlement is the pure conversion of terminal session metrics into deltas.
type Settlement struct {
	Score    int64
	Moves    int64
	Earnings int64
	XP       int64
}

// Outcome is the result of executing a settlement against the collaborators.
type Outcome struct {
	Settlement Settlement
	Reason     string
	NewBalance int64
	NewRecord  bool
	LevelUp    *models.LevelUp
}

// Game is the variant interface each game kind provides. Apply, Terminal and
// Settle are pure so the state machines test without any transport or store.
type Game interface {
	Kind() string
	Initial(args map[string]string) (State, error)
	Apply(st State, act Action) (State, Step)
	Terminal(st State) bool
	Settle(st State, reason string) Settlement
	View(st State) (*discordgo.MessageEmbed, []discordgo.MessageComponent)
	FinalView(st State, out *Outcome) *discordgo.MessageEmbed
}
