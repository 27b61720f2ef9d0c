package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/utils"
)

var (
	// ErrNotOwner is returned when another user presses a session's controls.
	ErrNotOwner = errors.New("not your game")
	// ErrFinished is returned for actions arriving after settlement.
	ErrFinished = errors.New("this game has already ended")
)

// Deps are the external collaborators a session settles against.
type Deps struct {
	Ledger utils.Ledger
	Events utils.EventPublisher
}

// Timeouts are the two independent session deadlines.
type Timeouts struct {
	Inactivity time.Duration
	Lifetime   time.Duration
}

// Session is one user's run of one game in one channel. All mutation happens
// under mu, so each accepted action (including its external calls) completes
// before the next begins.
type Session struct {
	Key      Key
	GuildID  string
	game     Game
	reg      *Registry
	deps     Deps
	timeouts Timeouts

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	lastActivity time.Time
	settled      bool
	inactivity   *time.Timer
	lifetime     *time.Timer

	// expire edits the live message when a timer forces settlement.
	expire func(final *discordgo.MessageEmbed)
}

// ActionResult is what the transport shell needs to answer one action.
type ActionResult struct {
	Step       Step
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Outcome    *Outcome
}

// New builds a session and claims its registry slot. The caller must either
// Start the session or Release it on any setup error after this point.
func New(key Key, guildID string, g Game, args map[string]string, reg *Registry, deps Deps, timeouts Timeouts) (*Session, error) {
	st, err := g.Initial(args)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &Session{
		Key:          key,
		GuildID:      guildID,
		game:         g,
		reg:          reg,
		deps:         deps,
		timeouts:     timeouts,
		state:        st,
		startedAt:    now,
		lastActivity: now,
	}
	if err := reg.TryAcquire(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Release frees the registry slot without settling. Used on setup failures
// before the session ever went live.
func (s *Session) Release() {
	s.reg.Release(s.Key)
}

// View renders the current state for the initial reply.
func (s *Session) View() (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.View(s.state)
}

// Start arms both timers. expire is called with the final embed when a timer
// forces settlement, so the shell can edit the live message.
func (s *Session) Start(expire func(final *discordgo.MessageEmbed)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire = expire
	s.inactivity = time.AfterFunc(s.timeouts.Inactivity, func() { s.fireTimer(ActTimeout) })
	s.lifetime = time.AfterFunc(s.timeouts.Lifetime, func() { s.fireTimer(ActExpire) })
}

// HandleAction applies one action to the session. The ownership check runs
// before any mutation; invalid steps produce feedback without a re-render;
// terminal steps settle exactly once and release the registry slot.
func (s *Session) HandleAction(actorID string, act Action) (*ActionResult, error) {
	if actorID != s.Key.UserID {
		return nil, ErrNotOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return nil, ErrFinished
	}

	next, step := s.game.Apply(s.state, act)
	if step.Invalid {
		return &ActionResult{Step: step}, nil
	}

	if err := s.runEffects(step.Effects); err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			return &ActionResult{Step: Step{Invalid: true, Note: "You don't have enough coins for that."}}, nil
		}
		if errors.Is(err, utils.ErrPositionNotFound) {
			// The position settled elsewhere after this view was rendered.
			// Commit the state so the view catches up, but issue nothing.
			s.commitLocked(next)
			embed, comps := s.game.View(s.state)
			return &ActionResult{
				Step:       Step{Moved: true, Note: "That position was already settled."},
				Embed:      embed,
				Components: comps,
			}, nil
		}
		log.Error().Err(err).Str("game", s.game.Kind()).Msg("action effects failed")
		return &ActionResult{Step: Step{Invalid: true, Note: "Something went wrong, try again."}}, nil
	}

	s.commitLocked(next)

	if step.Terminal {
		out := s.settleLocked(step.Reason)
		return &ActionResult{Step: step, Embed: s.game.FinalView(s.state, out), Outcome: out}, nil
	}

	embed, comps := s.game.View(s.state)
	return &ActionResult{Step: step, Embed: embed, Components: comps}, nil
}

// commitLocked installs an accepted next state and resets the inactivity
// window. Caller holds mu.
func (s *Session) commitLocked(next State) {
	s.state = next
	s.lastActivity = time.Now()
	if s.inactivity != nil {
		s.inactivity.Reset(s.timeouts.Inactivity)
	}
}

// fireTimer feeds a timer expiry through the same transition path as a user
// action, then pushes the final view out through the expire callback.
func (s *Session) fireTimer(name string) {
	s.mu.Lock()
	if s.settled {
		s.mu.Unlock()
		return
	}

	next, step := s.game.Apply(s.state, Action{Name: name})
	s.state = next
	if !step.Terminal {
		step.Terminal = true
		if name == ActExpire {
			step.Reason = ReasonExpired
		} else {
			step.Reason = ReasonTimeout
		}
	}
	out := s.settleLocked(step.Reason)
	final := s.game.FinalView(s.state, out)
	expire := s.expire
	s.mu.Unlock()

	if expire != nil && final != nil {
		expire(final)
	}
}

// runEffects executes the ledger calls a transition requested. A failed debit
// rejects the step; anything already debited is refunded so the step stays
// atomic from the user's point of view.
func (s *Session) runEffects(effects []Effect) error {
	if len(effects) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var debited int64
	refund := func() {
		if debited > 0 {
			if _, err := s.deps.Ledger.AdjustBalance(ctx, s.GuildID, s.Key.UserID, debited); err != nil {
				log.Error().Err(err).Int64("amount", debited).Msg("refund after failed effect")
			}
		}
	}

	for _, fx := range effects {
		switch fx.Kind {
		case EffectDebit:
			if _, err := s.deps.Ledger.AdjustBalance(ctx, s.GuildID, s.Key.UserID, -fx.Amount); err != nil {
				refund()
				return err
			}
			debited += fx.Amount
		case EffectCredit:
			if _, err := s.deps.Ledger.AdjustBalance(ctx, s.GuildID, s.Key.UserID, fx.Amount); err != nil {
				log.Error().Err(err).Int64("amount", fx.Amount).Msg("credit failed")
			}
		case EffectOpenPosition:
			if err := s.deps.Ledger.CreatePosition(ctx, fx.Position); err != nil {
				refund()
				return err
			}
		case EffectUpdatePosition:
			if err := s.deps.Ledger.UpdatePosition(ctx, fx.Position); err != nil {
				refund()
				return err
			}
		case EffectClosePosition:
			// A failed delete aborts the rest of the step. In particular a
			// not-found means another path (liquidation, trigger sweep)
			// already settled the position; the follow-up credit must not run.
			if err := s.deps.Ledger.DeletePosition(ctx, fx.Position.ID); err != nil {
				refund()
				return err
			}
		}
	}
	return nil
}

// settleLocked converts terminal metrics into external effects exactly once.
// Every branch tolerates collaborator failure: it logs and keeps going so the
// session is always released and the user always gets a final message.
// Caller holds mu.
func (s *Session) settleLocked(reason string) *Outcome {
	if s.settled {
		return nil
	}
	s.settled = true
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	if s.lifetime != nil {
		s.lifetime.Stop()
	}

	set := s.game.Settle(s.state, reason)
	out := &Outcome{Settlement: set, Reason: reason}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if set.Earnings != 0 {
		if u, err := s.deps.Ledger.AdjustBalance(ctx, s.GuildID, s.Key.UserID, set.Earnings); err != nil {
			log.Error().Err(err).Str("game", s.game.Kind()).Int64("earnings", set.Earnings).Msg("settlement credit failed")
		} else {
			out.NewBalance = u.Balance
		}
	}
	if set.XP > 0 {
		if lvl, err := s.deps.Ledger.AddXP(ctx, s.GuildID, s.Key.UserID, s.game.Kind(), set.XP); err != nil {
			log.Error().Err(err).Str("game", s.game.Kind()).Msg("settlement xp failed")
		} else {
			out.LevelUp = lvl
		}
	}
	if set.Score > 0 {
		if record, err := s.deps.Ledger.UpdateHighScore(ctx, s.GuildID, s.Key.UserID, s.game.Kind(), set.Score); err != nil {
			log.Error().Err(err).Str("game", s.game.Kind()).Msg("settlement high score failed")
		} else {
			out.NewRecord = record
		}
	}

	s.deps.Events.Publish("settlement", utils.SettlementEvent{
		GuildID:   s.GuildID,
		UserID:    s.Key.UserID,
		Game:      s.game.Kind(),
		Score:     set.Score,
		Earnings:  set.Earnings,
		XP:        set.XP,
		NewRecord: out.NewRecord,
		Reason:    reason,
		At:        time.Now().UTC(),
	})

	s.reg.Release(s.Key)
	log.Info().Str("game", s.game.Kind()).Str("user", s.Key.UserID).
		Str("reason", reason).Int64("earnings", set.Earnings).Msg("session settled")
	return out
}

// Elapsed reports time since the session started.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startedAt)
}

// Settled reports whether settlement already ran.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}
