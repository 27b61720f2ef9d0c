package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-go/models"
	"arcade-go/utils"
)

// fakeGame is a minimal variant for exercising the harness.
type fakeState struct {
	n    int
	over bool
}

type fakeGame struct{}

func (fakeGame) Kind() string { return "fake" }

func (fakeGame) Initial(args map[string]string) (State, error) {
	return fakeState{}, nil
}

func (fakeGame) Apply(st State, act Action) (State, Step) {
	s := st.(fakeState)
	switch act.Name {
	case "inc":
		s.n++
		return s, Step{Moved: true}
	case "bad":
		return s, Step{Invalid: true, Note: "no"}
	case "debit":
		return s, Step{Moved: true, Effects: []Effect{{Kind: EffectDebit, Amount: 100}}}
	case ActStop:
		s.over = true
		return s, Step{Terminal: true, Reason: ReasonStop}
	case ActTimeout:
		s.over = true
		return s, Step{Terminal: true, Reason: ReasonTimeout}
	case ActExpire:
		s.over = true
		return s, Step{Terminal: true, Reason: ReasonExpired}
	}
	return s, Step{Invalid: true}
}

func (fakeGame) Terminal(st State) bool { return st.(fakeState).over }

func (fakeGame) Settle(st State, reason string) Settlement {
	s := st.(fakeState)
	return Settlement{Score: int64(s.n), Moves: int64(s.n), Earnings: 50, XP: 10}
}

func (fakeGame) View(st State) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	return &discordgo.MessageEmbed{Title: "fake"}, nil
}

func (fakeGame) FinalView(st State, out *Outcome) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: "fake final"}
}

// fakeLedger records every call and can reject debits.
type fakeLedger struct {
	mu         sync.Mutex
	balance    int64
	adjusts    []int64
	xpCalls    int
	scoreCalls int
}

func (f *fakeLedger) GetUser(ctx context.Context, g, u string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.User{GuildID: g, UserID: u, Balance: f.balance}, nil
}

func (f *fakeLedger) AdjustBalance(ctx context.Context, g, u string, delta int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance+delta < 0 {
		return nil, utils.ErrInsufficientFunds
	}
	f.balance += delta
	f.adjusts = append(f.adjusts, delta)
	return &models.User{GuildID: g, UserID: u, Balance: f.balance}, nil
}

func (f *fakeLedger) AddXP(ctx context.Context, g, u, game string, amount int64) (*models.LevelUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.xpCalls++
	return nil, nil
}

func (f *fakeLedger) UpdateHighScore(ctx context.Context, g, u, game string, score int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoreCalls++
	return true, nil
}

func (f *fakeLedger) GetCooldown(ctx context.Context, g, u, k string) (*time.Time, error) { return nil, nil }
func (f *fakeLedger) SetCooldown(ctx context.Context, g, u, k string, t time.Time) error { return nil }
func (f *fakeLedger) CreatePosition(ctx context.Context, p *models.Position) error       { return nil }
func (f *fakeLedger) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return nil, utils.ErrPositionNotFound
}
func (f *fakeLedger) ListPositions(ctx context.Context, g, u string) ([]*models.Position, error) {
	return nil, nil
}
func (f *fakeLedger) ListAllPositions(ctx context.Context) ([]*models.Position, error) {
	return nil, nil
}
func (f *fakeLedger) UpdatePosition(ctx context.Context, p *models.Position) error { return nil }
func (f *fakeLedger) DeletePosition(ctx context.Context, id string) error          { return nil }

type fakeEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeEvents) Publish(subject string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
}
func (f *fakeEvents) Close() {}

func newTestSession(t *testing.T, balance int64) (*Session, *Registry, *fakeLedger, *fakeEvents) {
	t.Helper()
	reg := NewRegistry()
	ledger := &fakeLedger{balance: balance}
	events := &fakeEvents{}
	sess, err := New(
		Key{ChannelID: "chan", UserID: "owner"}, "guild",
		fakeGame{}, map[string]string{"owner": "owner"},
		reg, Deps{Ledger: ledger, Events: events},
		Timeouts{Inactivity: time.Hour, Lifetime: time.Hour},
	)
	require.NoError(t, err)
	return sess, reg, ledger, events
}

func TestRegistryExclusivity(t *testing.T) {
	sess, reg, _, _ := newTestSession(t, 1000)

	// A second session on the same key must be rejected without disturbing
	// the first.
	_, err := New(sess.Key, "guild", fakeGame{}, nil, reg,
		Deps{Ledger: &fakeLedger{}, Events: &fakeEvents{}}, Timeouts{Inactivity: time.Hour, Lifetime: time.Hour})
	assert.ErrorIs(t, err, ErrAlreadyActive)

	got, ok := reg.Get(sess.Key)
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryReleaseIdempotent(t *testing.T) {
	reg := NewRegistry()
	key := Key{ChannelID: "c", UserID: "u"}
	reg.Release(key) // releasing an absent key is a no-op
	assert.Equal(t, 0, reg.Len())
	reg.Release(key)
	assert.Equal(t, 0, reg.Len())
}

func TestOwnershipRejected(t *testing.T) {
	sess, _, ledger, _ := newTestSession(t, 1000)

	_, err := sess.HandleAction("intruder", Action{Name: "inc"})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, ledger.adjusts)

	res, err := sess.HandleAction("owner", Action{Name: "inc"})
	require.NoError(t, err)
	assert.True(t, res.Step.Moved)
}

func TestInvalidActionIsNoOp(t *testing.T) {
	sess, reg, ledger, _ := newTestSession(t, 1000)

	res, err := sess.HandleAction("owner", Action{Name: "bad"})
	require.NoError(t, err)
	assert.True(t, res.Step.Invalid)
	assert.Nil(t, res.Embed) // no re-render for invalid moves
	assert.Empty(t, ledger.adjusts)
	assert.Equal(t, 1, reg.Len())
}

func TestStopSettlesAndReleases(t *testing.T) {
	sess, reg, ledger, events := newTestSession(t, 1000)

	_, err := sess.HandleAction("owner", Action{Name: "inc"})
	require.NoError(t, err)

	res, err := sess.HandleAction("owner", Action{Name: ActStop})
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, int64(50), res.Outcome.Settlement.Earnings)
	assert.Equal(t, ReasonStop, res.Outcome.Reason)

	assert.Equal(t, []int64{50}, ledger.adjusts)
	assert.Equal(t, 1, ledger.xpCalls)
	assert.Equal(t, 1, ledger.scoreCalls)
	assert.Contains(t, events.subjects, "settlement")
	assert.Equal(t, 0, reg.Len())
	assert.True(t, sess.Settled())
}

func TestActionAfterSettlementRejected(t *testing.T) {
	sess, _, _, _ := newTestSession(t, 1000)

	_, err := sess.HandleAction("owner", Action{Name: ActStop})
	require.NoError(t, err)

	_, err = sess.HandleAction("owner", Action{Name: "inc"})
	assert.ErrorIs(t, err, ErrFinished)
}

func TestTimeoutSettlesExactlyOnce(t *testing.T) {
	sess, reg, ledger, _ := newTestSession(t, 1000)

	_, err := sess.HandleAction("owner", Action{Name: "inc"})
	require.NoError(t, err)

	finals := 0
	sess.Start(func(final *discordgo.MessageEmbed) { finals++ })

	sess.fireTimer(ActTimeout)
	// Simulated timer re-entry on the already-released key.
	sess.fireTimer(ActTimeout)

	assert.Equal(t, []int64{50}, ledger.adjusts, "exactly one settlement credit")
	assert.Equal(t, 1, ledger.scoreCalls, "exactly one high-score update")
	assert.Equal(t, 1, finals, "final message edited once")
	assert.Equal(t, 0, reg.Len())
}

func TestLifetimeExpirySettles(t *testing.T) {
	sess, reg, ledger, _ := newTestSession(t, 1000)
	sess.Start(nil)

	sess.fireTimer(ActExpire)
	assert.Equal(t, []int64{50}, ledger.adjusts)
	assert.Equal(t, 0, reg.Len())
}

func TestDebitEffectInsufficientFundsRejectsStep(t *testing.T) {
	sess, reg, ledger, _ := newTestSession(t, 10)

	res, err := sess.HandleAction("owner", Action{Name: "debit"})
	require.NoError(t, err)
	assert.True(t, res.Step.Invalid)
	assert.Empty(t, ledger.adjusts)
	// The session stays live after a rejected step.
	assert.Equal(t, 1, reg.Len())

	res, err = sess.HandleAction("owner", Action{Name: "inc"})
	require.NoError(t, err)
	assert.True(t, res.Step.Moved)
}

func TestDebitEffectApplied(t *testing.T) {
	sess, _, ledger, _ := newTestSession(t, 1000)

	res, err := sess.HandleAction("owner", Action{Name: "debit"})
	require.NoError(t, err)
	assert.True(t, res.Step.Moved)
	assert.Equal(t, []int64{-100}, ledger.adjusts)
	assert.Equal(t, int64(900), ledger.balance)
}
