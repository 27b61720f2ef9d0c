package futures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-go/models"
	"arcade-go/session"
	"arcade-go/utils"
)

type fakeLedger struct {
	positions map[string]*models.Position
	// listing, when set, is returned by ListAllPositions instead of the live
	// map, to model a sweep working from a stale snapshot.
	listing []*models.Position
	credits []int64
	deleted []string
}

func newFakeLedger(positions ...*models.Position) *fakeLedger {
	f := &fakeLedger{positions: make(map[string]*models.Position)}
	for _, p := range positions {
		f.positions[p.ID] = p
	}
	return f
}

func (f *fakeLedger) GetUser(ctx context.Context, g, u string) (*models.User, error) {
	return &models.User{GuildID: g, UserID: u, Balance: 10_000}, nil
}

func (f *fakeLedger) AdjustBalance(ctx context.Context, g, u string, delta int64) (*models.User, error) {
	f.credits = append(f.credits, delta)
	return &models.User{GuildID: g, UserID: u}, nil
}

func (f *fakeLedger) AddXP(ctx context.Context, g, u, game string, amount int64) (*models.LevelUp, error) {
	return nil, nil
}

func (f *fakeLedger) UpdateHighScore(ctx context.Context, g, u, game string, score int64) (bool, error) {
	return false, nil
}

func (f *fakeLedger) GetCooldown(ctx context.Context, g, u, k string) (*time.Time, error) { return nil, nil }
func (f *fakeLedger) SetCooldown(ctx context.Context, g, u, k string, t time.Time) error { return nil }

func (f *fakeLedger) CreatePosition(ctx context.Context, p *models.Position) error {
	f.positions[p.ID] = p
	return nil
}

func (f *fakeLedger) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	p, ok := f.positions[id]
	if !ok {
		return nil, utils.ErrPositionNotFound
	}
	return p, nil
}

func (f *fakeLedger) ListPositions(ctx context.Context, g, u string) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range f.positions {
		if p.GuildID == g && p.UserID == u {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListAllPositions(ctx context.Context) ([]*models.Position, error) {
	if f.listing != nil {
		return f.listing, nil
	}
	var out []*models.Position
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeLedger) UpdatePosition(ctx context.Context, p *models.Position) error {
	f.positions[p.ID] = p
	return nil
}

func (f *fakeLedger) DeletePosition(ctx context.Context, id string) error {
	if _, ok := f.positions[id]; !ok {
		return utils.ErrPositionNotFound
	}
	delete(f.positions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMarket map[string]float64

func (m fakeMarket) Price(symbol string) (float64, bool) {
	p, ok := m[symbol]
	return p, ok
}

func (m fakeMarket) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type fakeEvents struct{ subjects []string }

func (f *fakeEvents) Publish(subject string, payload any) {
	f.subjects = append(f.subjects, subject)
}
func (f *fakeEvents) Close() {}

func TestSweepLiquidatesWithoutPayout(t *testing.T) {
	pos := longPos(100, 50, 10)
	ledger := newFakeLedger(pos)
	events := &fakeEvents{}
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{"BTCUSDT": 90}, Events: events}

	w.sweep(context.Background())

	assert.Equal(t, []string{"pos-1"}, ledger.deleted)
	assert.Empty(t, ledger.credits, "a liquidated stake is forfeited")
	assert.Equal(t, []string{"position.liquidated"}, events.subjects)
}

func TestSweepExecutesTakeProfit(t *testing.T) {
	tp := 110.0
	pos := longPos(100, 50, 10)
	pos.TakeProfit = &tp
	ledger := newFakeLedger(pos)
	events := &fakeEvents{}
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{"BTCUSDT": 112}, Events: events}

	w.sweep(context.Background())

	assert.Equal(t, []string{"pos-1"}, ledger.deleted)
	// stake 50 plus 120% profit = 110
	assert.Equal(t, []int64{110}, ledger.credits)
	assert.Equal(t, []string{"position.triggered"}, events.subjects)
}

func TestSweepSkipsHealthyPositions(t *testing.T) {
	pos := longPos(100, 50, 10)
	ledger := newFakeLedger(pos)
	events := &fakeEvents{}
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{"BTCUSDT": 101}, Events: events}

	w.sweep(context.Background())

	assert.Empty(t, ledger.deleted)
	assert.Empty(t, ledger.credits)
	assert.Empty(t, events.subjects)
}

func TestSweepSkipsUnpricedSymbols(t *testing.T) {
	pos := longPos(100, 50, 10)
	ledger := newFakeLedger(pos)
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{}, Events: &fakeEvents{}}

	w.sweep(context.Background())
	assert.Empty(t, ledger.deleted)
}

func TestSweepStaleListingPaysNothing(t *testing.T) {
	// The sweep lists a position that another closer already settled. The
	// delete loses the race, so no payout and no event may follow.
	tp := 110.0
	gone := longPos(100, 50, 10)
	gone.TakeProfit = &tp
	ledger := newFakeLedger()
	ledger.listing = []*models.Position{gone}
	events := &fakeEvents{}
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{"BTCUSDT": 112}, Events: events}

	w.sweep(context.Background())

	assert.Empty(t, ledger.credits)
	assert.Empty(t, ledger.deleted)
	assert.Empty(t, events.subjects)
}

func TestStaleDashboardCloseAfterLiquidation(t *testing.T) {
	pos := longPos(100, 50, 10)
	pos.GuildID, pos.UserID = "guild", "owner"
	ledger := newFakeLedger(pos)
	events := &fakeEvents{}
	market := fakeMarket{"BTCUSDT": 100}

	reg := session.NewRegistry()
	sess, err := session.New(
		session.Key{ChannelID: "chan", UserID: "owner"}, "guild",
		&Game{Ledger: ledger, Market: market},
		map[string]string{"owner": "owner", "guild": "guild"},
		reg, session.Deps{Ledger: ledger, Events: events},
		session.Timeouts{Inactivity: time.Hour, Lifetime: time.Hour},
	)
	require.NoError(t, err)

	// The price collapses and the sweep liquidates while the dashboard still
	// shows the position at the old mark.
	w := &Sweeper{Ledger: ledger, Market: fakeMarket{"BTCUSDT": 90}, Events: events}
	w.sweep(context.Background())
	require.Equal(t, []string{"pos-1"}, ledger.deleted)
	require.Empty(t, ledger.credits, "liquidation forfeits the stake")

	_, err = sess.HandleAction("owner", session.Action{
		Name: "select", Args: map[string]string{"value": "pos-1"},
	})
	require.NoError(t, err)

	res, err := sess.HandleAction("owner", session.Action{
		Name: "close", Prices: map[string]float64{"BTCUSDT": 100},
	})
	require.NoError(t, err)

	assert.Empty(t, ledger.credits, "no credit may follow an already-settled position")
	assert.False(t, res.Step.Invalid)
	assert.Equal(t, "That position was already settled.", res.Step.Note)
	assert.NotNil(t, res.Embed, "the dashboard re-renders without the position")
}
