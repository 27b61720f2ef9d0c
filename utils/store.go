package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"arcade-go/models"
)

var (
	// ErrInsufficientFunds is returned when a debit would push a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrPositionNotFound is returned for lookups of a closed or unknown position.
	ErrPositionNotFound = errors.New("position not found")
)

// Ledger is the persistence collaborator. The session core only talks to this
// interface; the production implementation is the Postgres-backed Store.
type Ledger interface {
	GetUser(ctx context.Context, guildID, userID string) (*models.User, error)
	AdjustBalance(ctx context.Context, guildID, userID string, delta int64) (*models.User, error)
	AddXP(ctx context.Context, guildID, userID, game string, amount int64) (*models.LevelUp, error)
	UpdateHighScore(ctx context.Context, guildID, userID, game string, score int64) (bool, error)
	GetCooldown(ctx context.Context, guildID, userID, key string) (*time.Time, error)
	SetCooldown(ctx context.Context, guildID, userID, key string, until time.Time) error

	CreatePosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListPositions(ctx context.Context, guildID, userID string) ([]*models.Position, error)
	ListAllPositions(ctx context.Context) ([]*models.Position, error)
	UpdatePosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, id string) error
}

// Store implements Ledger on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	cfg  *EconomyConfig
}

// NewStore connects to Postgres and ensures the schema exists.
func NewStore(ctx context.Context, dbCfg *DatabaseConfig, ecoCfg *EconomyConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = dbCfg.MaxConns
	poolCfg.MinConns = dbCfg.MinConns
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = dbCfg.MaxConnIdleTime
	poolCfg.ConnConfig.RuntimeParams = map[string]string{
		"application_name": "arcade-bot",
		"timezone":         "UTC",
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Store{pool: pool, cfg: ecoCfg}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			guild_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			balance    BIGINT NOT NULL DEFAULT 0,
			total_xp   BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS game_stats (
			guild_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			game       TEXT NOT NULL,
			xp         BIGINT NOT NULL DEFAULT 0,
			high_score BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, user_id, game)
		)`,
		`CREATE TABLE IF NOT EXISTS cooldowns (
			guild_id TEXT NOT NULL,
			user_id  TEXT NOT NULL,
			key      TEXT NOT NULL,
			until    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (guild_id, user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id          TEXT PRIMARY KEY,
			guild_id    TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			direction   TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			leverage    INT NOT NULL,
			stake       BIGINT NOT NULL,
			take_profit DOUBLE PRECISION,
			stop_loss   DOUBLE PRECISION,
			opened_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions (guild_id, user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// GetUser fetches a user record, creating it with the starting balance on first sight.
func (s *Store) GetUser(ctx context.Context, guildID, userID string) (*models.User, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (guild_id, user_id, balance)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING guild_id, user_id, balance, total_xp, created_at, updated_at`,
		guildID, userID, s.cfg.StartingBalance)
	return scanUser(row)
}

// AdjustBalance applies a signed delta atomically, rejecting debits that would
// overdraw. The guard runs inside the statement so a balance read that went
// stale across a suspension point cannot cause an overdraft.
func (s *Store) AdjustBalance(ctx context.Context, guildID, userID string, delta int64) (*models.User, error) {
	if _, err := s.GetUser(ctx, guildID, userID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE users SET balance = balance + $3, updated_at = NOW()
		 WHERE guild_id = $1 AND user_id = $2 AND balance + $3 >= 0
		 RETURNING guild_id, user_id, balance, total_xp, created_at, updated_at`,
		guildID, userID, delta)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientFunds
	}
	return u, err
}

// AddXP credits XP to the user total and the per-game counter, returning a
// LevelUp when the total crossed a level boundary.
func (s *Store) AddXP(ctx context.Context, guildID, userID, game string, amount int64) (*models.LevelUp, error) {
	if amount <= 0 {
		return nil, nil
	}
	u, err := s.GetUser(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	oldLevel := LevelForXP(u.TotalXP)

	if _, err := s.pool.Exec(ctx,
		`UPDATE users SET total_xp = total_xp + $3, updated_at = NOW()
		 WHERE guild_id = $1 AND user_id = $2`, guildID, userID, amount); err != nil {
		return nil, fmt.Errorf("add xp: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO game_stats (guild_id, user_id, game, xp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (guild_id, user_id, game)
		 DO UPDATE SET xp = game_stats.xp + $4, updated_at = NOW()`,
		guildID, userID, game, amount); err != nil {
		return nil, fmt.Errorf("add game xp: %w", err)
	}

	newLevel := LevelForXP(u.TotalXP + amount)
	if newLevel > oldLevel {
		return &models.LevelUp{OldLevel: oldLevel, NewLevel: newLevel}, nil
	}
	return nil, nil
}

// UpdateHighScore records the score if it beats the stored best; the bool
// result reports whether a new record was set.
func (s *Store) UpdateHighScore(ctx context.Context, guildID, userID, game string, score int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO game_stats (guild_id, user_id, game, high_score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (guild_id, user_id, game)
		 DO UPDATE SET high_score = $4, updated_at = NOW()
		 WHERE game_stats.high_score < $4`,
		guildID, userID, game, score)
	if err != nil {
		return false, fmt.Errorf("update high score: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetCooldown returns the expiry of an active cooldown, or nil when none applies.
func (s *Store) GetCooldown(ctx context.Context, guildID, userID, key string) (*time.Time, error) {
	var until time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT until FROM cooldowns WHERE guild_id = $1 AND user_id = $2 AND key = $3 AND until > NOW()`,
		guildID, userID, key).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &until, nil
}

// SetCooldown records a cooldown expiry for the given key.
func (s *Store) SetCooldown(ctx context.Context, guildID, userID, key string, until time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cooldowns (guild_id, user_id, key, until)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (guild_id, user_id, key) DO UPDATE SET until = $4`,
		guildID, userID, key, until)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// CreatePosition persists a new position, assigning an ID when the caller did not.
func (s *Store) CreatePosition(ctx context.Context, p *models.Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, guild_id, user_id, symbol, direction, entry_price, quantity, leverage, stake, take_profit, stop_loss, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.GuildID, p.UserID, p.Symbol, p.Direction, p.EntryPrice, p.Quantity,
		p.Leverage, p.Stake, p.TakeProfit, p.StopLoss, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("create position: %w", err)
	}
	return nil
}

// GetPosition loads a single position by ID.
func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	row := s.pool.QueryRow(ctx, positionSelect+` WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	return p, err
}

// ListPositions returns all open positions owned by one user in one guild.
func (s *Store) ListPositions(ctx context.Context, guildID, userID string) ([]*models.Position, error) {
	rows, err := s.pool.Query(ctx, positionSelect+` WHERE guild_id = $1 AND user_id = $2 ORDER BY opened_at`, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListAllPositions returns every open position, used by the liquidation sweep.
func (s *Store) ListAllPositions(ctx context.Context) ([]*models.Position, error) {
	rows, err := s.pool.Query(ctx, positionSelect+` ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("list all positions: %w", err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// UpdatePosition rewrites the mutable fields of a position.
func (s *Store) UpdatePosition(ctx context.Context, p *models.Position) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET entry_price = $2, quantity = $3, stake = $4, take_profit = $5, stop_loss = $6 WHERE id = $1`,
		p.ID, p.EntryPrice, p.Quantity, p.Stake, p.TakeProfit, p.StopLoss)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

// DeletePosition removes a closed or liquidated position. Reporting not-found
// lets the caller that lost the close race skip its payout: whichever deleter
// actually removed the row owns the settlement.
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

const positionSelect = `SELECT id, guild_id, user_id, symbol, direction, entry_price, quantity, leverage, stake, take_profit, stop_loss, opened_at FROM positions`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.GuildID, &u.UserID, &u.Balance, &u.TotalXP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Level = LevelForXP(u.TotalXP)
	return &u, nil
}

func scanPosition(row pgx.Row) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.ID, &p.GuildID, &p.UserID, &p.Symbol, &p.Direction, &p.EntryPrice,
		&p.Quantity, &p.Leverage, &p.Stake, &p.TakeProfit, &p.StopLoss, &p.OpenedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPositions(rows pgx.Rows) ([]*models.Position, error) {
	var out []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("position rows")
		return nil, err
	}
	return out, nil
}
