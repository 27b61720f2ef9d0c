package models

import (
	"time"
)

// User is the per-guild economy record backing every ledger operation.
type User struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	TotalXP   int64     `json:"total_xp"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GameStats tracks per-game accumulated XP and the user's best score.
type GameStats struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Game      string    `json:"game"`
	XP        int64     `json:"xp"`
	HighScore int64     `json:"high_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LevelUp is returned by AddXP when the awarded XP crossed a level boundary.
type LevelUp struct {
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
}
