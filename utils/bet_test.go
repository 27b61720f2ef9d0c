package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBet(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		balance int64
		want    int64
		wantErr bool
	}{
		{"plain", "500", 10_000, 500, false},
		{"commas", "1,500", 10_000, 1500, false},
		{"underscores", "1_500", 10_000, 1500, false},
		{"all", "all", 10_000, 10_000, false},
		{"allin", "ALLIN", 10_000, 10_000, false},
		{"max", "max", 10_000, 10_000, false},
		{"half", "half", 10_001, 5_000, false},
		{"percent", "25%", 10_000, 2_500, false},
		{"percent over 100", "150%", 10_000, 0, true},
		{"k suffix", "10k", 100_000, 10_000, false},
		{"m suffix", "2m", 5_000_000, 2_000_000, false},
		{"uppercase K", "10K", 100_000, 10_000, false},
		{"garbage", "lots", 10_000, 0, true},
		{"empty", "", 10_000, 0, true},
		{"negative", "-50", 10_000, -50, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseBet(tc.input, tc.balance)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatCoins(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-1234567, "-1,234,567"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatCoins(tc.in))
	}
}

func TestLevelForXP(t *testing.T) {
	assert.Equal(t, 0, LevelForXP(0))
	assert.Equal(t, 0, LevelForXP(9_999))
	assert.Equal(t, 1, LevelForXP(10_000))
	assert.Equal(t, 2, LevelForXP(40_000))
	assert.Equal(t, len(Ranks)-1, LevelForXP(10_000_000))
}

func TestRankForXP(t *testing.T) {
	rank, toNext := RankForXP(0)
	assert.Equal(t, "Novice", rank.Name)
	assert.Equal(t, int64(10_000), toNext)

	rank, toNext = RankForXP(10_000_000)
	assert.Equal(t, "Mythic", rank.Name)
	assert.Zero(t, toNext)
}

func TestValidSymbol(t *testing.T) {
	assert.True(t, ValidSymbol("BTCUSDT"))
	assert.True(t, ValidSymbol("1000PEPEUSDT"))
	assert.False(t, ValidSymbol("btcusdt"))
	assert.False(t, ValidSymbol("BTC"))
	assert.False(t, ValidSymbol("BTC-USDT"))
	assert.False(t, ValidSymbol(""))
	assert.False(t, ValidSymbol("AVERYLONGSYMBOLNAME"))
}
