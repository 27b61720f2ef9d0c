package utils

// Rank is one rung of the XP ladder.
type Rank struct {
	Name       string
	Icon       string
	XPRequired int64
	Color      int
}

// Ranks in ascending XP order.
var Ranks = []Rank{
	{"Novice", "🥉", 0, 0xcd7f32},
	{"Player", "🥈", 10000, 0xc0c0c0},
	{"Challenger", "🥇", 40000, 0xffd700},
	{"Veteran", "💰", 125000, 0x22a7f0},
	{"Strategist", "🧠", 350000, 0x1f3a93},
	{"Master", "👑", 650000, 0x9b59b6},
	{"Legend", "🌟", 2000000, 0xf1c40f},
	{"Mythic", "💎", 4500000, 0x1abc9c},
}

// LevelForXP returns the highest rank index reached at the given total XP.
func LevelForXP(totalXP int64) int {
	level := 0
	for i, r := range Ranks {
		if totalXP >= r.XPRequired {
			level = i
		} else {
			break
		}
	}
	return level
}

// RankForXP returns the rank entry and the XP still needed for the next rank
// (0 when the top rank is reached).
func RankForXP(totalXP int64) (Rank, int64) {
	level := LevelForXP(totalXP)
	rank := Ranks[level]
	if level+1 < len(Ranks) {
		return rank, Ranks[level+1].XPRequired - totalXP
	}
	return rank, 0
}
