package g2048

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"arcade-go/session"
)

func TestMoveBoardLeftMerges(t *testing.T) {
	board := [][]int{
		{2, 2, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}
	next, gained, moved := MoveBoard(board, session.ActLeft)
	assert.True(t, moved)
	assert.Equal(t, int64(4), gained)
	assert.Equal(t, []int{4, 0, 0, 0}, next[0])
	// input board untouched
	assert.Equal(t, []int{2, 2, 0, 0}, board[0])
}

func TestMergeLine(t *testing.T) {
	tests := []struct {
		name   string
		in     []int
		want   []int
		gained int64
		moved  bool
	}{
		{"merge pair", []int{2, 2, 0, 0}, []int{4, 0, 0, 0}, 4, true},
		{"merge once per step", []int{4, 4, 8, 0}, []int{8, 8, 0, 0}, 8, true},
		{"two pairs", []int{2, 2, 2, 2}, []int{4, 4, 0, 0}, 8, true},
		{"compress only", []int{0, 2, 0, 4}, []int{2, 4, 0, 0}, 0, true},
		{"no change", []int{2, 4, 8, 16}, []int{2, 4, 8, 16}, 0, false},
		{"empty", []int{0, 0, 0, 0}, []int{0, 0, 0, 0}, 0, false},
		{"triple merges leftmost", []int{4, 4, 4, 0}, []int{8, 4, 0, 0}, 8, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, gained, moved := mergeLine(tc.in)
			assert.Equal(t, tc.want, out)
			assert.Equal(t, tc.gained, gained)
			assert.Equal(t, tc.moved, moved)
		})
	}
}

func TestApplyInvalidDirection(t *testing.T) {
	g := NewSeeded(1)
	st := State{Board: [][]int{
		{2, 4, 8, 16},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}}
	// the top row cannot move left; the rest is empty
	next, step := g.Apply(st, session.Action{Name: session.ActLeft})
	assert.True(t, step.Invalid)
	assert.Equal(t, st.Board, next.(State).Board)
	assert.Zero(t, next.(State).Moves)
}

func TestApplyMoveSpawnsAndScores(t *testing.T) {
	g := NewSeeded(7)
	st := State{Board: [][]int{
		{2, 2, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}}
	next, step := g.Apply(st, session.Action{Name: session.ActLeft})
	require.True(t, step.Moved)
	s := next.(State)
	assert.Equal(t, int64(4), s.Score)
	assert.Equal(t, int64(1), s.Moves)
	assert.Equal(t, int64(4*xpPerPoint), s.XP)
	assert.Equal(t, 4, s.Board[0][0])
	// exactly one tile spawned after the merge
	assert.Equal(t, 2, countTiles(s.Board))
}

func TestApplyStopIsTerminal(t *testing.T) {
	g := NewSeeded(1)
	st := State{Board: emptyBoard(boardSize), Score: 100, Moves: 9, XP: 500}
	next, step := g.Apply(st, session.Action{Name: session.ActStop})
	assert.True(t, step.Terminal)
	assert.Equal(t, session.ReasonStop, step.Reason)
	assert.True(t, g.Terminal(next))

	set := g.Settle(next, step.Reason)
	assert.Equal(t, int64(100), set.Score)
	assert.Equal(t, int64(500), set.XP)
	assert.Positive(t, set.Earnings)
}

func TestGameOver(t *testing.T) {
	stuck := [][]int{
		{2, 4, 2, 4},
		{4, 2, 4, 2},
		{2, 4, 2, 4},
		{4, 2, 4, 2},
	}
	assert.True(t, GameOver(stuck))

	mergeable := [][]int{
		{2, 2, 4, 8},
		{4, 8, 16, 2},
		{2, 4, 8, 16},
		{16, 2, 4, 8},
	}
	assert.False(t, GameOver(mergeable))

	withEmpty := emptyBoard(boardSize)
	withEmpty[0][0] = 2
	assert.False(t, GameOver(withEmpty))
}

func TestEarnings(t *testing.T) {
	assert.Zero(t, Earnings(0, 0, time.Minute))
	assert.Zero(t, Earnings(-4, 2, time.Minute))

	// score 100 over 10 moves in 0 elapsed: 100 * (1 + 10/10) * 1 = 200
	assert.Equal(t, int64(200), Earnings(100, 10, 0))
	// elapsed bonus caps at 5 minutes
	assert.Equal(t, Earnings(100, 10, 5*time.Minute), Earnings(100, 10, time.Hour))
}

func countTiles(board [][]int) int {
	n := 0
	for _, row := range board {
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

func sumTiles(board [][]int) int {
	n := 0
	for _, row := range board {
		for _, v := range row {
			n += v
		}
	}
	return n
}

func randomBoard(t *rapid.T) [][]int {
	board := emptyBoard(boardSize)
	for r := range board {
		for c := range board {
			// powers of two or empty, as produced by real play
			exp := rapid.IntRange(0, 10).Draw(t, "exp")
			if exp > 0 {
				board[r][c] = 1 << exp
			}
		}
	}
	return board
}

func TestMoveBoardPreservesTileSum(t *testing.T) {
	dirs := []string{session.ActUp, session.ActDown, session.ActLeft, session.ActRight}
	rapid.Check(t, func(t *rapid.T) {
		board := randomBoard(t)
		dir := rapid.SampledFrom(dirs).Draw(t, "dir")
		next, gained, _ := MoveBoard(board, dir)
		assert.Equal(t, sumTiles(board), sumTiles(next), "merging never changes the tile sum")
		assert.GreaterOrEqual(t, gained, int64(0))
	})
}

func TestMoveBoardNeverIncreasesTileCount(t *testing.T) {
	dirs := []string{session.ActUp, session.ActDown, session.ActLeft, session.ActRight}
	rapid.Check(t, func(t *rapid.T) {
		board := randomBoard(t)
		dir := rapid.SampledFrom(dirs).Draw(t, "dir")
		next, _, _ := MoveBoard(board, dir)
		assert.LessOrEqual(t, countTiles(next), countTiles(board))
	})
}

func TestSpawnTileFillsOneEmptyCell(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rapid.Check(t, func(t *rapid.T) {
		board := randomBoard(t)
		before := countTiles(board)
		next := SpawnTile(board, rng)
		if before == boardSize*boardSize {
			assert.Equal(t, before, countTiles(next))
			return
		}
		assert.Equal(t, before+1, countTiles(next))
		// the spawn is always a 2 or a 4 on a previously empty cell
		for r := range next {
			for c := range next[r] {
				if board[r][c] != next[r][c] {
					assert.Zero(t, board[r][c])
					assert.Contains(t, []int{2, 4}, next[r][c])
				}
			}
		}
	})
}

func TestFullPlaythroughStaysConsistent(t *testing.T) {
	g := NewSeeded(99)
	st, err := g.Initial(map[string]string{"owner": "u1"})
	require.NoError(t, err)

	dirs := []string{session.ActLeft, session.ActUp, session.ActRight, session.ActDown}
	var score int64
	for i := 0; i < 200; i++ {
		next, step := g.Apply(st, session.Action{Name: dirs[i%4]})
		if step.Invalid {
			continue
		}
		s := next.(State)
		assert.GreaterOrEqual(t, s.Score, score, "score never decreases")
		score = s.Score
		st = next
		if step.Terminal {
			break
		}
	}
}
