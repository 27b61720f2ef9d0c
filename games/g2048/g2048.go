// Package g2048 implements the 2048 board game as a session variant.
package g2048

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"arcade-go/session"
	"arcade-go/utils"
)

const (
	// Kind is the game identifier used for XP, high scores and routing.
	Kind = "2048"

	boardSize = 4
	baseRate  = 1.0
	xpPerPoint = 5
)

// State is the full 2048 session state. Apply returns a fresh value per step.
type State struct {
	Owner     string
	Board     [][]int
	Score     int64
	Moves     int64
	XP        int64
	StartedAt time.Time
	Over      bool
}

// Game implements session.Game for 2048.
type Game struct {
	rng *rand.Rand
}

// New creates the 2048 variant with a time-seeded RNG.
func New() *Game {
	return &Game{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeeded creates a deterministic variant for tests.
func NewSeeded(seed int64) *Game {
	return &Game{rng: rand.New(rand.NewSource(seed))}
}

// Kind returns the game identifier.
func (g *Game) Kind() string { return Kind }

// Cmd is the slash command definition.
func Cmd() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "2048",
		Description: "Play 2048 and earn coins for your score.",
	}
}

// Initial builds a fresh board with two spawned tiles.
func (g *Game) Initial(args map[string]string) (session.State, error) {
	board := emptyBoard(boardSize)
	board = SpawnTile(board, g.rng)
	board = SpawnTile(board, g.rng)
	return State{
		Owner:     args["owner"],
		Board:     board,
		StartedAt: time.Now(),
	}, nil
}

// Apply performs one transition. Directions run the merge algorithm and spawn
// a tile; stop and timer expiries are terminal; a direction that changes
// nothing is an invalid no-op.
func (g *Game) Apply(st session.State, act session.Action) (session.State, session.Step) {
	s := st.(State)

	switch act.Name {
	case session.ActStop:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonStop}
	case session.ActTimeout:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonTimeout}
	case session.ActExpire:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonExpired}
	case session.ActUp, session.ActDown, session.ActLeft, session.ActRight:
	default:
		return s, session.Step{Invalid: true, Note: "Unknown action."}
	}

	next, gained, moved := MoveBoard(s.Board, act.Name)
	if !moved {
		return s, session.Step{Invalid: true, Note: "That direction doesn't move anything."}
	}

	next = SpawnTile(next, g.rng)
	s.Board = next
	s.Score += gained
	s.Moves++
	// XP accrues per move from the score delta, never re-derived at the end.
	s.XP += gained * xpPerPoint

	if GameOver(next) {
		s.Over = true
		return s, session.Step{Moved: true, Terminal: true, Reason: session.ReasonGameOver}
	}
	return s, session.Step{Moved: true}
}

// Terminal reports whether the board reached a final state.
func (g *Game) Terminal(st session.State) bool {
	return st.(State).Over
}

// Settle converts the accumulated score into coin earnings.
func (g *Game) Settle(st session.State, reason string) session.Settlement {
	s := st.(State)
	return session.Settlement{
		Score:    s.Score,
		Moves:    s.Moves,
		Earnings: Earnings(s.Score, s.Moves, time.Since(s.StartedAt)),
		XP:       s.XP,
	}
}

// Earnings applies the board-game payout formula.
func Earnings(score, moves int64, elapsed time.Duration) int64 {
	if score <= 0 {
		return 0
	}
	efficiency := float64(score) / math.Max(float64(moves), 1)
	minutes := math.Min(elapsed.Minutes(), 5)
	return int64(float64(score) * baseRate * (1 + efficiency/10) * (1 + minutes/5))
}

// View renders the live board with direction controls.
func (g *Game) View(st session.State) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	s := st.(State)
	embed := utils.CreateBrandedEmbed("2048", renderBoard(s.Board), utils.ColorPlaying)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Score", Value: utils.FormatCoins(s.Score), Inline: true},
		{Name: "Moves", Value: fmt.Sprintf("%d", s.Moves), Inline: true},
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Merge tiles. Stop anytime to cash out your score."}
	return embed, controls(s.Owner)
}

// FinalView renders the settled board.
func (g *Game) FinalView(st session.State, out *session.Outcome) *discordgo.MessageEmbed {
	s := st.(State)
	title := "2048 — Game Over"
	color := utils.ColorNeutral
	if out != nil && out.Settlement.Earnings > 0 {
		color = utils.ColorWin
	}
	embed := utils.CreateBrandedEmbed(title, renderBoard(s.Board), color)
	embed.Fields = finalFields(s.Score, out)
	return embed
}

func finalFields(score int64, out *session.Outcome) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Final Score", Value: utils.FormatCoins(score), Inline: true},
	}
	if out == nil {
		return fields
	}
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "Earnings", Value: fmt.Sprintf("%s %s", utils.FormatCoins(out.Settlement.Earnings), utils.CoinEmoji), Inline: true},
		&discordgo.MessageEmbedField{Name: "XP", Value: fmt.Sprintf("+%s", utils.FormatCoins(out.Settlement.XP)), Inline: true},
	)
	if out.NewRecord {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🏆 New Record", Value: "You set a new personal best!", Inline: false})
	}
	if out.LevelUp != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "⬆️ Level Up", Value: fmt.Sprintf("You reached **%s**!", utils.Ranks[out.LevelUp.NewLevel].Name), Inline: false,
		})
	}
	return fields
}

func controls(owner string) []discordgo.MessageComponent {
	id := func(action string) string { return Kind + ":" + action + ":" + owner }
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: id(session.ActLeft), Emoji: &discordgo.ComponentEmoji{Name: "⬅️"}, Style: discordgo.SecondaryButton},
			discordgo.Button{CustomID: id(session.ActUp), Emoji: &discordgo.ComponentEmoji{Name: "⬆️"}, Style: discordgo.SecondaryButton},
			discordgo.Button{CustomID: id(session.ActDown), Emoji: &discordgo.ComponentEmoji{Name: "⬇️"}, Style: discordgo.SecondaryButton},
			discordgo.Button{CustomID: id(session.ActRight), Emoji: &discordgo.ComponentEmoji{Name: "➡️"}, Style: discordgo.SecondaryButton},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: id(session.ActStop), Label: "Stop & Cash Out", Style: discordgo.DangerButton},
		}},
	}
}

func renderBoard(board [][]int) string {
	var b strings.Builder
	b.WriteString("```\n")
	for _, row := range board {
		for _, v := range row {
			if v == 0 {
				b.WriteString("     .")
			} else {
				b.WriteString(fmt.Sprintf("%6d", v))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String()
}

func emptyBoard(n int) [][]int {
	board := make([][]int, n)
	for i := range board {
		board[i] = make([]int, n)
	}
	return board
}

func cloneBoard(board [][]int) [][]int {
	out := make([][]int, len(board))
	for i, row := range board {
		out[i] = make([]int, len(row))
		copy(out[i], row)
	}
	return out
}

// mergeLine compresses non-zero tiles left, merges adjacent equal pairs once
// each left-to-right, recompresses, and pads with zeros.
func mergeLine(line []int) ([]int, int64, bool) {
	compressed := make([]int, 0, len(line))
	for _, v := range line {
		if v != 0 {
			compressed = append(compressed, v)
		}
	}

	merged := make([]int, 0, len(line))
	var gained int64
	for i := 0; i < len(compressed); i++ {
		if i+1 < len(compressed) && compressed[i] == compressed[i+1] {
			merged = append(merged, compressed[i]*2)
			gained += int64(compressed[i] * 2)
			i++
		} else {
			merged = append(merged, compressed[i])
		}
	}

	for len(merged) < len(line) {
		merged = append(merged, 0)
	}

	moved := false
	for i := range line {
		if line[i] != merged[i] {
			moved = true
			break
		}
	}
	return merged, gained, moved
}

// MoveBoard applies one direction to a copy of the board and reports the
// score gained and whether anything changed.
func MoveBoard(board [][]int, dir string) ([][]int, int64, bool) {
	n := len(board)
	next := cloneBoard(board)
	var gained int64
	moved := false

	line := make([]int, n)
	for idx := 0; idx < n; idx++ {
		for j := 0; j < n; j++ {
			switch dir {
			case session.ActLeft:
				line[j] = next[idx][j]
			case session.ActRight:
				line[j] = next[idx][n-1-j]
			case session.ActUp:
				line[j] = next[j][idx]
			case session.ActDown:
				line[j] = next[n-1-j][idx]
			}
		}
		out, g, m := mergeLine(line)
		gained += g
		moved = moved || m
		for j := 0; j < n; j++ {
			switch dir {
			case session.ActLeft:
				next[idx][j] = out[j]
			case session.ActRight:
				next[idx][n-1-j] = out[j]
			case session.ActUp:
				next[j][idx] = out[j]
			case session.ActDown:
				next[n-1-j][idx] = out[j]
			}
		}
	}
	return next, gained, moved
}

// SpawnTile places one tile (2 with 90% weight, 4 with 10%) in a uniformly
// random empty cell of a copied board. A full board is returned unchanged.
func SpawnTile(board [][]int, rng *rand.Rand) [][]int {
	type cell struct{ r, c int }
	var empty []cell
	for r, row := range board {
		for c, v := range row {
			if v == 0 {
				empty = append(empty, cell{r, c})
			}
		}
	}
	if len(empty) == 0 {
		return board
	}
	next := cloneBoard(board)
	pick := empty[rng.Intn(len(empty))]
	value := 2
	if rng.Float64() < 0.1 {
		value = 4
	}
	next[pick.r][pick.c] = value
	return next
}

// GameOver reports a board with no empty cell and no equal adjacent pair.
func GameOver(board [][]int) bool {
	n := len(board)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if board[r][c] == 0 {
				return false
			}
			if c+1 < n && board[r][c] == board[r][c+1] {
				return false
			}
			if r+1 < n && board[r][c] == board[r+1][c] {
				return false
			}
		}
	}
	return true
}
