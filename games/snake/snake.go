// Package snake implements the snake board game as a session variant.
package snake

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
	Kind = "snake"

	startSize     = 5
	baseRate      = 2.0
	pointsPerFood = 10
	xpPerPoint    = 5
	// expand the grid once the snake fills this share of it
	expandRatio = 0.75
)

// Point is a grid cell; X is the column, Y the row.
type Point struct {
	X, Y int
}

// State is the full snake session state, head-first body.
type State struct {
	Owner     string
	GridSize  int
	Body      []Point
	Dir       string
	Food      Point
	Score     int64
	Moves     int64
	XP        int64
	StartedAt time.Time
	Over      bool
}

// Head returns the snake's head cell.
func (s State) Head() Point { return s.Body[0] }

// Game implements session.Game for snake.
type Game struct {
	rng *rand.Rand
}

// New creates the snake variant with a time-seeded RNG.
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
		Name:        "snake",
		Description: "Steer the snake, eat food, earn coins.",
	}
}

// Initial places a single-segment snake in the middle and one food cell.
func (g *Game) Initial(args map[string]string) (session.State, error) {
	st := State{
		Owner:     args["owner"],
		GridSize:  startSize,
		Body:      []Point{{X: startSize / 2, Y: startSize / 2}},
		Dir:       session.ActRight,
		StartedAt: time.Now(),
	}
	st.Food = spawnFood(st, g.rng)
	return st, nil
}

// Apply moves the head one cell with toroidal wraparound. Reversing the
// current heading is rejected as a no-op; self-collision is terminal; food
// grows the snake and may expand the grid.
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

	if isReverse(s.Dir, act.Name) && len(s.Body) > 1 {
		return s, session.Step{Invalid: true, Note: "You can't reverse into yourself."}
	}

	head := wrap(step(s.Head(), act.Name), s.GridSize)
	for _, seg := range s.Body {
		if seg == head {
			s.Over = true
			s.Moves++
			return s, session.Step{Moved: true, Terminal: true, Reason: session.ReasonGameOver}
		}
	}

	s.Dir = act.Name
	s.Moves++

	body := make([]Point, 0, len(s.Body)+1)
	body = append(body, head)
	if head == s.Food {
		body = append(body, s.Body...)
		s.Body = body
		s.Score += pointsPerFood
		s.XP += pointsPerFood * xpPerPoint
		if float64(len(s.Body)) > expandRatio*float64(s.GridSize*s.GridSize) {
			s.GridSize++
		}
		s.Food = spawnFood(s, g.rng)
	} else {
		body = append(body, s.Body[:len(s.Body)-1]...)
		s.Body = body
	}

	return s, session.Step{Moved: true}
}

// Terminal reports whether the run has ended.
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

// Earnings applies the board-game payout formula with the snake base rate.
func Earnings(score, moves int64, elapsed time.Duration) int64 {
	if score <= 0 {
		return 0
	}
	efficiency := float64(score) / math.Max(float64(moves), 1)
	minutes := math.Min(elapsed.Minutes(), 5)
	return int64(float64(score) * baseRate * (1 + efficiency/10) * (1 + minutes/5))
}

// View renders the live grid with direction controls.
func (g *Game) View(st session.State) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	s := st.(State)
	embed := utils.CreateBrandedEmbed("Snake", renderGrid(s), utils.ColorPlaying)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Score", Value: utils.FormatCoins(s.Score), Inline: true},
		{Name: "Length", Value: fmt.Sprintf("%d", len(s.Body)), Inline: true},
		{Name: "Grid", Value: fmt.Sprintf("%dx%d", s.GridSize, s.GridSize), Inline: true},
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "The edges wrap around. Stop anytime to cash out."}
	return embed, controls(s.Owner)
}

// FinalView renders the settled grid.
func (g *Game) FinalView(st session.State, out *session.Outcome) *discordgo.MessageEmbed {
	s := st.(State)
	color := utils.ColorNeutral
	if out != nil && out.Settlement.Earnings > 0 {
		color = utils.ColorWin
	}
	embed := utils.CreateBrandedEmbed("Snake — Game Over", renderGrid(s), color)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Final Score", Value: utils.FormatCoins(s.Score), Inline: true},
	}
	if out != nil {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Earnings", Value: fmt.Sprintf("%s %s", utils.FormatCoins(out.Settlement.Earnings), utils.CoinEmoji), Inline: true},
			&discordgo.MessageEmbedField{Name: "XP", Value: fmt.Sprintf("+%s", utils.FormatCoins(out.Settlement.XP)), Inline: true},
		)
		if out.NewRecord {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🏆 New Record", Value: "You set a new personal best!", Inline: false})
		}
	}
	return embed
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

func renderGrid(s State) string {
	occupied := make(map[Point]bool, len(s.Body))
	for _, seg := range s.Body {
		occupied[seg] = true
	}
	head := s.Head()

	var b strings.Builder
	for y := 0; y < s.GridSize; y++ {
		for x := 0; x < s.GridSize; x++ {
			p := Point{X: x, Y: y}
			switch {
			case p == head:
				b.WriteString("🟢")
			case occupied[p]:
				b.WriteString("🟩")
			case p == s.Food:
				b.WriteString("🍎")
			default:
				b.WriteString("⬛")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func step(p Point, dir string) Point {
	switch dir {
	case session.ActUp:
		return Point{X: p.X, Y: p.Y - 1}
	case session.ActDown:
		return Point{X: p.X, Y: p.Y + 1}
	case session.ActLeft:
		return Point{X: p.X - 1, Y: p.Y}
	case session.ActRight:
		return Point{X: p.X + 1, Y: p.Y}
	}
	return p
}

func wrap(p Point, size int) Point {
	return Point{X: ((p.X % size) + size) % size, Y: ((p.Y % size) + size) % size}
}

func isReverse(cur, next string) bool {
	switch cur {
	case session.ActUp:
		return next == session.ActDown
	case session.ActDown:
		return next == session.ActUp
	case session.ActLeft:
		return next == session.ActRight
	case session.ActRight:
		return next == session.ActLeft
	}
	return false
}

func spawnFood(s State, rng *rand.Rand) Point {
	occupied := make(map[Point]bool, len(s.Body))
	for _, seg := range s.Body {
		occupied[seg] = true
	}
	var empty []Point
	for y := 0; y < s.GridSize; y++ {
		for x := 0; x < s.GridSize; x++ {
			p := Point{X: x, Y: y}
			if !occupied[p] {
				empty = append(empty, p)
			}
		}
	}
	if len(empty) == 0 {
		return Point{X: -1, Y: -1}
	}
	return empty[rng.Intn(len(empty))]
}
