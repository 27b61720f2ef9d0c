package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"arcade-go/cogs"
	"arcade-go/games/coinflip"
	"arcade-go/games/futures"
	"arcade-go/games/g2048"
	"arcade-go/games/snake"
	"arcade-go/session"
	"arcade-go/utils"
)

type app struct {
	cfg     *utils.Config
	shell   *session.Shell
	economy *cogs.Economy
	social  *cogs.Social
	crates  *cogs.Crates
	flip    *coinflip.Handler
	futures *futures.Handlers
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if cfg.Bot.Token == "" {
		log.Fatal().Msg("BOT_TOKEN not set")
	}
	if cfg.Database.URL == "" {
		log.Fatal().Msg("DATABASE_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := utils.NewStore(ctx, &cfg.Database, &cfg.Economy)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer store.Close()
	log.Info().Msg("database connected")

	events, err := utils.NewNATSPublisher(&cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("connect event bus")
	}
	defer events.Close()

	market := utils.NewMarketFeed(&cfg.Market)
	market.Start(ctx)
	defer market.Close()

	renderer := utils.NewRenderClient(&cfg.Renderer)

	shell := &session.Shell{
		Reg: session.NewRegistry(),
		Deps: session.Deps{
			Ledger: store,
			Events: events,
		},
		Timeouts: session.Timeouts{
			Inactivity: cfg.Session.InactivityTimeout,
			Lifetime:   cfg.Session.MaxLifetime,
		},
		Market: market,
	}

	a := &app{
		cfg:     cfg,
		shell:   shell,
		economy: &cogs.Economy{Ledger: store, Cfg: &cfg.Economy},
		social:  &cogs.Social{Renderer: renderer},
		crates:  &cogs.Crates{Ledger: store, Events: events, Cfg: &cfg.Economy},
		flip:    &coinflip.Handler{Ledger: store, Events: events},
		futures: &futures.Handlers{Shell: shell, Ledger: store, Market: market, Events: events},
	}

	sweeper := &futures.Sweeper{
		Ledger:   store,
		Market:   market,
		Events:   events,
		Interval: cfg.Market.SweepEvery,
	}
	go sweeper.Run(ctx)

	dg, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("create discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	dg.AddHandler(a.onReady)
	dg.AddHandler(a.onInteraction)

	if err := dg.Open(); err != nil {
		log.Fatal().Err(err).Msg("open discord connection")
	}
	defer dg.Close()

	go startHealthServer(cfg.Bot.HealthPort)

	log.Info().Msg("bot running, press CTRL+C to exit")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-stop
	log.Info().Msg("shutting down")
}

func (a *app) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Info().Str("user", event.User.Username).Str("id", event.User.ID).Msg("logged in")

	if err := s.UpdateGameStatus(0, "arcade games"); err != nil {
		log.Warn().Err(err).Msg("update status")
	}
	if err := a.registerCommands(s); err != nil {
		log.Error().Err(err).Msg("register commands")
	}
}

func (a *app) registerCommands(s *discordgo.Session) error {
	commands := []*discordgo.ApplicationCommand{
		g2048.Cmd(),
		snake.Cmd(),
		coinflip.Cmd(),
		futures.Cmd(),
		a.crates.Cmd(),
	}
	commands = append(commands, a.economy.Cmds()...)
	commands = append(commands, a.social.Cmds()...)

	for _, cmd := range commands {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
	}
	log.Info().Int("count", len(commands)).Msg("slash commands registered")
	return nil
}

func (a *app) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		a.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		a.onComponent(s, i)
	}
}

func (a *app) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.ApplicationCommandData().Name {
	case "2048":
		a.shell.Launch(s, i, g2048.New(), nil)
	case "snake":
		a.shell.Launch(s, i, snake.New(), nil)
	case "coinflip":
		a.flip.Handle(s, i)
	case "futures":
		a.futures.HandleCommand(s, i)
	case "crate":
		a.crates.Handle(s, i)
	case "balance":
		a.economy.HandleBalance(s, i)
	case "daily":
		a.economy.HandleDaily(s, i)
	case "profile":
		a.economy.HandleProfile(s, i)
	case "hug", "slap":
		a.social.Handle(s, i)
	}
}

func (a *app) onComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	kind, _, ok := strings.Cut(customID, ":")
	if !ok {
		return
	}
	switch kind {
	case g2048.Kind, snake.Kind:
		a.shell.Route(s, i, kind)
	case futures.Kind:
		a.futures.HandleComponent(s, i)
	}
}

func startHealthServer(port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"arcade-bot"}`))
	})
	log.Info().Str("port", port).Msg("health server starting")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error().Err(err).Msg("health server")
	}
}
