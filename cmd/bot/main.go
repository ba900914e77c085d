package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hackathon-bot/internal/config"
	"hackathon-bot/internal/conversation"
	"hackathon-bot/internal/export"
	"hackathon-bot/internal/i18n"
	"hackathon-bot/internal/logger"
	"hackathon-bot/internal/server"
	"hackathon-bot/internal/service"
	"hackathon-bot/internal/sheets"
	"hackathon-bot/internal/state"
	"hackathon-bot/internal/storage"
	"hackathon-bot/internal/storage/memory"
	"hackathon-bot/internal/storage/postgres"
	"hackathon-bot/internal/tgbot"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("bot stopped", zap.Error(err))
	}
	lg.Info("bye")
}

func run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	loc := cfg.Location()

	var (
		store  storage.Store
		health server.HealthFunc = func(context.Context) error { return nil }
		pg     *postgres.Store
	)
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		var err error
		pg, err = postgres.New(ctx, cfg.DatabaseURL, lg)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store, health = pg, pg.Health
	default:
		lg.Warn("using in-memory storage, data is lost on restart")
		store = memory.New()
	}

	var states state.Store
	switch cfg.StateBackend {
	case config.DriverPostgres:
		states = pg.StateStore(cfg.StateTTL)
	case config.DriverRedis:
		rdb, err := state.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		states = state.NewRedisStore(rdb, cfg.Environment, cfg.StateTTL, lg)
	default:
		states = state.NewMemoryStore(cfg.StateTTL)
	}

	tr, err := i18n.New()
	if err != nil {
		return err
	}

	bot, err := tgbot.Connect(cfg.TelegramToken)
	if err != nil {
		return err
	}
	lg.Info("authorized on telegram", zap.String("bot", bot.Self.UserName))
	sender := tgbot.Sender{Bot: bot}

	users := service.NewUsers(store, lg, cfg.AdminTGIDs, cfg.ConsentVersion, time.Now)
	hacks := service.NewHackathons(store, lg)
	teams := service.NewTeams(store, lg, nil)
	subs := service.NewSubmissions(store, lg)
	bc := service.NewBroadcaster(store, sender, lg, cfg.BroadcastInterval)
	rem := service.NewReminders(store, bc, lg, cfg.ReminderWindow, tgbot.ReminderText(tr, loc), time.Now)

	engine := conversation.New(conversation.Deps{
		States:      states,
		Users:       users,
		Hackathons:  hacks,
		Teams:       teams,
		Submissions: subs,
		Broadcaster: bc,
		Log:         lg.Component("conversation"),
		Now:         time.Now,
		Location:    loc,
	})
	exporter := export.New(store, loc)

	baseURL := cfg.BasePublicURL
	if baseURL == "" {
		baseURL = "http://localhost" + cfg.HTTPAddr
		if !strings.HasPrefix(cfg.HTTPAddr, ":") {
			baseURL = "http://" + cfg.HTTPAddr
		}
	}

	deps := tgbot.Deps{
		Bot:          bot,
		BotName:      bot.Self.UserName,
		Translator:   tr,
		Users:        users,
		Hackathons:   hacks,
		Teams:        teams,
		Submissions:  subs,
		Broadcaster:  bc,
		Engine:       engine,
		Exports:      exporter,
		Log:          lg.Component("tgbot"),
		Location:     loc,
		Now:          time.Now,
		BaseURL:      baseURL,
		ExportSecret: cfg.ExportSecret,
		Workers:      cfg.Workers,
	}
	if cfg.SheetsEnabled() {
		mirror, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			return err
		}
		deps.Sheets = mirror
	}
	app := tgbot.New(deps)

	httpSrv := server.New(cfg, exporter, health, lg.Component("http"))
	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", zap.Error(err))
		}
	}()

	remLog := lg.Component("reminders")
	go service.Every(ctx, cfg.ReminderInterval, remLog, "reminders", func(ctx context.Context) error {
		n, err := rem.Sweep(ctx)
		if n > 0 {
			remLog.Info("deadline reminders sent", zap.Int("recipients", n))
		}
		return err
	})
	if r, ok := states.(state.Reaper); ok {
		go service.Every(ctx, time.Hour, lg, "state_reaper", func(ctx context.Context) error {
			n, err := r.Reap(ctx, time.Now().Add(-cfg.StateTTL))
			if n > 0 {
				lg.Info("expired conversations dropped", zap.Int64("count", n))
			}
			return err
		})
	}

	runErr := app.Run(ctx)

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
