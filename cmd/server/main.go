package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/portalwatch/internal/api"
	"github.com/dennisdiepolder/monti/portalwatch/internal/cache"
	"github.com/dennisdiepolder/monti/portalwatch/internal/config"
	"github.com/dennisdiepolder/monti/portalwatch/internal/decoder"
	"github.com/dennisdiepolder/monti/portalwatch/internal/driver"
	"github.com/dennisdiepolder/monti/portalwatch/internal/event"
	"github.com/dennisdiepolder/monti/portalwatch/internal/ingestion"
	"github.com/dennisdiepolder/monti/portalwatch/internal/metrics"
	"github.com/dennisdiepolder/monti/portalwatch/internal/prefs"
	"github.com/dennisdiepolder/monti/portalwatch/internal/session"
	"github.com/dennisdiepolder/monti/portalwatch/internal/view"
	"github.com/dennisdiepolder/monti/portalwatch/internal/websocket"
	"github.com/dennisdiepolder/monti/portalwatch/internal/window"
	"github.com/dennisdiepolder/monti/portalwatch/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// driverCommandTimeout bounds browser commands that carry no deadline
const driverCommandTimeout = 30 * time.Second

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(os.Args[1:]...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("portal_url", cfg.PortalURL).
		Str("prefs_dir", cfg.PrefsDir).
		Str("log_level", cfg.LogLevel).
		Msg("starting portalwatch")

	// Preferences
	prefStore := prefs.NewFileStore(cfg.PrefsDir, cfg.ColumnConfigFile, cfg.SelectedNamesFile)
	engine := prefs.Load(prefStore, log.Logger)

	// Ingestion: decoder -> processor -> store
	store := cache.NewAgentStore()
	changes := cache.NewChangeLog()
	dec := decoder.New(1024, log.Logger)
	processor := ingestion.NewProcessor(store, changes, log.Logger)

	// Presentation feed
	hub := websocket.NewHub(log.Logger)
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)

	// Session: hidden browser via the driver relay, window shell via exec
	relay := driver.NewRelay(driver.Config{
		PortalURL:        cfg.PortalURL,
		SessionStatePath: cfg.SessionStatePath(),
		CommandTimeout:   driverCommandTimeout,
	}, log.Logger)
	launcher := window.NewLauncher(cfg.WindowCommand, window.DefaultGrace, log.Logger)
	orchestrator := session.NewOrchestrator(relay, launcher, dec, engine, session.Config{
		WindowURL:       cfg.WindowURL,
		LoginTimeout:    cfg.LoginTimeout,
		SSEPollInterval: cfg.SSEPollInterval,
	}, log.Logger)

	builder := view.NewBuilder(store, changes, engine, orchestrator, hub, cfg.TickInterval, log.Logger)

	receiver := event.NewReceiver(dec, store, log.Logger)
	viewAPI := api.NewViewHandler(builder, orchestrator, hub, relay, log.Logger)
	prefsAPI := api.NewPreferencesHandler(engine, builder, log.Logger)
	sessionAPI := api.NewSessionHandler(orchestrator, log.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Get().Handler())
	r.Get("/ws", wsHandler.ServeHTTP)
	r.Get("/ws/driver", driver.NewHandler(relay, log.Logger).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", viewAPI.GetView)
		r.Get("/status", viewAPI.GetStatus)

		r.Get("/columns", prefsAPI.GetColumns)
		r.Put("/columns/visible", prefsAPI.SetAllColumnsVisible)
		r.Post("/columns/{index}/move", prefsAPI.MoveColumn)
		r.Put("/columns/{name}/visible", prefsAPI.SetColumnVisible)

		r.Get("/filter/names", prefsAPI.GetNameOptions)
		r.Put("/filter/names", prefsAPI.ToggleName)
		r.Delete("/filter", prefsAPI.ClearFilter)

		r.Post("/login", sessionAPI.Login)
		r.Post("/quit", sessionAPI.Quit)
	})

	// Internal routes for external feeders
	r.Route("/internal", func(r chi.Router) {
		r.Post("/frames", receiver.HandleFrames)
		r.Get("/frames/stats", receiver.GetStats)
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group

	// Signals
	{
		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		g.Add(func() error {
			<-sigCtx.Done()
			if ctx.Err() == nil {
				log.Info().Msg("shutdown signal received")
			}
			return nil
		}, func(error) {
			stop()
		})
	}

	// Session lifetime ends the process. It is interrupted before the loops
	// so the driver relay is still up while the browser gets its close.
	addSession(&g, func() error { return orchestrator.Run(ctx) }, orchestrator.Quit)

	// HTTP server
	g.Add(func() error {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	})

	// Background loops
	addLoop(&g, ctx, hub.Run)
	addLoop(&g, ctx, relay.Run)
	addLoop(&g, ctx, func(ctx context.Context) { processor.Run(ctx, dec.Events()) })
	addLoop(&g, ctx, builder.Start)

	if err := g.Run(); err != nil {
		log.Error().Err(err).Msg("stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// addSession runs the session actor. Its interrupt asks the session to quit
// and blocks until execute has returned, holding back the actors added after it.
func addSession(g *run.Group, execute func() error, quit func()) {
	done := make(chan struct{})
	g.Add(func() error {
		defer close(done)
		return execute()
	}, func(error) {
		quit()
		<-done
	})
}

// addLoop runs fn until the group is interrupted
func addLoop(g *run.Group, parent context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	g.Add(func() error {
		fn(ctx)
		return nil
	}, func(error) {
		cancel()
	})
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"portalwatch"}`)
}
