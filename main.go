package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/actors"
	"github.com/sidereusnuntius/fedhost/internal/apps"
	"github.com/sidereusnuntius/fedhost/internal/authserver"
	"github.com/sidereusnuntius/fedhost/internal/client"
	"github.com/sidereusnuntius/fedhost/internal/config"
	db "github.com/sidereusnuntius/fedhost/internal/db/impl"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/federation"
	"github.com/sidereusnuntius/fedhost/internal/federation/fetch"
	"github.com/sidereusnuntius/fedhost/internal/initialization"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/realtime"
	"github.com/sidereusnuntius/fedhost/internal/registry"
	service "github.com/sidereusnuntius/fedhost/internal/service/impl"
	"github.com/sidereusnuntius/fedhost/internal/sites"
	"github.com/sidereusnuntius/fedhost/internal/status"
	"github.com/sidereusnuntius/fedhost/internal/storage/filestore"
	"github.com/sidereusnuntius/fedhost/internal/vhost"
	"github.com/sidereusnuntius/fedhost/internal/watcher"
	"github.com/sidereusnuntius/fedhost/internal/web"
	"github.com/sidereusnuntius/fedhost/internal/wellknown"
	"golang.org/x/time/rate"

	_ "github.com/mattn/go-sqlite3"
)

const (
	SessionCookie   = "fedhost_session"
	SweepInterval   = 10 * time.Minute
	ShutdownTimeout = 10 * time.Second
	// per remote host
	DeliveryRate  = rate.Limit(2)
	DeliveryBurst = 4
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, &cfg); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run(ctx context.Context, cfg *config.Configuration) error {
	backup, err := initialization.Backup(cfg.DbPath, cfg.BackupsDir, time.Now())
	if err != nil {
		return fmt.Errorf("backing up the database: %w", err)
	}
	if backup != "" {
		log.Info().Str("file", backup).Msg("database backed up")
	}

	sqlDB, err := initialization.OpenDB(cfg.DbPath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err = initialization.SetupDB(sqlDB, cfg.MigrationsDir, "fedhost"); err != nil {
		return fmt.Errorf("migrating the database: %w", err)
	}
	log.Info().Str("path", cfg.DbPath).Msg("database ready")

	tasks, err := initialization.InitQueue(cfg)
	if err != nil {
		return fmt.Errorf("unable to open the task database: %w", err)
	}

	d := db.New(sqlDB)
	bus := events.New()
	defer bus.Close()

	httpClient := client.New(d, &http.Client{Timeout: cfg.FederationTimeout}, wellknown.Software+"/"+wellknown.Version, DeliveryRate, DeliveryBurst)
	queue := federation.NewQueue(cfg, d, httpClient)
	resolver := fetch.New(d, httpClient, queue, tasks)
	svc := service.New(cfg, d, queue, resolver, bus)
	if err = svc.EnsureAdmin(ctx); err != nil {
		return fmt.Errorf("creating the admin account: %w", err)
	}

	keys, err := oauth.LoadOrCreateKeys(cfg.JWKSPath, cfg.RsaKeySize)
	if err != nil {
		return fmt.Errorf("loading the signing keys: %w", err)
	}
	tokens := oauth.New(cfg, d, keys)
	limits := ratelimit.NewSet(d)
	sessions := web.NewSharedSessionManager(cfg, sqlDB, SessionCookie)

	files, err := filestore.New(cfg.SitesDir)
	if err != nil {
		return err
	}

	hub := realtime.New()
	poller := status.New(cfg.StatusPollingInterval, nil, bus)
	discovery := wellknown.New(cfg, svc, d)
	actorsHandler := actors.New(cfg, resolver, svc)

	admin := apps.NewAdmin(cfg, apps.AdminDeps{
		Accounts:  svc,
		Sessions:  sessions,
		Files:     files,
		Queue:     d,
		Hub:       hub,
		Discovery: discovery,
		Limits:    limits,
	})
	dispatcher := vhost.New(cfg.BaseDomain, admin.Router())
	dispatcher.Reserve(config.StatusSubdomain, apps.StatusRouter(poller))
	dispatcher.Reserve(config.RegisterSubdomain, apps.NewRegister(cfg, svc, tokens, sessions, limits).Router())
	dispatcher.Reserve(config.AuthSubdomain, authserver.New(cfg, tokens, svc, sessions, limits).Router())
	dispatcher.Reserve(config.AppSubdomain, apps.AppRouter(cfg.AppDir))

	routes := registry.New(apps.NewAPI(cfg, svc, svc, d).Catalog(), tokens, limits)
	n, err := routes.LoadDir(cfg.RoutesDir)
	if err != nil {
		return fmt.Errorf("loading routes: %w", err)
	}
	log.Info().Int("routes", n).Str("dir", cfg.RoutesDir).Msg("routes registered")

	manager := sites.New(cfg, sites.Deps{
		Store:         d,
		Accounts:      svc,
		Dispatcher:    dispatcher,
		Poller:        poller,
		Hub:           hub,
		Bus:           bus,
		Routes:        routes,
		Sessions:      sessions,
		SessionCookie: SessionCookie,
		UserRoutes: func(r chi.Router, owner domain.User) {
			discovery.MountWebfinger(r)
			actorsHandler.Mount(r, owner)
		},
		Handlers:  apps.SiteHandlers(svc),
		ProbeBase: &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", cfg.Port)},
	})
	admin.Bind(manager, dispatcher)
	defer manager.Close()
	defer poller.Stop()

	w, err := watcher.New(watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()
	if err = w.Watch(cfg.RoutesDir, routes, 0); err != nil {
		return err
	}
	if err = w.Watch(cfg.SitesDir, manager, 1); err != nil {
		return err
	}

	// workers stop with ctx, which also ends when a listener fails. They are drained before the deferred closes
	// run, so an in-flight delivery still reaches the database.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var workers sync.WaitGroup
	workers.Go(func() { w.Run(ctx) })
	workers.Go(func() { hub.Run(ctx, bus) })
	workers.Go(func() { manager.Run(ctx) })
	workers.Go(func() { queue.Run(ctx) })
	workers.Go(func() { sweep(ctx, tokens, d) })
	tasks.Start(context.WithoutCancel(ctx))

	n, err = manager.LoadAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("some sites could not be loaded")
	}
	log.Info().Int("sites", n).Msg("sites loaded")

	err = serve(ctx, cfg, dispatcher, hub)
	cancel()
	workers.Wait()

	stopping, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if !tasks.Stop(stopping) {
		log.Warn().Msg("background tasks did not stop in time")
	}
	log.Info().Msg("workers stopped")
	return err
}

func sweep(ctx context.Context, tokens *oauth.Service, limits interface {
	SweepRateLimits(ctx context.Context, now time.Time) (int64, error)
}) {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			tokens.Sweep(ctx)
			if _, err := limits.SweepRateLimits(ctx, now); err != nil {
				log.Error().Err(err).Msg("failed to sweep rate limit counters")
			}
		}
	}
}

// serve listens on Port, and on SSLPort when a certificate pair exists, until ctx is done.
func serve(ctx context.Context, cfg *config.Configuration, h http.Handler, hub *realtime.Hub) error {
	servers := []*http.Server{{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: h}}
	cert, key := cfg.CertFiles()
	_, certErr := os.Stat(cert)
	_, keyErr := os.Stat(key)
	tls := certErr == nil && keyErr == nil
	if tls {
		servers = append(servers, &http.Server{Addr: fmt.Sprintf(":%d", cfg.SSLPort), Handler: h})
	} else {
		log.Info().Str("dir", cfg.SSLCertsDir).Msg("no certificate found, serving plain http only")
	}

	errs := make(chan error, len(servers))
	for i, s := range servers {
		go func() {
			var err error
			if i == 1 {
				log.Info().Uint16("port", cfg.SSLPort).Msg("started https server")
				err = s.ListenAndServeTLS(cert, key)
			} else {
				log.Info().Uint16("port", cfg.Port).Str("domain", cfg.BaseDomain).Msg("started server")
				err = s.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errs:
	}

	hub.CloseAll()
	shutdown, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if e := s.Shutdown(shutdown); e != nil {
			log.Warn().Err(e).Str("addr", s.Addr).Msg("server did not shut down cleanly")
		}
	}
	return err
}
