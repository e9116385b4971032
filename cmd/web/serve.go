// cmd/web/serve.go
//
// Start-up sequence
// -----------------
//
//  1. Load configuration (YAML → HOTBOX_* env → vault references).
//
//  2. Start the daily rotating logger and install the CSRF key.
//
//  3. Open the GeoIP database and MySQL when configured; apply the
//     component schemas when database.migrate is set, and schedule the
//     retention job when database.retention is set.
//
//  4. Register form definitions from forms.dirs on top of the embedded
//     ones.
//
//  5. Start the outbox (SMTP or log-only) and the tracker (HTTP sink or
//     log-only).
//
//  6. Initialise every component and mount its routes on one chi router
//     behind RequestID → RealIP → AccessLog → Recoverer → Security →
//     Enrich → alias rewrite (→ ForceHTTPS when enabled).
//
//  7. Serve until SIGINT/SIGTERM, then drain the outbox and the tracker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/config"
	"github.com/hotboxhair/site/internal/database"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/message"
	"github.com/hotboxhair/site/internal/middleware"
	"github.com/hotboxhair/site/internal/requestinfo"
	"github.com/hotboxhair/site/internal/retention"
	"github.com/hotboxhair/site/internal/routing"
	"github.com/hotboxhair/site/internal/server"
	"github.com/hotboxhair/site/internal/tracking"
	"github.com/hotboxhair/site/internal/view"
)

const (
	shutdownGrace = 15 * time.Second
	drainTimeout  = 10 * time.Second
)

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Paths.Root, cfg.Log.Console || runningInTTY(), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Forms.CSRFKey != "" && !form.SetSecret([]byte(cfg.Forms.CSRFKey)) {
		return fmt.Errorf("forms.csrf_key must be at least 32 bytes")
	}

	if cfg.GeoIP.Path != "" {
		if err := requestinfo.InitGeo(cfg.GeoIP.Path); err != nil {
			log.Warnw("geoip disabled", "path", cfg.GeoIP.Path, "err", err)
		} else {
			defer requestinfo.CloseGeo()
		}
	}

	db, err := openDB(ctx, cfg, cfg.Database.Migrate)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if cfg.Database.Retention > 0 {
			sched, err := retention.Start(ctx, retention.NewPruner(db, cfg.Database.Retention), cfg.Database.PruneSchedule, log)
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				defer cancel()
				sched.Stop(stopCtx)
			}()
		}
	}

	if err := form.RegisterForms(formDirs(cfg)); err != nil {
		return fmt.Errorf("form definitions: %w", err)
	}

	outbox := newOutbox(cfg)
	tracker := newTracker(cfg)

	deps := component.Deps{
		Config:  cfg,
		DB:      db,
		Outbox:  outbox,
		Tracker: tracker,
		Views:   view.New(view.Options{OverrideDir: filepath.Join(cfg.Paths.Root, "templates")}),
	}
	handler, err := buildRouter(cfg, deps, log)
	if err != nil {
		return err
	}

	srv := server.New(cfg.HTTP.ListenAddr, handler, server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})
	runErr := server.Run(ctx, srv, shutdownGrace)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := outbox.Close(drainCtx); err != nil {
		log.Warnw("outbox not drained", "err", err)
	}
	if err := tracker.Close(drainCtx); err != nil {
		log.Warnw("tracker not drained", "err", err)
	}
	log.Infow("server stopped")
	return runErr
}

// buildRouter initialises the components and mounts them behind the shared
// middleware stack.
func buildRouter(cfg *config.Config, deps component.Deps, log *zap.SugaredLogger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)
	r.Use(routing.Middleware(aliasTable(cfg, deps.DB)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = view.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/",
		http.FileServer(http.Dir(filepath.Join(cfg.Paths.Root, "static")))))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/donate", http.StatusFound)
	})

	for _, c := range component.All() {
		if err := c.Init(deps); err != nil {
			return nil, fmt.Errorf("init component %s: %w", c.Name(), err)
		}
		n, err := merge(r, c.Routes())
		if err != nil {
			return nil, fmt.Errorf("mount component %s: %w", c.Name(), err)
		}
		log.Infow("component mounted", "component", c.Name(), "routes", n)
	}

	var h http.Handler = r
	if cfg.HTTP.ForceHTTPS {
		h = middleware.ForceHTTPS(h, "/healthz", "/metrics")
	}
	return h, nil
}

// merge copies every route of src onto dst.  Components all live at the
// site root, which chi's Mount allows only once.
func merge(dst, src chi.Router) (int, error) {
	n := 0
	err := chi.Walk(src, func(method, route string, h http.Handler, mws ...func(http.Handler) http.Handler) error {
		dst.With(mws...).Method(method, route, h)
		n++
		return nil
	})
	return n, err
}

// openDB connects when a DSN is configured.  A nil *sqlx.DB without error
// means the site runs without persistence.
func openDB(ctx context.Context, cfg *config.Config, migrate bool) (*sqlx.DB, error) {
	dsn := cfg.DatabaseDSN()
	if dsn == "" {
		zap.S().Warnw("no database configured; donations and contact posts are not stored")
		return nil, nil
	}
	db, err := database.OpenWithOptions(ctx, dsn, database.Options{
		MaxOpen: cfg.Database.MaxOpen,
		MaxIdle: cfg.Database.MaxIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if migrate {
		stmts := append(component.Migrations(), routing.AliasTableDDL)
		if err := database.Migrate(ctx, db, stmts...); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// formDirs lists the base directories searched for components/*/forms
// overrides; relative entries are resolved against the site root.
func formDirs(cfg *config.Config) []string {
	dirs := cfg.Forms.Dirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if !filepath.IsAbs(d) {
			d = filepath.Join(cfg.Paths.Root, d)
		}
		out = append(out, d)
	}
	return out
}

// aliasTable merges the legacy static pages with http.aliases; configured
// entries win.
func aliasTable(cfg *config.Config, db *sqlx.DB) *routing.AliasTable {
	static := make(map[string]string, len(routing.Legacy)+len(cfg.HTTP.Aliases))
	for k, v := range routing.Legacy {
		static[k] = v
	}
	for k, v := range cfg.HTTP.Aliases {
		static[k] = v
	}
	return routing.NewAliasTable(static, db, routing.DefaultTTL)
}

func newOutbox(cfg *config.Config) *message.Outbox {
	var mailer message.Mailer = message.LogMailer{}
	if cfg.Mail.SMTPAddr != "" {
		mailer = message.SMTPMailer{
			Addr:     cfg.Mail.SMTPAddr,
			From:     cfg.Mail.From,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}
	}
	return message.NewOutbox(mailer, message.Options{
		QueueSize: cfg.Mail.Queue,
		Workers:   cfg.Mail.Workers,
	})
}

func newTracker(cfg *config.Config) *tracking.Tracker {
	var sink tracking.Sink = tracking.LogSink{}
	if cfg.Tracking.Endpoint != "" {
		hdr := http.Header{}
		if cfg.Tracking.APIKey != "" {
			hdr.Set("Authorization", "Bearer "+cfg.Tracking.APIKey)
		}
		sink = tracking.NewHTTPSink(cfg.Tracking.Endpoint, hdr, cfg.Tracking.Retries)
	}
	return tracking.New(sink, tracking.Options{QueueSize: cfg.Tracking.QueueSize})
}
