package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	snapoff "github.com/pthm/snapoff"
	"github.com/pthm/snapoff/lib/broadcast"
	"github.com/pthm/snapoff/lib/component"
	"github.com/pthm/snapoff/lib/config"
	"github.com/pthm/snapoff/lib/loader"
	"github.com/pthm/snapoff/lib/metrics"
	"github.com/pthm/snapoff/lib/script"
	"github.com/pthm/snapoff/lib/session"
)

// app holds everything the serve and lab commands share.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *snapoff.Engine
	hub      *broadcast.Hub
	sessions *session.Manager
	registry *prometheus.Registry
	dir      string
	now      func() time.Time
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.New(metrics.WithRegistry(registry))

	src, dir, err := componentSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		logger.Warn("session.secret not set, using a random secret; sessions will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	sessions, err := session.NewManager(secret,
		session.WithCookieName(cfg.Session.Cookie),
		session.WithTTL(cfg.Session.TTL),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub(broadcast.WithLogger(logger), broadcast.WithMetrics(rec))
	engine := snapoff.New(snapoff.Options{
		Source:      src,
		Handlers:    handlers(),
		EventPath:   cfg.EventPath,
		RequireHTMX: cfg.RequireHTMX,
		Script:      script.Options{Logger: logger, MaxSteps: uint64(cfg.Script.MaxSteps)},
		Hub:         hub,
		Logger:      logger,
		Metrics:     rec,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		hub:      hub,
		sessions: sessions,
		registry: registry,
		dir:      dir,
		now:      time.Now,
	}, nil
}

// watch invalidates components on file changes when dev.watch is set.
func (a *app) watch(ctx context.Context) (stop func(), err error) {
	if !a.cfg.Dev.Watch || a.dir == "" {
		return func() {}, nil
	}
	w, err := loader.NewWatcher(a.engine.Loader(), a.dir, loader.WithWatchLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w.Stop, nil
}

// routes is the main server: demo page, events, websocket and metrics.
func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get(a.cfg.WSPath, a.hub.ServeHTTP)
	if a.cfg.Metrics.Enabled {
		r.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(a.sessions.Middleware)
		r.Get("/", a.home)
		r.Post(a.engine.Pattern(), a.engine.Handler().ServeHTTP)
		r.Post("/broadcast-time", a.broadcastTime)
	})
	return r
}

func (a *app) home(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	page := homePage(a.cfg.WSPath,
		a.engine.Component("counter", component.Props{"initialValue": 10}, sess),
		a.engine.Component("toggle", component.Props{"label": "Lights"}, sess),
	)
	if err := snapoff.Render(w, r, page); err != nil {
		a.logger.Error("render home page", "error", err)
	}
}

func (a *app) broadcastTime(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.BroadcastComponent(r.Context(), snapoff.NoticeFragment(messagesID, snapoff.Notice{
		Level:   snapoff.NoticeSuccess,
		Message: "Server time:",
		Detail:  a.now().Format(time.TimeOnly),
	}))
	if err != nil {
		a.logger.Error("broadcast time", "error", err)
		http.Error(w, "Broadcast failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Event broadcasted to %d clients!", n)
}

// labRoutes is the dev lab: a component index and per-component previews.
func (a *app) labRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.sessions.Middleware)

	r.Get("/", a.labIndex)
	r.Get("/component/{name}", a.labComponent)
	r.Post(a.engine.Pattern(), a.engine.Handler().ServeHTTP)
	return r
}

func (a *app) labIndex(w http.ResponseWriter, r *http.Request) {
	names, err := a.engine.Loader().List(r.Context())
	if errors.Is(err, loader.ErrNotListable) {
		http.Error(w, "This component source cannot be listed.", http.StatusNotImplemented)
		return
	}
	if err != nil {
		a.logger.Error("list components", "error", err)
		http.Error(w, "Could not list components.", http.StatusInternalServerError)
		return
	}
	if err := snapoff.Render(w, r, labIndex(names)); err != nil {
		a.logger.Error("render lab index", "error", err)
	}
}

func (a *app) labComponent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	props := queryProps(r.URL.Query())
	sess := session.FromContext(r.Context())
	if err := snapoff.Render(w, r, labComponent(name, a.engine.Component(name, props, sess))); err != nil {
		a.logger.Error("render lab component", "component", name, "error", err)
	}
}

// serveHTTP runs h on addr until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, name, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "server", name, "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down", "server", name)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", name, err)
	}
	return nil
}

// queryProps turns query parameters into props. Numbers and booleans are
// decoded so previews behave like props passed from Go.
func queryProps(q url.Values) component.Props {
	props := make(component.Props, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			props[k] = scalar(vs[0])
			continue
		}
		values := make([]any, len(vs))
		for i, v := range vs {
			values[i] = scalar(v)
		}
		props[k] = values
	}
	return props
}

func scalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
