// Package admind serves the kernel's admin HTTP API: health, metrics,
// state inspection and event injection.
package admind

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/presbrey/ircq/echoprom"
	"github.com/presbrey/ircq/echovalidator"
	"github.com/presbrey/ircq/irc"
	"github.com/presbrey/ircq/store"
)

// Options configures the admin server.
type Options struct {
	Queue   string // inbound queue events are pushed to
	Metrics *echoprom.Metrics
	Logger  *slog.Logger
}

// Server reads the shared store and writes only to the inbound queue, so it
// never races the kernel on protocol state.
type Server struct {
	echo    *echo.Echo
	store   store.Store
	repo    *irc.Repository
	opts    Options
	log     *slog.Logger
	started time.Time
}

func New(s store.Store, repo *irc.Repository, opts Options) *Server {
	if opts.Queue == "" {
		opts.Queue = "mq:kernel"
	}
	if opts.Metrics == nil {
		opts.Metrics = echoprom.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	srv := &Server{
		echo:    echo.New(),
		store:   s,
		repo:    repo,
		opts:    opts,
		log:     opts.Logger.With("component", "admind"),
		started: time.Now(),
	}
	srv.echo.HideBanner = true
	srv.echo.HidePort = true
	echovalidator.Setup(srv.echo)
	srv.route(srv.echo)
	return srv
}

func (s *Server) route(e *echo.Echo) {
	e.Use(s.opts.Metrics.Middleware())

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.opts.Metrics.Handler())

	api := e.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/channels/:name", s.handleChannel)
	api.POST("/events", s.handleInject)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("admin server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	irc.Stats
	QueueDepth int64  `json:"queue_depth"`
	Uptime     string `json:"uptime"`
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return err
	}
	depth, err := s.store.LLen(ctx, s.opts.Queue)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statsResponse{
		Stats:      stats,
		QueueDepth: depth,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	})
}

type memberResponse struct {
	Nick  string `json:"nick"`
	Tag   string `json:"tag"`
	Modes string `json:"modes"`
}

type accessResponse struct {
	Level  string `json:"level"`
	Mask   string `json:"mask"`
	Expiry int64  `json:"expiry"`
	Setter string `json:"setter"`
	Reason string `json:"reason"`
}

type channelResponse struct {
	Name    string           `json:"name"`
	Topic   string           `json:"topic"`
	Modes   string           `json:"modes"`
	Members []memberResponse `json:"members"`
	Access  []accessResponse `json:"access"`
}

// handleChannel takes the channel name with or without its leading '#'.
func (s *Server) handleChannel(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}

	ch, err := s.repo.FindChannel(ctx, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no such channel")
	}

	members, err := s.repo.ChannelMembers(ctx, ch.Name)
	if err != nil {
		return err
	}
	access, err := s.repo.ListAccess(ctx, ch.Name)
	if err != nil {
		return err
	}

	resp := channelResponse{
		Name:    ch.Name,
		Topic:   ch.Topic,
		Modes:   ch.Modes,
		Members: make([]memberResponse, len(members)),
		Access:  make([]accessResponse, len(access)),
	}
	for i, m := range members {
		resp.Members[i] = memberResponse{Nick: m.Nick, Tag: string(m.Tag), Modes: m.Modes}
	}
	for i, e := range access {
		resp.Access[i] = accessResponse{
			Level:  string(e.Level),
			Mask:   e.Mask,
			Expiry: e.Expiry,
			Setter: e.Setter,
			Reason: e.Reason,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleInject queues an event as if a front-end had sent it.
func (s *Server) handleInject(c echo.Context) error {
	var ev irc.Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&ev); err != nil {
		return err
	}

	if err := s.store.RPush(c.Request().Context(), s.opts.Queue, ev.String()); err != nil {
		return err
	}
	s.log.Info("event injected", "kind", ev.Kind, "origin", ev.Origin)
	return c.JSON(http.StatusAccepted, ev)
}
