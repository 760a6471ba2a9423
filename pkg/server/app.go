package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"SignalBoard/internal/stream"
	"SignalBoard/internal/usecase"
	"SignalBoard/pkg/config"
	xhttp "SignalBoard/pkg/http"
	applogger "SignalBoard/pkg/logger"
)

// Channels groups the two bot streams.
type Channels struct {
	Account *stream.Connection
	Signal  *stream.Connection
}

// Closers are released last, in order, on shutdown.
type Closers []io.Closer

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	channels   Channels
	board      *usecase.Board
	session    *usecase.ChartSession
	journal    *usecase.Journal
	httpServer *xhttp.Server
	closers    Closers
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	channels Channels,
	board *usecase.Board,
	session *usecase.ChartSession,
	journal *usecase.Journal,
	httpServer *xhttp.Server,
	closers Closers,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		channels:   channels,
		board:      board,
		session:    session,
		journal:    journal,
		httpServer: httpServer,
		closers:    closers,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown(context.Background())
	return nil
}

// Start brings up the journal, both channels, the first chart and the HTTP
// server. A failing symbol load is logged; the chart shows its own error.
func (a *App) Start(ctx context.Context) error {
	if err := a.journal.Start(ctx); err != nil {
		return err
	}

	a.channels.Account.Connect(a.board.AccountCallbacks())
	a.channels.Signal.Connect(a.board.SignalCallbacks())
	a.logger.Info("channels connecting", applogger.String("api", a.cfg.API.BaseURL))

	if err := a.session.RefreshSymbols(ctx); err != nil {
		a.logger.Warn("symbol list unavailable", applogger.Error(err))
	} else {
		a.logger.Info("chart ready", applogger.Strings("symbols", a.session.State().Symbols))
	}

	return a.httpServer.Start()
}

func (a *App) shutdown(ctx context.Context) {
	a.logger.Info("shutting down")

	a.channels.Account.Disconnect()
	a.channels.Signal.Disconnect()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	a.journal.Stop()
	a.logger.RemoveCollector()

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
}
