package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"MarketPulse/internal/middleware"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	scheduler *usecase.Scheduler
	throttle  *middleware.PublishThrottle
	consumer  *pkgkafka.Consumer
	handlers  []pkgkafka.MessageHandler
	handler   xhttp.Handler
	closers   []io.Closer

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.Scheduler,
	throttle *middleware.PublishThrottle,
	handler xhttp.Handler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, scheduler: scheduler, throttle: throttle, handler: handler}
}

// WithConsumer attaches a Kafka consumer and the handlers it serves.
func (a *App) WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) *App {
	a.consumer = c
	a.handlers = append(a.handlers, handlers...)
	return a
}

// OnShutdown registers resources closed after everything else stopped, in
// reverse order.
func (a *App) OnShutdown(c ...io.Closer) *App {
	a.closers = append(a.closers, c...)
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowRequest),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithMetricsPath(a.metricsPath()),
		xhttp.WithLogger(a.l),
	)

	if a.throttle != nil {
		a.throttle.Start(runCtx)
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
		} else {
			a.l.Info("kafka consumer started", applogger.Int("topics", len(a.handlers)))
		}
	}

	if err := a.scheduler.Start(runCtx); err != nil {
		return err
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) metricsPath() string {
	if !a.cfg.Metrics.Enabled {
		return ""
	}
	return a.cfg.Metrics.Path
}

// shutdown stops producers of work first, then sinks, then infrastructure.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	a.scheduler.Stop()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.throttle != nil {
		a.throttle.Stop()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
			a.l.Warn("close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
