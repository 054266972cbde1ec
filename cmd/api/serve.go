package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and SLA sweeper",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	notifier := worker.NewNotificationWorker(c.notifications, cfg.Notification.QueueSize, logger)
	notifier.Subscribe(c.dispatcher)

	var slaWorker *worker.SLAWorker
	if cfg.SLA.SweepEnabled {
		slaWorker, err = worker.NewSLAWorker(c.slas, cfg.SLA, logger)
		if err != nil {
			return err
		}
		slaWorker.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.App.RequestTimeout(),
	})
	httptransport.RegisterMiddlewares(app, logger, c.metrics, cfg.App.RequestTimeout())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, c.healthDependencies(), c.metrics),
		Entities:        handlers.NewEntitiesHandler(c.entities, c.agents),
		Tickets:         handlers.NewTicketsHandler(c.tickets, c.replies),
		Relationships:   handlers.NewRelationshipsHandler(c.relationships),
		SLA:             handlers.NewSLAHandler(c.slas),
		ActorMiddleware: auth.NewActorMiddleware(tokens),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		notifier.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		var errs []error
		if slaWorker != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			errs = append(errs, slaWorker.Stop(stopCtx))
			cancel()
		}
		errs = append(errs, app.ShutdownWithTimeout(shutdownTimeout))
		return errors.Join(errs...)
	})
	return g.Wait()
}
