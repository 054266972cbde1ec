package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/sequence"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/sla"
)

// container holds the wired runtime shared by the commands.
type container struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	postgres *persistence.Postgres
	redis    *persistence.Redis

	dispatcher    events.Dispatcher
	entities      *service.EntityService
	agents        *service.AgentService
	tickets       *service.TicketService
	replies       *service.ReplyService
	relationships *service.RelationshipService
	slas          *service.SLAService
	notifications *service.NotificationService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*container, error) {
	c := &container{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.postgres = pg
	pool := pg.PoolHandle()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			c.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var locker lock.Locker
	switch cfg.Sequence.LockBackend {
	case config.LockBackendRedis:
		rds, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.redis = rds
		locker = lock.NewRedisLocker(c.redis.Client,
			lock.WithKeyPrefix(cfg.Sequence.KeyPrefix),
			lock.WithTTL(cfg.Sequence.LockTTL))
	default:
		logger.Warn("using in-process ticket number lock; run a single instance only")
		locker = lock.NewMemoryLocker()
	}

	ticketRepo := repository.NewTicketRepository(pool)
	replyRepo := repository.NewReplyRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	relationshipRepo := repository.NewRelationshipRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	entityRepo := repository.NewEntityRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ruleRepo := repository.NewSLARuleRepository(pool)
	tx := persistence.NewTxManager(pool)

	c.dispatcher = events.NewInMemoryDispatcher(logger)
	c.notifications = service.NewNotificationService(logger, cfg.Notification)

	c.entities = service.NewEntityService(service.EntityDependencies{
		EntityRepo: entityRepo,
		TicketRepo: ticketRepo,
		Logger:     logger,
	})
	c.agents = service.NewAgentService(service.AgentDependencies{
		AgentRepo:  agentRepo,
		EntityRepo: entityRepo,
	})
	numbers := sequence.NewGenerator(locker, ticketRepo, sequence.Options{
		LockTimeout: cfg.Sequence.LockTimeout,
		Location:    cfg.SLA.Location(),
		Logger:      logger,
		Metrics:     c.metrics,
	})
	c.tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:       ticketRepo,
		ReplyRepo:        replyRepo,
		AttachmentRepo:   attachmentRepo,
		RelationshipRepo: relationshipRepo,
		HistoryRepo:      historyRepo,
		Entities:         c.entities,
		Agents:           c.agents,
		Numbers:          numbers,
		Rules:            sla.NewResolver(ruleRepo),
		Tx:               tx,
		Publisher:        c.dispatcher,
		Logger:           logger,
		Metrics:          c.metrics,
		InitialStatus:    domain.TicketStatus(cfg.Ticket.InitialStatus),
		DefaultPriority:  domain.TicketPriority(cfg.Ticket.DefaultPriority),
	})
	c.replies = service.NewReplyService(service.ReplyDependencies{
		TicketRepo:     ticketRepo,
		ReplyRepo:      replyRepo,
		AttachmentRepo: attachmentRepo,
		Tx:             tx,
		Publisher:      c.dispatcher,
		Logger:         logger,
	})
	c.relationships = service.NewRelationshipService(service.RelationshipDependencies{
		Tickets:          c.tickets,
		TicketRepo:       ticketRepo,
		ReplyRepo:        replyRepo,
		AttachmentRepo:   attachmentRepo,
		RelationshipRepo: relationshipRepo,
		HistoryRepo:      historyRepo,
		Notes:            c.replies,
		Tx:               tx,
		Publisher:        c.dispatcher,
		Logger:           logger,
		Metrics:          c.metrics,
	})
	c.slas = service.NewSLAService(service.SLADependencies{
		RuleRepo:   ruleRepo,
		TicketRepo: ticketRepo,
		Entities:   c.entities,
		Logger:     logger,
		Metrics:    c.metrics,
		SweepBatch: cfg.SLA.SweepBatch,
	})
	return c, nil
}

func (c *container) healthDependencies() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"postgres": c.postgres}
	if c.redis != nil {
		deps["redis"] = c.redis
	}
	return deps
}

// Close releases connections.
func (c *container) Close() {
	c.redis.Close()
	c.postgres.Close()
}
