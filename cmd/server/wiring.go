package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	agreementhandler "ndaflow/internal/agreement/handler"
	agreementmetrics "ndaflow/internal/agreement/metrics"
	agreementmodels "ndaflow/internal/agreement/models"
	agreementservice "ndaflow/internal/agreement/service"
	agreementstore "ndaflow/internal/agreement/store"
	"ndaflow/internal/attachment"
	"ndaflow/internal/audit"
	auditmemory "ndaflow/internal/audit/store/memory"
	auditpostgres "ndaflow/internal/audit/store/postgres"
	"ndaflow/internal/compose"
	"ndaflow/internal/contacts"
	"ndaflow/internal/delivery/escalation"
	deliveryhandler "ndaflow/internal/delivery/handler"
	deliverymetrics "ndaflow/internal/delivery/metrics"
	deliveryservice "ndaflow/internal/delivery/service"
	deliverystore "ndaflow/internal/delivery/store"
	"ndaflow/internal/delivery/transport"
	"ndaflow/internal/delivery/worker"
	"ndaflow/internal/idempotency"
	jwttoken "ndaflow/internal/jwt_token"
	"ndaflow/internal/notify"
	"ndaflow/internal/permission"
	"ndaflow/internal/platform/config"
	platformkafka "ndaflow/internal/platform/kafka"
	"ndaflow/internal/platform/postgres"
	platformredis "ndaflow/internal/platform/redis"
	"ndaflow/internal/ratelimit"
	"ndaflow/internal/subscription"
	httptransport "ndaflow/internal/transport/http"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/circuit"
	"ndaflow/pkg/platform/tx"
)

const (
	idempotencySweepInterval = 10 * time.Minute
	rateLimitSweepInterval   = 5 * time.Minute
)

type agreementRepository interface {
	agreementservice.Store
	Create(ctx context.Context, a *agreementmodels.Agreement) error
}

type deliveryRepository interface {
	deliveryservice.Store
	worker.Store
}

type subscriptionRepository interface {
	subscription.Store
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]id.ContactID, error)
}

type contactRepository interface {
	contacts.Directory
	Save(ctx context.Context, c contacts.Contact) error
}

type templateRepository interface {
	compose.TemplateStore
	Save(ctx context.Context, t compose.Template) error
}

// stores is the persistence layer chosen by configuration.
type stores struct {
	runner        tx.Runner
	agreements    agreementRepository
	deliveries    deliveryRepository
	subscriptions subscriptionRepository
	preferences   subscription.PreferenceStore
	contacts      contactRepository
	templates     templateRepository
	audit         audit.Store
	wake          <-chan struct{}
}

// component is a long-running loop started next to the HTTP server.
type component struct {
	name string
	run  func(ctx context.Context) error
}

type app struct {
	router     http.Handler
	storage    string
	background []component
	checks     map[string]httptransport.HealthCheck
	closers    []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build opens every dependency and wires the services. On error, whatever was
// already opened is closed.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{checks: map[string]httptransport.HealthCheck{}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := openStores(ctx, cfg, log, a)
	if err != nil {
		return nil, err
	}
	docs, memDocs, err := openAttachments(cfg.Attachments, a)
	if err != nil {
		return nil, err
	}
	redisClient, err := openRedis(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	idem := openIdempotency(redisClient, log, a)
	limiter := openRateLimiter(redisClient, a)
	mail := mailTransport(cfg.Mail, log)
	sink, err := notificationSink(ctx, cfg, mail, log, a)
	if err != nil {
		return nil, err
	}

	auditor := audit.NewPublisher(st.audit)
	permissions := permission.ClaimsChecker{}

	dispatcher, err := notify.NewDispatcher(agreementLookup{st.agreements}, st.subscriptions, st.contacts, sink, auditor,
		notify.WithLogger(log),
		notify.WithMetrics(notify.NewMetrics()),
		notify.WithInboxSize(cfg.Notify.InboxSize),
		notify.WithPreferences(subscription.PreferenceReader{Store: st.preferences}),
	)
	if err != nil {
		return nil, err
	}

	agreements, err := agreementservice.New(st.agreements, st.runner, auditor, permissions,
		agreementservice.WithLogger(log),
		agreementservice.WithMetrics(agreementmetrics.New()),
		agreementservice.WithNotifier(dispatcher),
	)
	if err != nil {
		return nil, err
	}

	composer := compose.NewService(agreements, st.contacts, st.subscriptions, st.templates, docs, permissions,
		compose.Defaults{
			SenderName: cfg.Mail.CompanyName,
			CC:         cfg.Mail.DefaultCC,
			BCC:        cfg.Mail.DefaultBCC,
		}, log)

	deliveryMetrics := deliverymetrics.New()
	deliveries, err := deliveryservice.New(st.deliveries, st.runner, agreements, docs, auditor, permissions,
		deliveryservice.WithLogger(log),
		deliveryservice.WithMetrics(deliveryMetrics),
	)
	if err != nil {
		return nil, err
	}

	escalator := escalation.New(mail, cfg.Mail.AlertFrom, cfg.Mail.AlertRecipients,
		escalation.WithLogger(log),
		escalation.WithMetrics(deliveryMetrics),
	)
	deliveryWorker, err := worker.New(st.deliveries, st.runner, docs, mail, auditor,
		worker.Config{
			From:         cfg.Mail.From,
			MaxRetries:   cfg.Delivery.MaxRetries,
			BackoffBase:  cfg.Delivery.BackoffBase,
			BackoffMax:   cfg.Delivery.BackoffMax,
			PollInterval: cfg.Delivery.PollInterval,
			SendTimeout:  cfg.Delivery.SendTimeout,
			ClaimTimeout: cfg.Delivery.ClaimTimeout,
		},
		worker.WithLogger(log),
		worker.WithMetrics(deliveryMetrics),
		worker.WithWake(st.wake),
		worker.WithEscalator(escalator),
		worker.WithAutoTransitioner(agreements),
		worker.WithNotifier(dispatcher),
	)
	if err != nil {
		return nil, err
	}

	subscriptions := subscription.NewService(st.subscriptions, st.runner, agreements, st.contacts, auditor, permissions, log,
		subscription.WithPreferenceStore(st.preferences))
	sweeper := agreementservice.NewExpirationSweeper(agreements, cfg.Expiration.Interval, log)
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	if cfg.Server.SeedDemo && memDocs != nil {
		if err := seedDemo(ctx, st, memDocs, tokens, log); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	a.background = append(a.background,
		component{name: "delivery-worker", run: deliveryWorker.Run},
		component{name: "notification-dispatcher", run: dispatcher.Run},
		component{name: "expiration-sweeper", run: sweeper.Run},
	)
	a.router = httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Tokens:         tokens,
		Idempotency:    idem,
		IdempotencyTTL: cfg.Idempotency.TTL,
		RateLimiter:    limiter,
		WritePolicy:    ratelimit.Policy{Limit: cfg.RateLimit.Writes, Window: cfg.RateLimit.Window},
		Checks:         a.checks,
	},
		agreementhandler.New(agreements, log),
		deliveryhandler.New(deliveries, composer, log),
		subscription.NewHandler(subscriptions, log),
		audit.NewHandler(auditor, log),
	)
	return a, nil
}

// openStores selects Postgres when a database URL is configured and in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger, a *app) (*stores, error) {
	if cfg.Database.URL == "" {
		a.storage = "memory"
		deliveries := deliverystore.NewInMemory()
		return &stores{
			runner:        tx.NewSharded(),
			agreements:    agreementstore.NewInMemory(),
			deliveries:    deliveries,
			subscriptions: subscription.NewInMemory(),
			preferences:   subscription.NewPreferencesInMemory(),
			contacts:      contacts.NewInMemory(),
			templates:     compose.NewInMemoryTemplates(),
			audit:         auditmemory.NewInMemoryStore(),
			wake:          deliveries.Wake(),
		}, nil
	}

	a.storage = "postgres"
	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onClose(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.checks["postgres"] = pool.Ping

	listener, err := deliverystore.NewListener(cfg.Database.URL, log)
	if err != nil {
		return nil, err
	}
	a.background = append(a.background, component{name: "delivery-listener", run: listener.Run})

	return &stores{
		runner:        tx.NewPostgres(pool),
		agreements:    agreementstore.NewPostgres(pool),
		deliveries:    deliverystore.NewPostgres(pool),
		subscriptions: subscription.NewPostgres(pool),
		preferences:   subscription.NewPreferencesPostgres(pool),
		contacts:      contacts.NewPostgres(pool),
		templates:     compose.NewPostgresTemplates(pool),
		audit:         auditpostgres.New(pool),
		wake:          listener.Wake(),
	}, nil
}

// openAttachments returns the document store and, when documents live in
// memory, the concrete store so demo data can be loaded into it.
func openAttachments(cfg config.Attachments, a *app) (attachment.Store, *attachment.InMemory, error) {
	if cfg.Dir == "" {
		mem := attachment.NewInMemory()
		return mem, mem, nil
	}
	dir, err := attachment.OpenDir(cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open attachments dir: %w", err)
	}
	a.onClose(func() { _ = dir.Close() })
	return dir, nil, nil
}

// openRedis connects when REDIS_URL is set. A nil client keeps shared state in process.
func openRedis(ctx context.Context, cfg config.Config, a *app) (*platformredis.Client, error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil || client == nil {
		return nil, err
	}
	a.onClose(func() { _ = client.Close() })
	a.checks["redis"] = client.Health
	if err := client.RegisterPoolMetrics(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	return client, nil
}

// openIdempotency prefers Redis with an in-memory fallback behind a circuit breaker.
func openIdempotency(client *platformredis.Client, log *slog.Logger, a *app) idempotency.Store {
	local := idempotency.NewInMemory()
	a.background = append(a.background, component{
		name: "idempotency-sweeper",
		run:  every(idempotencySweepInterval, func(context.Context) { local.Sweep() }),
	})
	if client == nil {
		return local
	}
	return idempotency.NewFallback(idempotency.NewRedis(client.Client), local, circuit.New("idempotency-redis"), log)
}

func openRateLimiter(client *platformredis.Client, a *app) ratelimit.Store {
	if client != nil {
		return ratelimit.NewRedis(client.Client)
	}
	local := ratelimit.NewInMemory()
	a.background = append(a.background, component{
		name: "ratelimit-sweeper",
		run:  every(rateLimitSweepInterval, func(context.Context) { local.Sweep() }),
	})
	return local
}

// mailTransport is shared by the worker, the escalator and the mail sink.
func mailTransport(cfg config.Mail, log *slog.Logger) transport.Transport {
	if cfg.Transport == "smtp" {
		return transport.NewSMTP(transport.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	return transport.NewLog(log)
}

func notificationSink(ctx context.Context, cfg config.Config, mail transport.Transport, log *slog.Logger, a *app) (notify.Sink, error) {
	switch cfg.Notify.Sink {
	case "mail":
		return notify.NewMailSink(mail, cfg.Mail.From, cfg.Delivery.SendTimeout), nil
	case "kafka":
		client, err := platformkafka.NewProducer(cfg.Kafka.Brokers, "ndaflow")
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		if err := platformkafka.EnsureTopic(ctx, client, cfg.Kafka.NotificationsTopic,
			cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, err
		}
		a.checks["kafka"] = client.Ping
		return notify.NewKafkaSink(client, cfg.Kafka.NotificationsTopic), nil
	default:
		return notify.NewLogSink(log), nil
	}
}

// agreementLookup reads agreements straight from the store so the dispatcher
// can be built before the transition engine that notifies it.
type agreementLookup struct {
	store agreementservice.Store
}

func (l agreementLookup) Get(ctx context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error) {
	return l.store.FindByID(ctx, agreementID)
}

// every runs fn on a fixed interval until ctx is cancelled.
func every(interval time.Duration, fn func(ctx context.Context)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fn(ctx)
			}
		}
	}
}
