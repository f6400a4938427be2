package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/qrlinks/internal/auth"
	"github.com/serroba/qrlinks/internal/handlers"
	"github.com/serroba/qrlinks/internal/health"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/messaging"
	"github.com/serroba/qrlinks/internal/middleware"
	"github.com/serroba/qrlinks/internal/ratelimit"
	"github.com/serroba/qrlinks/internal/scans"
	"github.com/serroba/qrlinks/internal/store"
	"github.com/serroba/qrlinks/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// ScanSinkDirect saves scans to the store inside the redirect request.
	ScanSinkDirect = "direct"
	// ScanSinkStream publishes scans to a Redis stream for the consumer to save.
	ScanSinkStream = "stream"

	// ScanConsumerGroup is the Redis stream consumer group of the scan recorder.
	ScanConsumerGroup = "scan-recorder"

	serviceName    = "qrlinks"
	serviceVersion = "1.0.0"
)

var (
	ErrStreamNeedsRedis   = errors.New("scan sink stream requires --redis-addr")
	ErrStreamNeedsStore   = errors.New("scan sink stream requires --database-url shared with the consumer")
	ErrConsumerNeedsStore = errors.New("scan consumer requires --database-url")
	ErrUnknownScanSink    = errors.New("unknown scan sink")
)

type Options struct {
	Port         int    `default:"8888"                 help:"Port to listen on"                                         short:"p"`
	BaseURL      string `default:""                     help:"Public base URL of redirect links (default http://localhost:<port>)"`
	CodeLength   int    `default:"8"                    help:"Length of generated short codes"                           short:"c"`
	DatabaseURL  string `default:""                     help:"PostgreSQL connection string; empty keeps data in memory"  short:"d"`
	RedisAddr    string `default:""                     help:"Redis server address; empty disables cache and streams"    short:"r"`
	CacheTTL     int    `default:"300"                  help:"Seconds a link stays in the Redis cache"`
	ScanSink     string `default:"direct"               help:"Where scans go: direct or stream"`
	JWTSecret    string `default:""                     help:"HMAC secret for owner bearer tokens (required)"`
	LogFormat    string `default:"json"                 help:"Log format: json or console"`
	OTLPEndpoint string `default:""                     help:"OTLP gRPC endpoint for traces; empty disables export"`
	TrustProxy   bool   `default:"false"                help:"Key rate limits on forwarding headers set by a trusted proxy"`
}

// ResolvedBaseURL returns BaseURL or the local default for Port.
func (o *Options) ResolvedBaseURL() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}

	return fmt.Sprintf("http://localhost:%d", o.Port)
}

// Redis holds the optional Redis client. Client is nil when no address is configured.
type Redis struct {
	Client *redis.Client
}

func (r *Redis) Shutdown() error {
	if r.Client == nil {
		return nil
	}

	return r.Client.Close()
}

// Postgres holds the optional connection pool. Pool is nil in memory mode.
type Postgres struct {
	Pool *pgxpool.Pool
}

func (p *Postgres) Shutdown() error {
	if p.Pool != nil {
		p.Pool.Close()
	}

	return nil
}

// linkStore is the storage backend serving both links and scans.
type linkStore interface {
	links.Repository
	scans.Store
}

// LoggerPackage provides *zap.Logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "console" {
			return zap.NewDevelopment()
		}

		return zap.NewProduction()
	})
}

// TracingPackage provides *telemetry.Provider and installs it globally.
func TracingPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*telemetry.Provider, error) {
		opts := do.MustInvoke[*Options](i)

		return telemetry.NewProvider(context.Background(), telemetry.Config{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Endpoint:       opts.OTLPEndpoint,
			Insecure:       true,
		})
	})
}

// MetricsPackage provides the Prometheus registry and scan counters.
func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		return reg, nil
	})

	do.Provide(i, func(i *do.Injector) (*scans.Metrics, error) {
		return scans.NewMetrics(do.MustInvoke[*prometheus.Registry](i)), nil
	})
}

// RedisPackage provides *Redis.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Redis, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.RedisAddr == "" {
			return &Redis{}, nil
		}

		return &Redis{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides *Postgres.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*Postgres, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.DatabaseURL == "" {
			return &Postgres{}, nil
		}

		pool, err := pgxpool.New(context.Background(), opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &Postgres{Pool: pool}, nil
	})
}

// RepositoryPackage provides links.Repository and scans.Store. PostgreSQL is
// used when configured, memory otherwise; Redis caches code lookups when available.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (linkStore, error) {
		pg := do.MustInvoke[*Postgres](i)
		if pg.Pool == nil {
			do.MustInvoke[*zap.Logger](i).Warn("no database configured, data is kept in memory")

			return store.NewMemoryStore(), nil
		}

		return store.NewPostgresStore(pg.Pool), nil
	})

	do.Provide(i, func(i *do.Injector) (scans.Store, error) {
		return do.MustInvoke[linkStore](i), nil
	})

	do.Provide(i, func(i *do.Injector) (links.Repository, error) {
		opts := do.MustInvoke[*Options](i)
		repo := links.Repository(do.MustInvoke[linkStore](i))

		if rc := do.MustInvoke[*Redis](i); rc.Client != nil {
			return store.NewRedisCacheRepository(repo, rc.Client, time.Duration(opts.CacheTTL)*time.Second), nil
		}

		return repo, nil
	})

	do.Provide(i, func(i *do.Injector) (*links.Service, error) {
		opts := do.MustInvoke[*Options](i)

		gen, err := links.NewCodeGenerator(opts.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("code generator: %w", err)
		}

		return links.NewService(do.MustInvoke[links.Repository](i), gen), nil
	})
}

// Migrate applies the PostgreSQL schema. It is a no-op in memory mode.
func Migrate(ctx context.Context, i *do.Injector) error {
	pg := do.MustInvoke[*Postgres](i)
	if pg.Pool == nil {
		return nil
	}

	return store.NewPostgresStore(pg.Pool).Migrate(ctx)
}

// ScanPackage provides the deduplicator, the configured recorder and the tracker.
func ScanPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*scans.Deduplicator, error) {
		return scans.NewDeduplicator(scans.DefaultDedupWindow, scans.DefaultDedupCapacity, time.Now), nil
	})

	do.Provide(i, func(i *do.Injector) (scans.Recorder, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.ScanSink {
		case ScanSinkDirect, "":
			return scans.NewStoreRecorder(do.MustInvoke[scans.Store](i)), nil
		case ScanSinkStream:
			// Stats are read from the store the consumer writes to.
			if do.MustInvoke[*Postgres](i).Pool == nil {
				return nil, ErrStreamNeedsStore
			}

			group, err := do.Invoke[*messaging.PublisherGroup](i)
			if err != nil {
				return nil, err
			}

			return scans.NewStreamRecorder(
				messaging.NewPublishFunc[scans.Event](group.Publisher(), scans.TopicScanRecorded),
			), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownScanSink, opts.ScanSink)
		}
	})

	do.Provide(i, func(i *do.Injector) (*scans.Tracker, error) {
		return scans.NewTracker(
			do.MustInvoke[*scans.Deduplicator](i),
			do.MustInvoke[scans.Recorder](i),
			do.MustInvoke[*scans.Metrics](i),
			time.Now,
		), nil
	})
}

// RateLimitPackage provides *ratelimit.Limiter backed by Redis when available.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Limiter, error) {
		var rlStore ratelimit.Store = store.NewRateLimitMemoryStore()

		if rc := do.MustInvoke[*Redis](i); rc.Client != nil {
			rlStore = store.NewRateLimitRedisStore(rc.Client)
		}

		return ratelimit.NewLimiter(rlStore, ratelimit.DefaultPolicy()), nil
	})
}

// PublisherGroupPackage provides *messaging.PublisherGroup on Redis streams.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		rc := do.MustInvoke[*Redis](i)
		if rc.Client == nil {
			return nil, ErrStreamNeedsRedis
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: rc.Client},
			messaging.NewZapAdapter(do.MustInvoke[*zap.Logger](i)),
		)
		if err != nil {
			return nil, fmt.Errorf("create stream publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// ConsumerGroupPackage provides *messaging.ConsumerGroup running the scan
// persistence consumer.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		rc := do.MustInvoke[*Redis](i)
		if rc.Client == nil {
			return nil, ErrStreamNeedsRedis
		}

		if do.MustInvoke[*Postgres](i).Pool == nil {
			return nil, ErrConsumerNeedsStore
		}

		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        rc.Client,
				ConsumerGroup: ScanConsumerGroup,
			},
			messaging.NewZapAdapter(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create stream subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(
			subscriber,
			scans.TopicScanRecorded,
			scans.PersistHandler(do.MustInvoke[scans.Store](i), do.MustInvoke[*scans.Metrics](i), logger),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the huma API with all routes registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		tokens, err := auth.NewTokens(opts.JWTSecret, auth.DefaultTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("owner tokens, set --jwt-secret: %w", err)
		}

		api := humachi.New(router, huma.DefaultConfig("QR Links", serviceVersion))

		api.UseMiddleware(middleware.RequestMeta(api))
		clientKey := middleware.PeerClientKey
		if opts.TrustProxy {
			clientKey = middleware.ForwardedClientKey
		}

		api.UseMiddleware(middleware.RateLimiter(
			api,
			do.MustInvoke[*ratelimit.Limiter](i),
			ratelimit.NewOperationScopeResolver(),
			clientKey,
			logger,
		))
		api.UseMiddleware(middleware.Auth(api, tokens, logger))

		service := do.MustInvoke[*links.Service](i)
		handlers.RegisterRoutes(api,
			handlers.NewLinkHandler(service, do.MustInvoke[scans.Store](i), opts.ResolvedBaseURL(), logger),
			handlers.NewRedirectHandler(service, do.MustInvoke[*scans.Tracker](i), logger),
		)

		health.RegisterRoutes(api, health.NewHandler(healthCheckers(i)))

		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			do.MustInvoke[*prometheus.Registry](i),
			promhttp.HandlerOpts{},
		))

		return api, nil
	})
}

// healthCheckers returns nil checkers for dependencies that are not configured.
func healthCheckers(i *do.Injector) (health.Checker, health.Checker) {
	var redisChecker, pgChecker health.Checker

	if rc := do.MustInvoke[*Redis](i); rc.Client != nil {
		redisChecker = health.NewRedisChecker(rc.Client)
	}

	if pg := do.MustInvoke[*Postgres](i); pg.Pool != nil {
		pgChecker = health.NewPostgresChecker(pg.Pool)
	}

	return redisChecker, pgChecker
}

// IssueToken mints a bearer token for owner with the configured secret.
func IssueToken(opts *Options, owner string) (string, error) {
	tokens, err := auth.NewTokens(opts.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return "", err
	}

	return tokens.Issue(links.OwnerID(owner))
}
