package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/raakeshmj/keygate/internal/apperr"
	"github.com/raakeshmj/keygate/internal/audit"
	"github.com/raakeshmj/keygate/internal/circuitbreaker"
	"github.com/raakeshmj/keygate/internal/config"
	"github.com/raakeshmj/keygate/internal/license"
	"github.com/raakeshmj/keygate/internal/limiter"
	"github.com/raakeshmj/keygate/internal/lock"
	"github.com/raakeshmj/keygate/internal/metrics"
	"github.com/raakeshmj/keygate/internal/middleware"
	"github.com/raakeshmj/keygate/internal/policy"
	"github.com/raakeshmj/keygate/internal/reliability"
	"github.com/raakeshmj/keygate/internal/repository"
	"github.com/raakeshmj/keygate/internal/repository/memory"
	"github.com/raakeshmj/keygate/internal/repository/sqlrepo"
	"github.com/raakeshmj/keygate/internal/service"
	"github.com/raakeshmj/keygate/internal/session"
	"github.com/raakeshmj/keygate/internal/store"
	"github.com/raakeshmj/keygate/internal/store/httpsql"
	"github.com/raakeshmj/keygate/internal/store/mysqlsql"
	"github.com/raakeshmj/keygate/internal/token"
)

const (
	storeBreakerName = "sql-store"
	lockTTL          = 5 * time.Second
	lockWait         = 2 * time.Second
	localLimiterKeys = 10000
	readyTimeout     = 2 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	router    chi.Router
	responder *apperr.Responder

	codec         *token.Codec
	sessions      *session.Manager
	authService   *service.AuthService
	keyService    *service.KeyService
	deviceService *service.DeviceService

	metrics      *metrics.MetricsCollector
	auditLogger  audit.Logger
	policyEngine *policy.Engine
	rateLimiter  limiter.Limiter
	redisClient  *redis.Client

	users  repository.UserRepository
	keys   repository.KeyRepository
	store  pinger
	closer io.Closer
}

type Option func(*Server)

// WithRepositories bypasses the configured store driver.
func WithRepositories(users repository.UserRepository, keys repository.KeyRepository) Option {
	return func(s *Server) { s.users, s.keys = users, keys }
}

func WithAuditLogger(l audit.Logger) Option {
	return func(s *Server) { s.auditLogger = l }
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		responder:   apperr.NewResponder(bool(cfg.Debug), logger),
		metrics:     metrics.NewCollector(),
		auditLogger: audit.NewJSONLogger(os.Stdout),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RedisAddr != "" {
		s.redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	codec, err := token.New(cfg.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	sameSite, err := cfg.Session.SameSiteMode()
	if err != nil {
		return nil, err
	}
	s.codec = codec
	s.sessions = session.NewManager(codec, session.Options{SameSite: sameSite, Secure: cfg.Session.Secure})

	if s.users == nil || s.keys == nil {
		if err := s.openStore(); err != nil {
			return nil, err
		}
	}

	locker := lock.Locker(lock.Noop{})
	if s.redisClient != nil {
		locker = lock.NewRedisLocker(s.redisClient, lockTTL, lockWait)
		s.rateLimiter = limiter.NewTokenBucketLimiter(s.redisClient)
	} else {
		s.rateLimiter = limiter.NewLocalLimiter(localLimiterKeys)
	}

	activator := license.NewActivator(s.keys,
		license.WithLocker(locker),
		license.WithObserver(func(o license.Outcome) { s.metrics.ObserveActivation(string(o)) }),
	)

	s.authService = service.NewAuthService(s.users, s.sessions)
	s.keyService = service.NewKeyService(s.keys, s.users)
	s.deviceService = service.NewDeviceService(activator)

	s.policyEngine = policy.NewEngine(policy.Policy{ID: "default", Rules: policy.Rules{AuthRequired: true}})
	s.policyEngine.LoadPolicies(routePolicies(cfg.RateLimit))

	s.router = s.routes()
	return s, nil
}

// openStore builds the executor for STORE_DRIVER. With redis configured the
// executor is guarded by the shared circuit breaker.
func (s *Server) openStore() error {
	var exec store.Executor
	switch s.cfg.Store.Driver {
	case config.DriverMemory:
		repo := memory.New()
		s.users, s.keys = repo, repo
		return nil
	case config.DriverMySQL:
		db, err := mysqlsql.Open(s.cfg.Store.MySQLDSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		exec, s.store, s.closer = db, db, db
	default:
		client, err := httpsql.New(s.cfg.SQLAPIURL,
			httpsql.WithMethod(s.cfg.Store.Method),
			httpsql.WithTimeout(s.cfg.Store.Timeout),
		)
		if err != nil {
			return fmt.Errorf("sql api client: %w", err)
		}
		exec, s.store = client, client
	}

	var breaker store.Breaker
	if s.redisClient != nil {
		strategy, err := reliability.ParseStrategy(s.cfg.Store.BreakerStrategy)
		if err != nil {
			return err
		}
		breaker = circuitbreaker.New(s.redisClient, s.cfg.Store.BreakerFailures, s.cfg.Store.BreakerCooldown, s.logger).
			WithStrategy(strategy)
	}
	exec = store.Guard(exec, breaker, storeBreakerName, circuitbreaker.IsOpen, s.metrics)

	repo := sqlrepo.New(exec)
	s.users, s.keys = repo, repo
	return nil
}

// routePolicies lists the public routes; everything else falls back to the
// authenticated default.
func routePolicies(rl config.RateLimitConfig) []policy.Policy {
	authRate, authBurst := rl.AuthRate, rl.AuthBurst
	clientRate, clientBurst := rl.ClientRate, rl.ClientBurst
	if !rl.Enabled {
		authRate, clientRate = 0, 0
	}

	// Public paths match any method; a wrong one reaches MethodNotAllowed.
	public := func(id, path string, rate float64, burst int) policy.Policy {
		return policy.Policy{
			ID:      id,
			Matcher: policy.Matcher{Path: path, Exact: true},
			Rules:   policy.Rules{RateLimit: rate, Burst: burst},
		}
	}
	return []policy.Policy{
		public("register", "/register", authRate, authBurst),
		public("login", "/login", authRate, authBurst),
		public("token", "/token", authRate, authBurst),
		public("logout", "/logout", 0, 0),
		public("login-client", "/login-client", clientRate, clientBurst),
		public("health", "/health", 0, 0),
		public("ready", "/ready", 0, 0),
		public("metrics", "/metrics", 0, 0),
		{ID: "preflight", Matcher: policy.Matcher{Method: http.MethodOptions, Path: "/"}},
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Order: Metrics (outer) -> RequestID -> Logging -> Recover -> Security -> CORS
	// -> Policy -> Auth -> Audit -> RateLimit -> Handler
	r.Use(
		middleware.MetricsMiddleware(s.metrics),
		middleware.RequestID(),
		middleware.RequestLogger(s.logger),
		middleware.Recoverer(s.responder),
		middleware.SecureHeaders(middleware.SecurityConfig{HSTS: s.cfg.Session.Secure}),
		middleware.CORS(s.cfg.AllowedOrigins),
		middleware.PolicyEnforcer(s.policyEngine),
		middleware.AuthMiddleware(s.sessions, s.responder),
		middleware.AuditMiddleware(s.auditLogger),
		middleware.RateLimit(s.rateLimiter, s.responder, s.logger, s.metrics.RateLimited),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.responder.Write(w, r, apperr.New(apperr.NotFound, "Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.responder.Write(w, r, apperr.Newf(apperr.InvalidRequestFormat, "Method %s not allowed", r.Method))
	})

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/token", s.handleToken)
	r.Post("/logout", s.handleLogout)

	r.Get("/get-key", s.handleGetKey)
	r.Post("/add-key", s.handleAddKey)
	r.Post("/delete-key", s.handleDeleteKey)
	r.Post("/reset-key", s.handleResetKey)
	r.Get("/get-info", s.handleGetInfo)

	r.Post("/login-client", s.handleClientLogin)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then drains in-flight requests within
// the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("store", s.cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := s.Close(); cerr != nil {
		s.logger.Warn("closing resources", slog.String("error", cerr.Error()))
	}
	return err
}

// Close releases the store and redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.closer != nil {
		errs = append(errs, s.closer.Close())
	}
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) checkReady(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	checks := map[string]string{}
	check := func(name string, err error) {
		if err != nil {
			checks[name] = strings.TrimSpace(err.Error())
			return
		}
		checks[name] = "ok"
	}
	if s.redisClient != nil {
		check("redis", s.redisClient.Ping(ctx).Err())
	}
	if s.store != nil {
		check("store", s.store.Ping(ctx))
	}
	return checks
}
