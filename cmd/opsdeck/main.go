package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/opsdeck/opsdeck/pkg/audit"
	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/config"
	"github.com/opsdeck/opsdeck/pkg/middleware"
	"github.com/opsdeck/opsdeck/pkg/observability"
	"github.com/opsdeck/opsdeck/pkg/orgs"
)

var version = "dev"

func main() {
	// Bootstrap logger for startup failures, before config is parsed
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		boot.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	if err := authz.RunMigrations(ctx, db); err != nil {
		boot.Fatalf("Failed to run migrations: %v", err)
	}

	store := authz.NewStore(db)
	if err := authz.SeedPermissions(ctx, store); err != nil {
		boot.Fatalf("Failed to seed permissions: %v", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	// Decision cache with exact per-organization invalidation. With
	// Redis configured, purges fan out to every instance.
	var cache *authz.DecisionCache
	var invalidator authz.Invalidator
	var redisClient *redis.Client
	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	if cfg.Cache.Enabled {
		cache, err = authz.NewDecisionCache(cfg.Cache.MaxOrganizations)
		if err != nil {
			boot.Fatalf("Failed to create decision cache: %v", err)
		}

		if cfg.Redis.Enabled() {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.URL,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			redisInv := authz.NewRedisInvalidator(redisClient, cfg.Redis.InvalidationChannel, cache, logger)
			go func() {
				defer observability.RecoverPanic(logger, "invalidation listener")
				redisInv.Listen(listenCtx)
			}()
			invalidator = redisInv
		} else {
			invalidator = authz.NewLocalInvalidator(cache)
		}
	}

	// Audit trail
	var auditLogger audit.Logger = audit.NewNopLogger()
	var auditDB *audit.DBLogger
	if cfg.Audit.Enabled {
		auditDB, err = audit.NewDBLogger(db)
		if err != nil {
			boot.Fatalf("Failed to initialize audit trail: %v", err)
		}
		auditLogger = auditDB
	}

	// Core authorization components
	resolverOpts := []authz.ResolverOption{}
	if cache != nil {
		resolverOpts = append(resolverOpts, authz.WithDecisionCache(cache))
	}
	if metrics != nil {
		resolverOpts = append(resolverOpts, authz.WithResolverMetrics(metrics))
	}
	resolver := authz.NewResolver(store, logger, resolverOpts...)
	gate := authz.NewGate(resolver, logger, authz.WithAuditLogger(auditLogger))

	adminOpts := []authz.AdminOption{authz.WithAdminAuditLogger(auditLogger)}
	if invalidator != nil {
		adminOpts = append(adminOpts, authz.WithInvalidator(invalidator))
	}
	if metrics != nil {
		adminOpts = append(adminOpts, authz.WithAdminMetrics(metrics))
	}
	admin := authz.NewAdmin(store, logger, adminOpts...)

	orgOpts := []orgs.ServiceOption{orgs.WithAuditLogger(auditLogger)}
	if invalidator != nil {
		orgOpts = append(orgOpts, orgs.WithInvalidator(invalidator))
	}
	orgService := orgs.NewService(store, admin, logger, orgOpts...)

	// Audit retention sweep
	scheduler := cron.New()
	if auditDB != nil {
		_, err = scheduler.AddFunc(cfg.Audit.SweepSchedule, func() {
			defer observability.RecoverPanic(logger, "audit retention sweep")
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Audit.RetentionDays)
			pruned, err := auditDB.Prune(context.Background(), cutoff)
			if err != nil {
				logger.WithError(err).Error("audit retention sweep failed")
				return
			}
			if metrics != nil {
				metrics.CountAuditPruned(pruned)
			}
			logger.WithField("pruned", pruned).Info("audit retention sweep complete")
		})
		if err != nil {
			boot.Fatalf("Failed to schedule audit retention sweep: %v", err)
		}
		scheduler.Start()
	}

	router := buildRouter(cfg, logger, metrics, db, redisClient, gate, store, admin, resolver, orgService, auditDB)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("OpsDeck authorization service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			boot.Fatalf("Server failed: %v", err)
		}
	}()

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	sm.RegisterCleanup("cron", func(ctx context.Context) error {
		stopCtx := scheduler.Stop()
		select {
		case <-stopCtx.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.RegisterCleanup("invalidation listener", func(context.Context) error {
		stopListener()
		return nil
	})
	if redisClient != nil {
		sm.RegisterCleanup("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	sm.RegisterCleanup("database", func(context.Context) error {
		return db.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		boot.Fatalf("Shutdown failed: %v", err)
	}
}

func connectDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildRouter(
	cfg *config.Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	db *sql.DB,
	redisClient *redis.Client,
	gate *authz.Gate,
	store *authz.Store,
	admin *authz.Admin,
	resolver *authz.Resolver,
	orgService *orgs.Service,
	auditDB *audit.DBLogger,
) *mux.Router {
	router := mux.NewRouter()

	// Unauthenticated operational endpoints
	checker := observability.NewHealthChecker(db, redisClient, version)
	observability.RegisterHealthRoutes(router, checker)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	// API surface: request correlation, identity, organization scope
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestIDMiddleware)
	api.Use(middleware.RequestLoggingMiddleware(logger))
	api.Use(middleware.NewAuthMiddleware(false).Handler)
	api.Use(middleware.OrgContextMiddleware(orgService))

	if cfg.RateLimit.Enabled {
		rlConfig := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.WindowDuration,
			BurstSize:         cfg.RateLimit.BurstSize,
		}
		if redisClient != nil {
			limiter := middleware.NewDistributedRateLimiter(redisClient, rlConfig, "opsdeck:ratelimit")
			api.Use(middleware.DistributedRateLimitMiddleware(limiter, logger))
		} else {
			api.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(rlConfig)))
		}
	}

	perms := authz.NewPermissionMiddleware(gate)

	// Organization lifecycle. Creation and user registration have no
	// organization scope; membership management is guarded.
	orgHandlers := orgs.NewHandlers(orgService, logger)
	orgHandlers.RegisterRoutes(api)

	memberAdmin := api.PathPrefix("/orgs/{org_id}/members").Subrouter()
	memberAdmin.Use(perms.RequirePermission("org.members.manage"))
	orgHandlers.RegisterMemberRoutes(memberAdmin)

	// Role and permission administration
	authzAdmin := api.PathPrefix("/authz").Subrouter()
	authzAdmin.Use(perms.RequirePermission("org.roles.manage"))
	authz.NewHandlers(store, admin, resolver, logger).RegisterRoutes(authzAdmin)

	// Audit trail, visible to organization settings managers
	if auditDB != nil {
		auditRoutes := api.PathPrefix("/audit").Subrouter()
		auditRoutes.Use(perms.RequirePermission("org.settings.manage"))
		audit.NewHandlers(auditDB, logger).RegisterRoutes(auditRoutes)
	}

	return router
}
