// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown.
//
// # Structured Logging
//
// Create a JSON logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("organization_id", orgID).Info("cache invalidated")
//
// Attach errors and field maps:
//
//	logger.WithError(err).Error("resolution failed")
//
// # Prometheus Metrics
//
// Initialize metrics on a private registry:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveDecision(true, "ROLE_GRANT", elapsed)
//	metrics.CountDecisionCache(true)
//
// Expose the scrape endpoint:
//
//	router.Handle("/metrics", metrics.Handler())
//
// # Health Checks
//
// Configure a health checker over the database and optional redis:
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # Graceful Shutdown
//
//	sm := observability.NewShutdownManager(logger, server, 30*time.Second)
//	sm.RegisterCleanup("database", func(ctx context.Context) error { return db.Close() })
//	sm.WaitForShutdown()
//
// # Related Packages
//
//   - pkg/config: log level and listen address configuration
//   - pkg/middleware: request logging middleware
package observability
