// Package config loads application configuration from OPSDECK_*
// environment variables.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Key Variables
//
//	OPSDECK_PORT                     HTTP listen port (default 8080)
//	OPSDECK_DATABASE_DRIVER          postgres or sqlite3 (default postgres)
//	OPSDECK_DATABASE_URL             database connection string (required)
//	OPSDECK_REDIS_URL                optional; enables invalidation fan-out
//	OPSDECK_CACHE_ENABLED            decision cache toggle (default true)
//	OPSDECK_CACHE_MAX_ORGS           per-organization LRU bound (default 1024)
//	OPSDECK_AUDIT_ENABLED            audit trail toggle (default true)
//	OPSDECK_AUDIT_RETENTION_DAYS     retention window (default 90)
//	OPSDECK_AUDIT_SWEEP_SCHEDULE     cron expression (default "0 3 * * *")
//	OPSDECK_RATELIMIT_ENABLED        rate limiting toggle (default true)
//	OPSDECK_LOG_LEVEL                debug, info, warn, error (default info)
//
// LoadConfig validates the result; an invalid combination fails fast
// at startup rather than at first use.
package config
