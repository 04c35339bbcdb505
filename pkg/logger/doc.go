// Package logger builds the service's slog loggers: JSON or text output,
// per-environment defaults, static service attributes and context-derived
// attributes injected at log time.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Environment, "entitlementd"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//
// The attr helpers keep field names consistent across packages, e.g.
// logger.UserID(id) always logs under "user_id".
package logger
