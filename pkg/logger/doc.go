// Package logger builds *slog.Logger values for the service.
//
// New applies functional options and wraps the JSON or text handler in a
// LogHandlerDecorator, which appends attributes taken from the record's
// context. Register tenant.LoggerExtractor to tag every record written while
// a tenant is active:
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Parse(os.Getenv("APP_ENV")), "tenancy"),
//		logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
// The helpers in attr.go (TenantID, TaskID, Component, Error, ...) keep
// attribute keys consistent across packages. WithEnvironment already tags
// records with "env"; environment.LoggerExtractor is for loggers built
// without it. Error and Errors return an
// empty Attr for nil errors, which slog drops.
package logger
