// Package environment propagates the application environment (development,
// staging, production, test) through context.Context.
//
// Tenant middleware uses it to decide whether error responses may carry
// resolution diagnostics: they are hidden in production.
//
//	handler = environment.Middleware(environment.Parse(cfg.AppEnv))(handler)
//
//	if environment.IsProduction(ctx) {
//		// hide internals
//	}
//
// LoggerExtractor adds an "env" attribute to slog records.
package environment
