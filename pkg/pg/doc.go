// Package pg bootstraps the PostgreSQL connection pool (pgx/v5) and applies
// goose migrations from an embedded filesystem.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations.FS, ".", cfg, logger); err != nil {
//		return err
//	}
//
// Error helpers classify *pgconn.PgError codes so repositories can map
// constraint violations to domain errors.
package pg
