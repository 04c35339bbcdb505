// Package pg wires the service to PostgreSQL: pool creation with startup
// retries, goose schema migrations and a connectivity probe for the health
// endpoint. Query code lives in pkg/pgstore; this package only hands out a
// ready *pgxpool.Pool.
//
// Configuration comes from PG_* environment variables, loaded through
// pkg/config:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
package pg
