// Package tenantstore provides the PostgreSQL-backed tenant Registry and a
// small tenant-owned notes store used to exercise row-level security.
//
// The registry reads the tenants table created by the migrations package:
//
//	pool, _ := pg.Connect(ctx, cfg.PG)
//	reg := tenantstore.New(pool)
//	t, err := reg.FindBySlug(ctx, "acme") // nil, nil when absent
//
// Notes are always accessed inside rls.InTenantTx so that the database, not
// the query, filters rows by tenant.
package tenantstore
