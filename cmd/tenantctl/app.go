package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenancy/pkg/email"
	"github.com/dmitrymomot/tenancy/pkg/slug"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

// TenantEnv names the environment variable consulted when --tenant is empty.
const TenantEnv = "TENANT_ID"

var (
	errUsage          = errors.New("usage")
	errNoTarget       = errors.New("no tenant given: pass --tenant, set " + TenantEnv + " or use --all")
	errTargetConflict = errors.New("--tenant and --all are mutually exclusive")
	errUnknownTenant  = errors.New("tenant not found")
)

type tenantStore interface {
	tenant.Registry
	Create(ctx context.Context, t *tenant.Tenant) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type noteStore interface {
	Add(ctx context.Context, body string) (*tenantstore.Note, error)
	List(ctx context.Context) ([]tenantstore.Note, error)
}

// cacheInvalidator drops cached copies of a tenant. *tenant.CachedRegistry implements it.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, t *tenant.Tenant)
}

type app struct {
	store       tenantStore
	notes       noteStore
	cache       cacheInvalidator // nil when no shared cache is configured
	migrate     func(ctx context.Context) error
	out         io.Writer
	getenv      func(string) string
	concurrency int
	log         *slog.Logger
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "migrate":
		if err := a.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
		return nil
	case "list":
		return a.list(ctx)
	case "create":
		return a.create(ctx, args)
	case "activate":
		return a.setActive(ctx, "activate", args, true)
	case "deactivate":
		return a.setActive(ctx, "deactivate", args, false)
	case "notes":
		return a.listNotes(ctx, args)
	case "add-note":
		return a.addNote(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) list(ctx context.Context) error {
	tenants, err := a.store.GetAll(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSLUG\tNAME\tACTIVE\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", t.ID, t.Slug, t.Name, t.Active, t.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "Tenant display name")
	slugFlag := fs.String("slug", "", "Tenant slug; derived from --name when empty")
	mailerDSN := fs.String("mailer-dsn", "", "Tenant mailer DSN, e.g. postmark://token@default")
	inactive := fs.Bool("inactive", false, "Create the tenant deactivated")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}

	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("%w: --name is required", errUsage)
	}
	s := *slugFlag
	if s == "" {
		s = slug.Make(*name)
	}
	if !slug.Valid(s) {
		return fmt.Errorf("%w: %q", tenantstore.ErrInvalidTenant, s)
	}
	if *mailerDSN != "" {
		if _, err := email.ParseDSN(*mailerDSN); err != nil {
			return err
		}
	}

	t := &tenant.Tenant{
		Slug:      s,
		Name:      strings.TrimSpace(*name),
		Active:    !*inactive,
		MailerDSN: *mailerDSN,
	}
	if err := a.store.Create(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created tenant %s (%s)\n", t.Slug, t.ID)
	return nil
}

func (a *app) setActive(ctx context.Context, cmd string, args []string, active bool) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ref := fs.String("tenant", "", "Tenant slug or ID")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}

	targets, err := a.targets(ctx, *ref, false)
	if err != nil {
		return err
	}
	t := targets[0]
	if err := a.store.SetActive(ctx, t.ID, active); err != nil {
		return err
	}
	if a.cache != nil {
		a.cache.Invalidate(ctx, t)
	}
	fmt.Fprintf(a.out, "%sd tenant %s\n", cmd, t.Slug)
	return nil
}

func (a *app) listNotes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("notes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ref := fs.String("tenant", "", "Tenant slug or ID")
	all := fs.Bool("all", false, "Run for every active tenant")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}

	targets, err := a.targets(ctx, *ref, *all)
	if err != nil {
		return err
	}
	return a.forEach(ctx, targets, func(ctx context.Context, w io.Writer) error {
		notes, err := a.notes.List(ctx)
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Fprintf(w, "%s  %s  %s\n", n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Body)
		}
		return nil
	})
}

func (a *app) addNote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-note", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ref := fs.String("tenant", "", "Tenant slug or ID")
	body := fs.String("body", "", "Note text")
	if err := fs.Parse(args); err != nil {
		return errors.Join(errUsage, err)
	}

	targets, err := a.targets(ctx, *ref, false)
	if err != nil {
		return err
	}
	return a.forEach(ctx, targets, func(ctx context.Context, w io.Writer) error {
		n, err := a.notes.Add(ctx, *body)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "added note %s\n", n.ID)
		return nil
	})
}

// targets picks the tenants a command runs for. An explicit reference, from
// the flag or TENANT_ID, runs even for an inactive tenant; --all covers active
// tenants only.
func (a *app) targets(ctx context.Context, ref string, all bool) ([]*tenant.Tenant, error) {
	if all {
		if ref != "" {
			return nil, errTargetConflict
		}
		tenants, err := a.store.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		active := tenants[:0:0]
		for _, t := range tenants {
			if t.Active {
				active = append(active, t)
			}
		}
		return active, nil
	}

	if ref == "" {
		ref = strings.TrimSpace(a.getenv(TenantEnv))
	}
	if ref == "" {
		return nil, errNoTarget
	}

	var (
		t   *tenant.Tenant
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		t, err = a.store.FindByID(ctx, id)
	} else {
		t, err = a.store.FindBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownTenant, ref)
	}
	return []*tenant.Tenant{t}, nil
}

// forEach runs fn once per tenant, each with its own tenant scope and output
// buffer. Outputs are printed in target order once every run has finished.
func (a *app) forEach(ctx context.Context, targets []*tenant.Tenant, fn func(ctx context.Context, w io.Writer) error) error {
	outputs := make([]bytes.Buffer, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.concurrency, 1))
	for i, t := range targets {
		g.Go(func() error {
			err := tenant.Run(ctx, t, func(ctx context.Context) error {
				return fn(ctx, &outputs[i])
			})
			if err != nil {
				a.log.ErrorContext(ctx, "command failed for tenant",
					slog.String("tenant", t.Slug),
					slog.String("error", err.Error()))
				return fmt.Errorf("tenant %s: %w", t.Slug, err)
			}
			return nil
		})
	}
	err := g.Wait()

	for i, t := range targets {
		if len(targets) > 1 {
			fmt.Fprintf(a.out, "== %s ==\n", t.Slug)
		}
		_, _ = a.out.Write(outputs[i].Bytes())
	}
	return err
}
