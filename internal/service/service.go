package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"outletpos/backend/internal/cache"
	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
	"outletpos/backend/internal/xid"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrAlreadyClockedIn = errors.New("already clocked in")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Location              *time.Location
	LargeDiscrepancyCents int64
	ReportCacheTTL        time.Duration
	Clock                 func() time.Time
	Logger                *slog.Logger
}

type Service struct {
	repo      store.Repository
	auth      closing.Authorizer
	reports   cache.ReportCache
	guard     *closing.CommitGuard
	loc       *time.Location
	threshold int64
	reportTTL time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func New(repo store.Repository, auth closing.Authorizer, reports cache.ReportCache, opts Options) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LargeDiscrepancyCents <= 0 {
		opts.LargeDiscrepancyCents = closing.DefaultLargeDiscrepancyCents
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		repo:      repo,
		auth:      auth,
		reports:   reports,
		guard:     closing.NewCommitGuard(),
		loc:       opts.Location,
		threshold: opts.LargeDiscrepancyCents,
		reportTTL: opts.ReportCacheTTL,
		now:       opts.Clock,
		log:       opts.Logger.With("component", "service"),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, outletID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanApprove() {
		return nil, ErrForbidden
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation(domain.DayKeyLayout, date, s.loc)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, outletID, from, to, limit)
}

// loadSnapshot reads every stream the closing engine consumes in parallel.
func (s *Service) loadSnapshot(ctx context.Context, since time.Time) (closing.Snapshot, error) {
	var snap closing.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.Attendance, err = s.repo.ListAttendance(gctx, since)
		return wrapRead("attendance", err)
	})
	g.Go(func() (err error) {
		snap.Transactions, err = s.repo.ListTransactions(gctx, since)
		return wrapRead("transactions", err)
	})
	g.Go(func() (err error) {
		snap.Expenses, err = s.repo.ListExpenses(gctx, since)
		return wrapRead("expenses", err)
	})
	g.Go(func() (err error) {
		snap.Production, err = s.repo.ListProduction(gctx, since)
		return wrapRead("production", err)
	})
	g.Go(func() (err error) {
		snap.Purchases, err = s.repo.ListPurchases(gctx, since)
		return wrapRead("purchases", err)
	})
	g.Go(func() (err error) {
		snap.Transfers, err = s.repo.ListTransfers(gctx, since)
		return wrapRead("transfers", err)
	})
	g.Go(func() (err error) {
		snap.Inventory, err = s.repo.ListInventory(gctx)
		return wrapRead("inventory", err)
	})
	g.Go(func() (err error) {
		snap.Closings, err = s.repo.ListClosings(gctx, since)
		return wrapRead("closings", err)
	})

	if err := g.Wait(); err != nil {
		return closing.Snapshot{}, err
	}
	return snap, nil
}

func wrapRead(stream string, err error) error {
	if err != nil {
		return fmt.Errorf("read %s: %w", stream, err)
	}
	return nil
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.StaffID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// resolveOutlet defaults to the actor's outlet. Cashiers are confined to
// their own outlet; owners and managers may act anywhere.
func resolveOutlet(actor domain.Actor, outletID string) (string, error) {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		outletID = actor.OutletID
	}
	if outletID == "" {
		return "", store.ErrInvalidTransaction
	}
	if outletID != actor.OutletID && !actor.Role.CanApprove() {
		return "", ErrForbidden
	}
	return outletID, nil
}

func (s *Service) dayKey(t time.Time) string {
	return domain.DayKey(t, s.loc)
}

func (s *Service) logAudit(ctx context.Context, outletID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: domain.Role("system")}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		OutletID:      outletID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "failed to write audit log", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
