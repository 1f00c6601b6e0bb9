package cache

import (
	"context"
	"time"

	"outletpos/backend/internal/closing"
)

// ReportCache holds finalized closing reports keyed by closing id. A closed
// shift never changes, so entries only expire by TTL.
type ReportCache interface {
	Get(ctx context.Context, closingID string) (*closing.Report, bool, error)
	Set(ctx context.Context, closingID string, report *closing.Report, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*closing.Report, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *closing.Report, _ time.Duration) error {
	return nil
}
