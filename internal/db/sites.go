package db

import (
	"context"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

type Sites interface {
	GetSiteConfig(ctx context.Context, subdomain string) (domain.SiteConfig, error)
	UpsertSiteConfig(ctx context.Context, c domain.SiteConfig) error
	ListSiteConfigs(ctx context.Context) ([]domain.SiteConfig, error)
}

type RateLimits interface {
	// HitRateLimit counts one request for (principal, endpoint) in the fixed window that contains now, opening a
	// new window of the given length if the stored one has ended. It returns the count including this request.
	HitRateLimit(ctx context.Context, principal, endpoint string, now time.Time, window time.Duration) (count int64, resetAt time.Time, err error)
	// SweepRateLimits deletes counters whose window ended before now.
	SweepRateLimits(ctx context.Context, now time.Time) (int64, error)
}
