package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/db/impl/queries"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

func (d *dbImpl) GetSiteConfig(ctx context.Context, subdomain string) (domain.SiteConfig, error) {
	row, err := d.queries.GetSiteConfig(ctx, subdomain)
	if err != nil {
		return domain.SiteConfig{}, d.HandleError(err)
	}
	return siteConfigFromRow(row)
}

func (d *dbImpl) UpsertSiteConfig(ctx context.Context, c domain.SiteConfig) error {
	domains := c.CustomDomains
	if domains == nil {
		domains = []string{}
	}
	customDomains, err := json.Marshal(domains)
	if err != nil {
		return err
	}

	env := c.Env
	if env == nil {
		env = map[string]string{}
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return err
	}

	now := time.Now()
	created := c.Created
	if created.IsZero() {
		created = now
	}

	return d.HandleError(d.queries.UpsertSiteConfig(ctx, queries.SiteConfig{
		Subdomain:       c.Subdomain,
		CustomDomains:   string(customDomains),
		Maintenance:     c.Maintenance,
		HealthCheckPath: c.HealthCheckPath,
		ProxyTarget:     nullString(c.ProxyTarget),
		Env:             string(envJSON),
		CreatedAt:       millis(created),
		UpdatedAt:       millis(now),
	}))
}

func (d *dbImpl) ListSiteConfigs(ctx context.Context) ([]domain.SiteConfig, error) {
	rows, err := d.queries.ListSiteConfigs(ctx)
	if err != nil {
		return nil, d.HandleError(err)
	}

	configs := make([]domain.SiteConfig, 0, len(rows))
	for _, row := range rows {
		c, err := siteConfigFromRow(row)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, nil
}

func (d *dbImpl) HitRateLimit(ctx context.Context, principal, endpoint string, now time.Time, window time.Duration) (int64, time.Time, error) {
	row, err := d.queries.HitRateLimit(ctx, queries.HitRateLimitParams{
		Principal: principal,
		Endpoint:  endpoint,
		Now:       now.UnixMilli(),
		WindowMs:  window.Milliseconds(),
	})
	if err != nil {
		return 0, time.Time{}, d.HandleError(err)
	}
	return row.RequestCount, time.UnixMilli(row.ResetAt), nil
}

func (d *dbImpl) SweepRateLimits(ctx context.Context, now time.Time) (int64, error) {
	n, err := d.queries.SweepRateLimits(ctx, now.UnixMilli())
	return n, d.HandleError(err)
}

func siteConfigFromRow(row queries.SiteConfig) (domain.SiteConfig, error) {
	c := domain.SiteConfig{
		Subdomain:       row.Subdomain,
		Maintenance:     row.Maintenance,
		HealthCheckPath: row.HealthCheckPath,
		ProxyTarget:     row.ProxyTarget.String,
		Created:         fromMillis(row.CreatedAt),
		Updated:         fromMillis(row.UpdatedAt),
	}

	if err := json.Unmarshal([]byte(row.CustomDomains), &c.CustomDomains); err != nil {
		return domain.SiteConfig{}, fmt.Errorf("%w: malformed custom domains of %s", db.ErrInternal, row.Subdomain)
	}
	if err := json.Unmarshal([]byte(row.Env), &c.Env); err != nil {
		return domain.SiteConfig{}, fmt.Errorf("%w: malformed env of %s", db.ErrInternal, row.Subdomain)
	}
	return c, nil
}
