package queries

import "context"

const siteColumns = `subdomain, custom_domains, maintenance, health_check_path, proxy_target, env, created_at, updated_at`

func scanSiteConfig(row interface{ Scan(...any) error }) (SiteConfig, error) {
	var i SiteConfig
	err := row.Scan(
		&i.Subdomain,
		&i.CustomDomains,
		&i.Maintenance,
		&i.HealthCheckPath,
		&i.ProxyTarget,
		&i.Env,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSiteConfig = `SELECT ` + siteColumns + ` FROM site_configs WHERE subdomain = ?`

func (q *Queries) GetSiteConfig(ctx context.Context, subdomain string) (SiteConfig, error) {
	return scanSiteConfig(q.db.QueryRowContext(ctx, getSiteConfig, subdomain))
}

const upsertSiteConfig = `INSERT INTO site_configs (` + siteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (subdomain) DO UPDATE SET
	custom_domains = excluded.custom_domains,
	maintenance = excluded.maintenance,
	health_check_path = excluded.health_check_path,
	proxy_target = excluded.proxy_target,
	env = excluded.env,
	updated_at = excluded.updated_at`

func (q *Queries) UpsertSiteConfig(ctx context.Context, arg SiteConfig) error {
	_, err := q.db.ExecContext(ctx, upsertSiteConfig,
		arg.Subdomain,
		arg.CustomDomains,
		arg.Maintenance,
		arg.HealthCheckPath,
		arg.ProxyTarget,
		arg.Env,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listSiteConfigs = `SELECT ` + siteColumns + ` FROM site_configs ORDER BY subdomain`

func (q *Queries) ListSiteConfigs(ctx context.Context) ([]SiteConfig, error) {
	rows, err := q.db.QueryContext(ctx, listSiteConfigs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SiteConfig
	for rows.Next() {
		i, err := scanSiteConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// A stored window that ended at or before now is replaced by a fresh one starting with this request.
const hitRateLimit = `INSERT INTO rate_limits (principal, endpoint, request_count, reset_at) VALUES (?1, ?2, 1, ?3 + ?4)
ON CONFLICT (principal, endpoint) DO UPDATE SET
	request_count = CASE WHEN rate_limits.reset_at <= ?3 THEN 1 ELSE rate_limits.request_count + 1 END,
	reset_at = CASE WHEN rate_limits.reset_at <= ?3 THEN ?3 + ?4 ELSE rate_limits.reset_at END
RETURNING request_count, reset_at`

type HitRateLimitParams struct {
	Principal string
	Endpoint  string
	Now       int64
	WindowMs  int64
}

type HitRateLimitRow struct {
	RequestCount int64
	ResetAt      int64
}

func (q *Queries) HitRateLimit(ctx context.Context, arg HitRateLimitParams) (HitRateLimitRow, error) {
	row := q.db.QueryRowContext(ctx, hitRateLimit, arg.Principal, arg.Endpoint, arg.Now, arg.WindowMs)
	var i HitRateLimitRow
	err := row.Scan(&i.RequestCount, &i.ResetAt)
	return i, err
}

const sweepRateLimits = `DELETE FROM rate_limits WHERE reset_at < ?`

func (q *Queries) SweepRateLimits(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, sweepRateLimits, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
