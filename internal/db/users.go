package db

import (
	"context"
	"crypto"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

type Users interface {
	// InsertUser persists a new local user and returns its id. A taken username, email or subdomain yields
	// ErrConflict.
	InsertUser(ctx context.Context, u domain.UserInternal) (int64, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, error)
	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserBySubdomain(ctx context.Context, subdomain string) (domain.User, error)
	GetUserByFederationID(ctx context.Context, iri *url.URL) (domain.User, error)
	GetUserPrivateKeyByURI(ctx context.Context, iri *url.URL) (crypto.PrivateKey, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	UpdateProfile(ctx context.Context, id int64, displayName, summary string, settings domain.Settings) error
	CountUsers(ctx context.Context) (int64, error)
	AdminExists(ctx context.Context) (bool, error)
}

type Subdomains interface {
	InsertSubdomainRegistration(ctx context.Context, r domain.SubdomainRegistration) error
	GetSubdomainRegistration(ctx context.Context, userID int64) (domain.SubdomainRegistration, error)
	// VerifySubdomain consumes a pending verification token, marks the registration verified and sets the user's
	// subdomain, all in one transaction. Unknown or already used tokens yield ErrNotFound.
	VerifySubdomain(ctx context.Context, token string, at time.Time) (domain.SubdomainRegistration, error)
	// SubdomainTaken reports whether a user or a registration, pending or not, already claims the subdomain.
	SubdomainTaken(ctx context.Context, subdomain string) (bool, error)
}
