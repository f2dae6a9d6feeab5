package db

import (
	"context"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// Redeemer validates a stored authorization code and builds the tokens that replace it. Returning an error aborts
// the redemption and leaves the code in place.
type Redeemer func(code domain.AuthorizationCode) (domain.AccessToken, *domain.RefreshToken, error)

// Rotator validates a stored refresh token and builds its replacements.
type Rotator func(old domain.RefreshToken) (domain.AccessToken, domain.RefreshToken, error)

type OAuth interface {
	InsertClient(ctx context.Context, c domain.OAuthClient) error
	GetClient(ctx context.Context, id string) (domain.OAuthClient, error)
	ListClientsByOwner(ctx context.Context, ownerID int64) ([]domain.OAuthClient, error)
	// DeactivateClient marks the client inactive. ownerID zero skips the ownership check.
	DeactivateClient(ctx context.Context, id string, ownerID int64) error

	InsertCode(ctx context.Context, c domain.AuthorizationCode) error
	// RedeemCode deletes the code and stores the tokens built by redeem in one transaction. Of two concurrent
	// redemptions of the same code at most one succeeds; the other gets ErrNotFound.
	RedeemCode(ctx context.Context, code string, redeem Redeemer) error
	// RotateRefreshToken replaces the refresh token identified by hash with the tokens built by rotate, deleting
	// the old refresh token and the access tokens issued with it. It returns the hashes of the deleted access
	// tokens. Nothing changes if rotate fails.
	RotateRefreshToken(ctx context.Context, hash string, rotate Rotator) (revoked []string, err error)

	InsertAccessToken(ctx context.Context, t domain.AccessToken) error
	GetAccessToken(ctx context.Context, hash string) (domain.AccessToken, error)
	DeleteAccessToken(ctx context.Context, hash string) error
	// RevokeRefreshToken deletes a refresh token of the given client and the access tokens issued with it.
	RevokeRefreshToken(ctx context.Context, hash, clientID string) (revoked []string, err error)
	// DeleteExpiredTokens removes codes and tokens that expired before now.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	GetConsent(ctx context.Context, userID int64, clientID string) (domain.Consent, error)
	PutConsent(ctx context.Context, c domain.Consent) error
}
