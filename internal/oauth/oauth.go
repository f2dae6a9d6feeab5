// Package oauth issues and validates OAuth 2.0 and OpenID Connect tokens. Tokens and authorization codes are opaque
// random strings; only their SHA-256 hashes are stored.
package oauth

import (
	"context"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/cache"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

const (
	CodeTTL         = 10 * time.Minute
	AccessTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
	IDTokenTTL      = time.Hour

	BcryptCost = 10
	TokenType  = "Bearer"
)

// Store is the part of the datastore the token service needs.
type Store interface {
	db.OAuth
	GetUserByID(ctx context.Context, id int64) (domain.User, error)
}

type validated struct {
	principal domain.Principal
	expires   time.Time
}

type Service struct {
	cfg   *config.Configuration
	store Store
	cache *cache.Cache[validated]
	keys  *Keys
	now   func() time.Time
}

func New(cfg *config.Configuration, store Store, keys *Keys) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		cache: cache.New[validated]("access_tokens", cache.DefaultSize, cache.DefaultTTL),
		keys:  keys,
		now:   time.Now,
	}
}

func (s *Service) Keys() *Keys {
	return s.keys
}

func (s *Service) Issuer() string {
	return s.cfg.OAuthIssuer
}

// TokenResponse is the body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}
