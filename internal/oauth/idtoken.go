package oauth

import (
	"context"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// IDToken signs an OpenID Connect id token for u. The claims beyond the registered ones depend on scope the same way
// the userinfo claims do.
func (s *Service) IDToken(u domain.User, clientID, nonce string, scope domain.Scope) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.cfg.OAuthIssuer,
		"sub": strconv.FormatInt(u.ID, 10),
		"aud": clientID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(IDTokenTTL)),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range s.claims(u, scope) {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keys.KID()
	return token.SignedString(s.keys.private)
}

// UserInfo returns the claims about the principal's user that its token's scope unlocks. The token needs at least
// one of openid, profile or read.
func (s *Service) UserInfo(ctx context.Context, p domain.Principal) (map[string]any, error) {
	if !p.Scope.HasAny(domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeRead) {
		return nil, ErrInsufficientScope
	}
	if p.UserID == 0 {
		return nil, ErrInvalidToken
	}

	u, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	claims := s.claims(u, p.Scope)
	claims["sub"] = strconv.FormatInt(u.ID, 10)
	return claims, nil
}

func (s *Service) claims(u domain.User, scope domain.Scope) map[string]any {
	claims := map[string]any{}

	if scope.HasAny(domain.ScopeProfile, domain.ScopeRead) {
		claims["preferred_username"] = u.Username
		name := u.DisplayName
		if name == "" {
			name = u.Username
		}
		claims["name"] = name
		claims["profile"] = s.cfg.ProfileURL(u.Subdomain, u.Username).String()
		claims["picture"] = u.Settings.Picture
		claims["website"] = u.Settings.Website
		claims["updated_at"] = u.Updated.Unix()
	}

	if scope.Has(domain.ScopeEmail) && scope.Has(domain.ScopeOpenID) {
		claims["email"] = u.Email
		claims["email_verified"] = false
	}
	return claims
}
