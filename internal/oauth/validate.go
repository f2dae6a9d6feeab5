package oauth

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

// Validate resolves a bearer token to the principal it was issued for. Unknown, expired and revoked tokens all
// yield ErrInvalidToken.
func (s *Service) Validate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, ErrInvalidToken
	}
	hash := utils.HashToken(token)
	now := s.now()

	if v, ok := s.cache.Get(hash); ok && now.Before(v.expires) {
		return v.principal, nil
	}

	t, err := s.store.GetAccessToken(ctx, hash)
	if errors.Is(err, db.ErrNotFound) {
		return domain.Principal{}, ErrInvalidToken
	} else if err != nil {
		return domain.Principal{}, err
	}

	if !now.Before(t.Expires) {
		if err = s.store.DeleteAccessToken(ctx, hash); err != nil && !errors.Is(err, db.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to delete expired access token")
		}
		return domain.Principal{}, ErrInvalidToken
	}

	client, err := s.store.GetClient(ctx, t.ClientID)
	if errors.Is(err, db.ErrNotFound) {
		return domain.Principal{}, ErrInvalidToken
	} else if err != nil {
		return domain.Principal{}, err
	}
	if !client.Active {
		return domain.Principal{}, ErrInvalidToken
	}

	p := domain.Principal{
		UserID:   t.UserID,
		ClientID: t.ClientID,
		Scope:    t.Scope,
	}
	if t.UserID != 0 {
		u, err := s.store.GetUserByID(ctx, t.UserID)
		if errors.Is(err, db.ErrNotFound) {
			return domain.Principal{}, ErrInvalidToken
		} else if err != nil {
			return domain.Principal{}, err
		}
		if !u.Active {
			return domain.Principal{}, ErrInvalidToken
		}
		p.Username = u.Username
		p.Role = u.Role
	}

	s.cache.SetWithTTL(hash, validated{principal: p, expires: t.Expires}, t.Expires.Sub(now))
	return p, nil
}

// Revoke invalidates an access or refresh token of the client. Revoking a refresh token also revokes the access
// tokens issued with it. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, token, clientID string) error {
	hash := utils.HashToken(token)

	t, err := s.store.GetAccessToken(ctx, hash)
	switch {
	case err == nil && t.ClientID == clientID:
		s.cache.Delete(hash)
		if err = s.store.DeleteAccessToken(ctx, hash); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		return nil
	case err == nil:
		return nil
	case !errors.Is(err, db.ErrNotFound):
		return err
	}

	revoked, err := s.store.RevokeRefreshToken(ctx, hash, clientID)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	for _, h := range revoked {
		s.cache.Delete(h)
	}
	return nil
}

// Sweep removes expired codes and tokens.
func (s *Service) Sweep(ctx context.Context) {
	n, err := s.store.DeleteExpiredTokens(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired tokens")
		return
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Msg("swept expired tokens")
	}
}
