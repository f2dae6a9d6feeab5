package oauth

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

const tokenBytes = 32

type ExchangeRequest struct {
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
}

type RefreshRequest struct {
	RefreshToken string
	// Scope optionally narrows the scope of the new tokens.
	Scope        string
	ClientID     string
	ClientSecret string
}

type minted struct {
	access       domain.AccessToken
	accessPlain  string
	refresh      *domain.RefreshToken
	refreshPlain string
}

func (s *Service) mint(clientID string, userID int64, scope domain.Scope, withRefresh bool) (m minted, err error) {
	now := s.now()
	if m.accessPlain, err = utils.RandomToken(tokenBytes); err != nil {
		return
	}
	m.access = domain.AccessToken{
		Hash:     utils.HashToken(m.accessPlain),
		ClientID: clientID,
		UserID:   userID,
		Scope:    scope,
		Expires:  now.Add(AccessTokenTTL),
		Created:  now,
	}

	if !withRefresh {
		return
	}
	if m.refreshPlain, err = utils.RandomToken(tokenBytes); err != nil {
		return
	}
	m.refresh = &domain.RefreshToken{
		Hash:     utils.HashToken(m.refreshPlain),
		ClientID: clientID,
		UserID:   userID,
		Scope:    scope,
		Expires:  now.Add(RefreshTokenTTL),
		Created:  now,
	}
	m.access.RefreshHash = m.refresh.Hash
	return
}

func (m minted) response() TokenResponse {
	return TokenResponse{
		AccessToken:  m.accessPlain,
		TokenType:    TokenType,
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		RefreshToken: m.refreshPlain,
		Scope:        m.access.Scope.String(),
	}
}

// Exchange redeems an authorization code. The code is consumed only if every check passes, and two concurrent
// exchanges of the same code never both succeed.
func (s *Service) Exchange(ctx context.Context, req ExchangeRequest) (TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return TokenResponse{}, err
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return TokenResponse{}, newError(CodeUnauthorizedClient, "client may not use the authorization code grant")
	}
	if req.Code == "" {
		return TokenResponse{}, newError(CodeInvalidRequest, "code is required")
	}

	var (
		m    minted
		code domain.AuthorizationCode
	)
	err = s.store.RedeemCode(ctx, utils.HashToken(req.Code), func(c domain.AuthorizationCode) (domain.AccessToken, *domain.RefreshToken, error) {
		switch {
		case c.ClientID != client.ID:
			return domain.AccessToken{}, nil, newError(CodeInvalidGrant, "code was issued to another client")
		case c.RedirectURI != req.RedirectURI:
			return domain.AccessToken{}, nil, newError(CodeInvalidGrant, "redirect_uri does not match")
		case !s.now().Before(c.Expires):
			return domain.AccessToken{}, nil, newError(CodeInvalidGrant, "code expired")
		}

		var err error
		if m, err = s.mint(client.ID, c.UserID, c.Scope, client.AllowsGrant(domain.GrantRefreshToken)); err != nil {
			return domain.AccessToken{}, nil, err
		}
		code = c
		return m.access, m.refresh, nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return TokenResponse{}, newError(CodeInvalidGrant, "unknown or already used code")
	} else if err != nil {
		return TokenResponse{}, err
	}

	res := m.response()
	if code.Scope.Has(domain.ScopeOpenID) {
		u, err := s.store.GetUserByID(ctx, code.UserID)
		if err != nil {
			return TokenResponse{}, err
		}
		if res.IDToken, err = s.IDToken(u, client.ID, code.Nonce, code.Scope); err != nil {
			return TokenResponse{}, err
		}
	}

	log.Debug().Str("client", client.ID).Int64("user", code.UserID).Msg("exchanged authorization code")
	return res, nil
}

// Refresh rotates a refresh token: the old one and the access tokens issued with it stop working and a new pair is
// returned. Nothing changes if any step fails.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return TokenResponse{}, err
	}
	if !client.AllowsGrant(domain.GrantRefreshToken) {
		return TokenResponse{}, newError(CodeUnauthorizedClient, "client may not use the refresh token grant")
	}
	if req.RefreshToken == "" {
		return TokenResponse{}, newError(CodeInvalidRequest, "refresh_token is required")
	}
	narrowed := domain.ParseScope(req.Scope)

	var m minted
	revoked, err := s.store.RotateRefreshToken(ctx, utils.HashToken(req.RefreshToken), func(old domain.RefreshToken) (domain.AccessToken, domain.RefreshToken, error) {
		switch {
		case old.ClientID != client.ID:
			return domain.AccessToken{}, domain.RefreshToken{}, newError(CodeInvalidGrant, "refresh token was issued to another client")
		case !s.now().Before(old.Expires):
			return domain.AccessToken{}, domain.RefreshToken{}, newError(CodeInvalidGrant, "refresh token expired")
		}

		scope := old.Scope
		if len(narrowed) > 0 {
			if !narrowed.SubsetOf(old.Scope) {
				return domain.AccessToken{}, domain.RefreshToken{}, newError(CodeInvalidScope, "scope exceeds the original grant")
			}
			scope = narrowed
		}

		var err error
		if m, err = s.mint(client.ID, old.UserID, scope, true); err != nil {
			return domain.AccessToken{}, domain.RefreshToken{}, err
		}
		return m.access, *m.refresh, nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return TokenResponse{}, newError(CodeInvalidGrant, "unknown or already used refresh token")
	} else if err != nil {
		return TokenResponse{}, err
	}

	for _, h := range revoked {
		s.cache.Delete(h)
	}
	return m.response(), nil
}

// ClientCredentials issues an access token that acts as the client itself. No refresh token is issued.
func (s *Service) ClientCredentials(ctx context.Context, clientID, secret, scope string) (TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, clientID, secret)
	if err != nil {
		return TokenResponse{}, err
	}
	if !client.AllowsGrant(domain.GrantClientCredentials) {
		return TokenResponse{}, newError(CodeUnauthorizedClient, "client may not use the client credentials grant")
	}

	requested := domain.ParseScope(scope)
	if len(requested) == 0 {
		requested = client.Scope
	}
	if !requested.SubsetOf(client.Scope) {
		return TokenResponse{}, newError(CodeInvalidScope, "requested scope exceeds the client's scope")
	}

	m, err := s.mint(client.ID, 0, requested, false)
	if err != nil {
		return TokenResponse{}, err
	}
	if err = s.store.InsertAccessToken(ctx, m.access); err != nil {
		return TokenResponse{}, err
	}
	return m.response(), nil
}
