package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/utils"
	"github.com/sidereusnuntius/fedhost/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	clientIDBytes     = 16
	clientSecretBytes = 32
)

type ClientRequest struct {
	Name         string
	RedirectURIs []string
	GrantTypes   []domain.GrantType
	Scope        domain.Scope
	// OwnerID is zero for system clients.
	OwnerID int64
}

// RegisterClient creates a client and returns it with its plain secret, which is not retrievable afterwards.
func (s *Service) RegisterClient(ctx context.Context, req ClientRequest) (client domain.OAuthClient, secret string, err error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return client, "", newError(CodeInvalidRequest, "client name is required")
	}
	if len(req.RedirectURIs) == 0 {
		return client, "", newError(CodeInvalidRequest, "at least one redirect uri is required")
	}
	for _, uri := range req.RedirectURIs {
		if err = validate.RedirectURI(uri); err != nil {
			return client, "", newError(CodeInvalidRequest, err.Error())
		}
	}

	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []domain.GrantType{domain.GrantAuthorizationCode, domain.GrantRefreshToken}
	}
	for _, g := range req.GrantTypes {
		if !supportedGrant(g) {
			return client, "", newError(CodeInvalidRequest, fmt.Sprintf("unsupported grant type %q", g))
		}
	}

	if len(req.Scope) == 0 {
		req.Scope = domain.Scope{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeRead}
	}
	if unknown := req.Scope.Unknown(); len(unknown) > 0 {
		return client, "", newError(CodeInvalidScope, "unknown scope "+strings.Join(unknown, " "))
	}

	id, err := utils.RandomToken(clientIDBytes)
	if err != nil {
		return client, "", err
	}
	if secret, err = utils.RandomToken(clientSecretBytes); err != nil {
		return client, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return client, "", err
	}

	client = domain.OAuthClient{
		ID:           id,
		SecretHash:   string(hash),
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scope:        req.Scope,
		OwnerID:      req.OwnerID,
		Active:       true,
		Created:      s.now(),
	}
	if err = s.store.InsertClient(ctx, client); err != nil {
		return domain.OAuthClient{}, "", err
	}

	log.Info().Str("client", client.ID).Int64("owner", client.OwnerID).Msg("registered oauth client")
	return client, secret, nil
}

// AuthenticateClient checks the client's credentials. Every failure is reported as invalid_client so callers cannot
// tell unknown clients from wrong secrets.
func (s *Service) AuthenticateClient(ctx context.Context, id, secret string) (domain.OAuthClient, error) {
	if id == "" || secret == "" {
		return domain.OAuthClient{}, newError(CodeInvalidClient, "client authentication failed")
	}

	c, err := s.store.GetClient(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return domain.OAuthClient{}, newError(CodeInvalidClient, "client authentication failed")
	} else if err != nil {
		return domain.OAuthClient{}, err
	}

	if !c.Active || bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) != nil {
		return domain.OAuthClient{}, newError(CodeInvalidClient, "client authentication failed")
	}
	return c, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.OAuthClient, error) {
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, ownerID int64) ([]domain.OAuthClient, error) {
	return s.store.ListClientsByOwner(ctx, ownerID)
}

// DeactivateClient revokes a client and, with it, every token issued to it.
func (s *Service) DeactivateClient(ctx context.Context, id string, ownerID int64) error {
	if err := s.store.DeactivateClient(ctx, id, ownerID); err != nil {
		return err
	}
	s.cache.Purge()
	log.Info().Str("client", id).Msg("deactivated oauth client")
	return nil
}

// EnsureClient registers a system client with a known id and secret if it does not exist yet.
func (s *Service) EnsureClient(ctx context.Context, c domain.OAuthClient, secret string) error {
	_, err := s.store.GetClient(ctx, c.ID)
	if err == nil {
		return nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return err
	}
	c.SecretHash = string(hash)
	c.Active = true
	c.Created = s.now()
	return s.store.InsertClient(ctx, c)
}

func supportedGrant(g domain.GrantType) bool {
	switch g {
	case domain.GrantAuthorizationCode, domain.GrantRefreshToken, domain.GrantClientCredentials:
		return true
	}
	return false
}
