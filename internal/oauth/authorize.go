package oauth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

const codeBytes = 32

// AuthorizeRequest holds the parameters of an authorization request. It is also what is stashed in the session
// while the user logs in.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string
}

// Authorization is a validated AuthorizeRequest.
type Authorization struct {
	Request AuthorizeRequest
	Client  domain.OAuthClient
	Scope   domain.Scope
}

// Redirectable reports whether err may be sent back to the request's redirect uri. Errors about the client or the
// redirect uri itself are shown to the user instead.
func Redirectable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code != CodeInvalidClient
}

// Authorize validates an authorization request: the client must exist and be active, the redirect uri must be
// registered for it exactly, and every requested scope must be in the client's whitelist. An empty scope requests
// the client's whole whitelist.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	a := Authorization{Request: req}

	if req.ClientID == "" {
		return a, newError(CodeInvalidClient, "client_id is required")
	}
	c, err := s.store.GetClient(ctx, req.ClientID)
	if errors.Is(err, db.ErrNotFound) {
		return a, newError(CodeInvalidClient, "unknown client")
	} else if err != nil {
		return a, err
	}
	if !c.Active {
		return a, newError(CodeInvalidClient, "client is not active")
	}
	if !c.HasRedirectURI(req.RedirectURI) {
		return a, newError(CodeInvalidClient, "redirect_uri is not registered for this client")
	}
	a.Client = c

	if req.ResponseType != "code" {
		return a, newError(CodeUnsupportedResponseType, "only the code response type is supported")
	}
	if !c.AllowsGrant(domain.GrantAuthorizationCode) {
		return a, newError(CodeUnauthorizedClient, "client may not use the authorization code grant")
	}

	scope := domain.ParseScope(req.Scope)
	if len(scope) == 0 {
		scope = slices.Clone(c.Scope)
	}
	if !scope.SubsetOf(c.Scope) {
		return a, newError(CodeInvalidScope, "requested scope exceeds the client's scope")
	}
	a.Scope = scope
	return a, nil
}

// NeedsConsent reports whether the user must approve the authorization. System clients never need it, and neither
// do clients the user already approved for a superset of the scope.
func (s *Service) NeedsConsent(ctx context.Context, userID int64, a Authorization) (bool, error) {
	if a.Client.OwnerID == 0 {
		return false, nil
	}

	consent, err := s.store.GetConsent(ctx, userID, a.Client.ID)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	} else if err != nil {
		return false, err
	}
	return !a.Scope.SubsetOf(consent.Scope), nil
}

// GrantConsent records the user's approval, merged with any previous one.
func (s *Service) GrantConsent(ctx context.Context, userID int64, a Authorization) error {
	scope := a.Scope
	prev, err := s.store.GetConsent(ctx, userID, a.Client.ID)
	if err == nil {
		scope = domain.ParseScope(prev.Scope.String() + " " + a.Scope.String())
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	return s.store.PutConsent(ctx, domain.Consent{
		UserID:   userID,
		ClientID: a.Client.ID,
		Scope:    scope,
		Created:  s.now(),
	})
}

// IssueCode persists a single use authorization code bound to the client, the user, the exact redirect uri and the
// scope, and returns the code.
func (s *Service) IssueCode(ctx context.Context, userID int64, a Authorization) (string, error) {
	code, err := utils.RandomToken(codeBytes)
	if err != nil {
		return "", err
	}

	err = s.store.InsertCode(ctx, domain.AuthorizationCode{
		Code:        utils.HashToken(code),
		ClientID:    a.Client.ID,
		UserID:      userID,
		RedirectURI: a.Request.RedirectURI,
		Scope:       a.Scope,
		Nonce:       a.Request.Nonce,
		Expires:     s.now().Add(CodeTTL),
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ScopeDescriptions is shown on the consent page.
var ScopeDescriptions = map[string]string{
	domain.ScopeOpenID:  "Confirm your identity",
	domain.ScopeProfile: "Read your public profile",
	domain.ScopeEmail:   "Read your email address",
	domain.ScopeRead:    "Read your posts and followers",
	domain.ScopeWrite:   "Publish posts on your behalf",
	domain.ScopeFollow:  "Follow and unfollow accounts on your behalf",
}

func DescribeScope(scope domain.Scope) []string {
	d := make([]string, 0, len(scope))
	for _, t := range scope {
		if desc, ok := ScopeDescriptions[t]; ok {
			d = append(d, desc)
		} else {
			d = append(d, strings.ToUpper(t[:1])+t[1:])
		}
	}
	return d
}
