package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/db/impl"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/initialization"
)

var (
	DB   db.DB
	keys *Keys
	ctx  = context.Background()
	cfg  = &config.Configuration{
		BaseDomain:   "example.io",
		Https:        true,
		OAuthIssuer:  "https://auth.example.io",
		JWTSecret:    "test-secret",
		JWTExpiresIn: time.Hour,
	}
)

const redirect = "https://app.example.io/cb"

func TestMain(m *testing.M) {
	d, err := initialization.OpenDB("file:oauthtest?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}
	if err = initialization.SetupDB(d, "../../migrations", "oauthtest"); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}
	DB = impl.New(d)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}
	if keys, err = NewKeys(priv); err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}

	os.Exit(m.Run())
}

var seq atomic.Int64

func newService() *Service {
	return New(cfg, DB, keys)
}

func makeUser(t *testing.T) domain.User {
	t.Helper()
	n := seq.Add(1)
	username := fmt.Sprintf("oauth%d", n)
	fid, _ := url.Parse("https://" + username + ".example.io/user/" + username)

	id, err := DB.InsertUser(ctx, domain.UserInternal{User: domain.User{
		Username:     username,
		Email:        username + "@example.io",
		PasswordHash: "x",
		Role:         domain.RoleUser,
		FederationID: fid,
		Active:       true,
		Settings:     domain.Settings{Picture: "https://example.io/p.png"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	u, err := DB.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return u
}

func makeClient(t *testing.T, s *Service, scope string, grants ...domain.GrantType) (domain.OAuthClient, string) {
	t.Helper()
	if len(grants) == 0 {
		grants = []domain.GrantType{domain.GrantAuthorizationCode, domain.GrantRefreshToken}
	}
	c := domain.OAuthClient{
		ID:           fmt.Sprintf("c%d", seq.Add(1)),
		Name:         "test client",
		RedirectURIs: []string{redirect},
		GrantTypes:   grants,
		Scope:        domain.ParseScope(scope),
	}
	if err := s.EnsureClient(ctx, c, "secret-"+c.ID); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	c, err := s.GetClient(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return c, "secret-" + c.ID
}

func issue(t *testing.T, s *Service, c domain.OAuthClient, u domain.User, scope string) string {
	t.Helper()
	a, err := s.Authorize(ctx, AuthorizeRequest{
		ResponseType: "code",
		ClientID:     c.ID,
		RedirectURI:  redirect,
		Scope:        scope,
		State:        "xyz",
		Nonce:        "n-0S6",
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	code, err := s.IssueCode(ctx, u.ID, a)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return code
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected oauth error %s, got %v", code, err)
	}
	if e.Code != code {
		t.Errorf("expected %s, got %s", code, e.Code)
	}
}

func TestAuthorizeValidation(t *testing.T) {
	s := newService()
	c, _ := makeClient(t, s, "read write")

	cases := []struct {
		name string
		req  AuthorizeRequest
		code string
	}{
		{"UnknownClient", AuthorizeRequest{ResponseType: "code", ClientID: "nope", RedirectURI: redirect}, CodeInvalidClient},
		{"RedirectOffByOne", AuthorizeRequest{ResponseType: "code", ClientID: c.ID, RedirectURI: redirect + "x"}, CodeInvalidClient},
		{"ScopeNotAllowed", AuthorizeRequest{ResponseType: "code", ClientID: c.ID, RedirectURI: redirect, Scope: "read follow"}, CodeInvalidScope},
		{"ResponseType", AuthorizeRequest{ResponseType: "token", ClientID: c.ID, RedirectURI: redirect}, CodeUnsupportedResponseType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Authorize(ctx, tc.req)
			expectCode(t, err, tc.code)
		})
	}

	a, err := s.Authorize(ctx, AuthorizeRequest{ResponseType: "code", ClientID: c.ID, RedirectURI: redirect})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if a.Scope.String() != "read write" {
		t.Errorf("an empty scope should request the client's scope, got %q", a.Scope)
	}
}

func TestCodeExchange(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read write")
	u := makeUser(t)
	code := issue(t, s, c, u, "read")

	res, err := s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.TokenType != "Bearer" || res.ExpiresIn != 86400 || res.Scope != "read" || res.RefreshToken == "" {
		t.Errorf("unexpected token response %+v", res)
	}

	p, err := s.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.UserID != u.ID || p.Username != u.Username || p.ClientID != c.ID {
		t.Errorf("unexpected principal %+v", p)
	}

	_, err = s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	expectCode(t, err, CodeInvalidGrant)
}

func TestExchangeChecks(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read")
	other, otherSecret := makeClient(t, s, "read")
	u := makeUser(t)
	code := issue(t, s, c, u, "read")

	_, err := s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: "wrong"})
	expectCode(t, err, CodeInvalidClient)

	_, err = s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: other.ID, ClientSecret: otherSecret})
	expectCode(t, err, CodeInvalidGrant)

	_, err = s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect + "/", ClientID: c.ID, ClientSecret: secret})
	expectCode(t, err, CodeInvalidGrant)

	if _, err = s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret}); err != nil {
		t.Errorf("failed checks must not consume the code: %s", err)
	}
}

func TestExpiredCodeIsNotConsumed(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read")
	u := makeUser(t)
	code := issue(t, s, c, u, "read")

	base := s.now
	s.now = func() time.Time { return base().Add(CodeTTL + time.Second) }
	_, err := s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	expectCode(t, err, CodeInvalidGrant)

	s.now = base
	if _, err = s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret}); err != nil {
		t.Errorf("the expired attempt must leave the code in place: %s", err)
	}
}

func TestConcurrentExchange(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read")
	u := makeUser(t)
	code := issue(t, s, c, u, "read")

	var ok, invalid atomic.Int32
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Exchange(ctx, ExchangeRequest{Code: code, RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
			if err == nil {
				ok.Add(1)
			} else if e, isOAuth := AsError(err); isOAuth && e.Code == CodeInvalidGrant {
				invalid.Add(1)
			} else {
				t.Errorf("unexpected error: %s", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || invalid.Load() != 1 {
		t.Errorf("expected one success and one invalid_grant, got %d and %d", ok.Load(), invalid.Load())
	}
}

func TestRefreshRotation(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read write")
	u := makeUser(t)
	first, err := s.Exchange(ctx, ExchangeRequest{Code: issue(t, s, c, u, "read write"), RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err = s.Validate(ctx, first.AccessToken); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	second, err := s.Refresh(ctx, RefreshRequest{RefreshToken: first.RefreshToken, Scope: "read", ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if second.Scope != "read" || second.RefreshToken == first.RefreshToken {
		t.Errorf("unexpected refresh response %+v", second)
	}

	if _, err = s.Validate(ctx, first.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("the rotated access token must be revoked, even if cached; got %v", err)
	}
	_, err = s.Refresh(ctx, RefreshRequest{RefreshToken: first.RefreshToken, ClientID: c.ID, ClientSecret: secret})
	expectCode(t, err, CodeInvalidGrant)

	if _, err = s.Refresh(ctx, RefreshRequest{RefreshToken: second.RefreshToken, ClientID: c.ID, ClientSecret: secret}); err != nil {
		t.Errorf("the new refresh token must be accepted: %s", err)
	}
}

func TestRefreshCannotWidenScope(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read write")
	u := makeUser(t)
	res, err := s.Exchange(ctx, ExchangeRequest{Code: issue(t, s, c, u, "read"), RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	_, err = s.Refresh(ctx, RefreshRequest{RefreshToken: res.RefreshToken, Scope: "read write", ClientID: c.ID, ClientSecret: secret})
	expectCode(t, err, CodeInvalidScope)

	if _, err = s.Refresh(ctx, RefreshRequest{RefreshToken: res.RefreshToken, ClientID: c.ID, ClientSecret: secret}); err != nil {
		t.Errorf("a rejected refresh must leave the token valid: %s", err)
	}
}

func TestConcurrentRefresh(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read")
	u := makeUser(t)
	res, err := s.Exchange(ctx, ExchangeRequest{Code: issue(t, s, c, u, "read"), RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Refresh(ctx, RefreshRequest{RefreshToken: res.RefreshToken, ClientID: c.ID, ClientSecret: secret}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one refresh to win, got %d", wins.Load())
	}
}

func TestClientCredentials(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read", domain.GrantClientCredentials)

	res, err := s.ClientCredentials(ctx, c.ID, secret, "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.RefreshToken != "" {
		t.Error("client credentials must not issue a refresh token")
	}

	p, err := s.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.UserID != 0 || p.ClientID != c.ID || !p.Scope.Has("read") {
		t.Errorf("unexpected principal %+v", p)
	}

	_, err = s.ClientCredentials(ctx, c.ID, secret, "write")
	expectCode(t, err, CodeInvalidScope)

	other, otherSecret := makeClient(t, s, "read")
	_, err = s.ClientCredentials(ctx, other.ID, otherSecret, "")
	expectCode(t, err, CodeUnauthorizedClient)
}

func TestValidateExpired(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read", domain.GrantClientCredentials)
	res, err := s.ClientCredentials(ctx, c.ID, secret, "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	base := s.now
	s.now = func() time.Time { return base().Add(AccessTokenTTL + time.Minute) }
	if _, err = s.Validate(ctx, res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	s.now = base
	if _, err = s.Validate(ctx, res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("an expired token should have been deleted, got %v", err)
	}
}

func TestDeactivatedClientTokens(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read", domain.GrantClientCredentials)
	res, err := s.ClientCredentials(ctx, c.ID, secret, "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err = s.Validate(ctx, res.AccessToken); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err = s.DeactivateClient(ctx, c.ID, 0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err = s.Validate(ctx, res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tokens of a deactivated client must be rejected, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "read")
	u := makeUser(t)
	res, err := s.Exchange(ctx, ExchangeRequest{Code: issue(t, s, c, u, "read"), RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err = s.Revoke(ctx, res.RefreshToken, c.ID); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err = s.Validate(ctx, res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoking the refresh token must revoke its access token, got %v", err)
	}
	if err = s.Revoke(ctx, "never-issued", c.ID); err != nil {
		t.Errorf("unknown tokens are not an error: %s", err)
	}
}

func TestIDTokenVerifiesAgainstJWKS(t *testing.T) {
	s := newService()
	c, secret := makeClient(t, s, "openid profile email")
	u := makeUser(t)

	res, err := s.Exchange(ctx, ExchangeRequest{Code: issue(t, s, c, u, "openid email"), RedirectURI: redirect, ClientID: c.ID, ClientSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.IDToken == "" {
		t.Fatal("expected an id token for the openid scope")
	}

	kf, err := keyfunc.NewJWKSetJSON(keys.JWKS())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(res.IDToken, claims, kf.Keyfunc,
		jwt.WithIssuer(cfg.OAuthIssuer),
		jwt.WithAudience(c.ID),
	)
	if err != nil || !token.Valid {
		t.Fatalf("id token did not verify: %v", err)
	}

	if token.Header["kid"] != keys.KID() {
		t.Errorf("expected kid %s, got %v", keys.KID(), token.Header["kid"])
	}
	if claims["sub"] != fmt.Sprint(u.ID) || claims["nonce"] != "n-0S6" || claims["email"] != u.Email {
		t.Errorf("unexpected claims %v", claims)
	}
	if _, ok := claims["picture"]; ok {
		t.Error("picture requires the profile scope")
	}
}

func TestUserInfoScopes(t *testing.T) {
	s := newService()
	u := makeUser(t)

	cases := []struct {
		name    string
		scope   string
		err     error
		present []string
		absent  []string
	}{
		{"Write", "write", ErrInsufficientScope, nil, nil},
		{"OpenID", "openid", nil, []string{"sub"}, []string{"picture", "email"}},
		{"Read", "read", nil, []string{"sub", "picture", "website", "profile", "updated_at"}, []string{"email"}},
		{"EmailWithoutOpenID", "profile email", nil, []string{"picture"}, []string{"email"}},
		{"Email", "openid email", nil, []string{"email", "email_verified"}, []string{"picture"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			claims, err := s.UserInfo(ctx, domain.Principal{UserID: u.ID, Scope: domain.ParseScope(c.scope)})
			if !errors.Is(err, c.err) {
				t.Fatalf("expected %v, got %v", c.err, err)
			}
			for _, k := range c.present {
				if _, ok := claims[k]; !ok {
					t.Errorf("expected claim %s", k)
				}
			}
			for _, k := range c.absent {
				if _, ok := claims[k]; ok {
					t.Errorf("unexpected claim %s", k)
				}
			}
		})
	}
}

func TestConsent(t *testing.T) {
	s := newService()
	u := makeUser(t)
	system, _ := makeClient(t, s, "read write")

	third := domain.OAuthClient{
		ID: fmt.Sprintf("c%d", seq.Add(1)), Name: "third party", RedirectURIs: []string{redirect},
		GrantTypes: []domain.GrantType{domain.GrantAuthorizationCode}, Scope: domain.ParseScope("read write"), OwnerID: u.ID,
	}
	if err := s.EnsureClient(ctx, third, "s"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	a := Authorization{Client: system, Scope: domain.ParseScope("read")}
	if need, err := s.NeedsConsent(ctx, u.ID, a); err != nil || need {
		t.Errorf("system clients need no consent, got %v %v", need, err)
	}

	a = Authorization{Client: third, Scope: domain.ParseScope("read")}
	if need, _ := s.NeedsConsent(ctx, u.ID, a); !need {
		t.Error("expected consent to be required")
	}
	if err := s.GrantConsent(ctx, u.ID, a); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if need, _ := s.NeedsConsent(ctx, u.ID, a); need {
		t.Error("an approved scope should not ask again")
	}

	a.Scope = domain.ParseScope("read write")
	if need, _ := s.NeedsConsent(ctx, u.ID, a); !need {
		t.Error("a wider scope needs consent again")
	}
}

func TestLoadOrCreateKeysIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwks.json")

	first, err := LoadOrCreateKeys(path, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	second, err := LoadOrCreateKeys(path, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if first.KID() != second.KID() {
		t.Errorf("kid changed across loads: %s != %s", first.KID(), second.KID())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err = keyfunc.NewJWKSetJSON(raw); err != nil {
		t.Errorf("persisted set is not a valid JWKS: %s", err)
	}
}

func TestHS256(t *testing.T) {
	s := newService()
	u := makeUser(t)

	token, expiresIn, err := s.IssueJWT(u)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if expiresIn != 3600 {
		t.Errorf("expected 3600, got %d", expiresIn)
	}

	p, err := s.ParseJWT(token)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.UserID != u.ID || p.Username != u.Username {
		t.Errorf("unexpected principal %+v", p)
	}

	if _, err = s.ParseJWT(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
