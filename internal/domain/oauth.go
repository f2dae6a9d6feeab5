package domain

import "time"

type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
)

type OAuthClient struct {
	ID string
	// SecretHash is the bcrypt hash of the client secret. The plain secret is only known at creation time.
	SecretHash   string
	Name         string
	RedirectURIs []string
	GrantTypes   []GrantType
	Scope        Scope
	// OwnerID is zero for system clients.
	OwnerID int64
	Active  bool
	Created time.Time
}

func (c OAuthClient) AllowsGrant(g GrantType) bool {
	for _, t := range c.GrantTypes {
		if t == g {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri is registered for the client. The comparison is exact.
func (c OAuthClient) HasRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      int64
	RedirectURI string
	Scope       Scope
	Nonce       string
	Expires     time.Time
}

// AccessToken is stored by the hash of its value. UserID is zero for client credentials grants.
type AccessToken struct {
	Hash        string
	ClientID    string
	UserID      int64
	Scope       Scope
	RefreshHash string
	Expires     time.Time
	Created     time.Time
}

type RefreshToken struct {
	Hash     string
	ClientID string
	UserID   int64
	Scope    Scope
	Expires  time.Time
	Created  time.Time
}

type Consent struct {
	UserID   int64
	ClientID string
	Scope    Scope
	Created  time.Time
}
