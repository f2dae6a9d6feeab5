package queries

import "database/sql"

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Subdomain    sql.NullString
	FederationID string
	IsActive     bool
	Settings     string
	DisplayName  string
	Summary      string
	PublicKey    string
	CreatedAt    int64
	UpdatedAt    int64
	LastLogin    sql.NullInt64
}

type SubdomainRegistration struct {
	ID                int64
	UserID            int64
	Subdomain         string
	Status            string
	VerificationToken string
	CreatedAt         int64
	VerifiedAt        sql.NullInt64
}

type OauthClient struct {
	ID           string
	SecretHash   string
	Name         string
	RedirectUris string
	GrantTypes   string
	Scope        string
	OwnerID      sql.NullInt64
	IsActive     bool
	CreatedAt    int64
}

type OauthCode struct {
	Code        string
	ClientID    string
	UserID      int64
	RedirectUri string
	Scope       string
	Nonce       string
	ExpiresAt   int64
}

type OauthAccessToken struct {
	TokenHash   string
	ClientID    string
	UserID      sql.NullInt64
	Scope       string
	RefreshHash sql.NullString
	ExpiresAt   int64
	CreatedAt   int64
}

type OauthRefreshToken struct {
	TokenHash string
	ClientID  string
	UserID    sql.NullInt64
	Scope     string
	ExpiresAt int64
	CreatedAt int64
}

type OauthConsent struct {
	UserID    int64
	ClientID  string
	Scope     string
	CreatedAt int64
}

type FederationQueue struct {
	ID          int64
	Actor       string
	Action      string
	Object      string
	Target      string
	Priority    int64
	Attempts    int64
	LastAttempt sql.NullInt64
	LastError   string
	Status      string
	CreatedAt   int64
}

type RemoteActor struct {
	Iri         string
	Inbox       string
	SharedInbox string
	PublicKey   string
	FetchedAt   int64
}

type Follower struct {
	UserID    int64
	Actor     string
	Inbox     string
	CreatedAt int64
}

type Post struct {
	ID           string
	UserID       int64
	Content      string
	Visibility   string
	FederationID string
	CreatedAt    int64
}

type SiteConfig struct {
	Subdomain       string
	CustomDomains   string
	Maintenance     bool
	HealthCheckPath string
	ProxyTarget     sql.NullString
	Env             string
	CreatedAt       int64
	UpdatedAt       int64
}

type Activity struct {
	ID        string
	UserID    int64
	Action    string
	Object    string
	CreatedAt int64
}
