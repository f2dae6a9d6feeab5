package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

var (
	ErrInvalidInput    = errors.New("invalid")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

// SignUp is a registration request. Subdomain is optional; when set, a pending SubdomainRegistration is created
// along with the user.
type SignUp struct {
	Username  string
	Email     string
	Password  string
	Subdomain string
}

// Registration is the outcome of a successful sign up. VerificationToken is only set when a subdomain was
// requested, and is only ever known here.
type Registration struct {
	User              domain.User
	VerificationToken string
}

type Service interface {
	AccountService
	SocialService
}

type AccountService interface {
	// AuthenticateUser takes the user's identifier, which may be their username of email address, and password
	// and verifies if these credentials are correct. If authentication fails, authenticated is false and
	// err is nil; a non nil error indicates that an internal, unexpected error has occured.
	AuthenticateUser(ctx context.Context, user, password string) (a domain.Account, authenticated bool, err error)
	// CreateUser registers a new local user. Taken usernames, emails and subdomains yield ErrConflict.
	CreateUser(ctx context.Context, req SignUp) (Registration, error)
	// RequestSubdomain opens a pending registration of subdomain for the user and returns the verification token.
	RequestSubdomain(ctx context.Context, userID int64, subdomain string) (token string, err error)
	// VerifySubdomain consumes a verification token. Once verified, the subdomain becomes the user's site.
	VerifySubdomain(ctx context.Context, token string) (domain.SubdomainRegistration, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	// GetUserBySubdomain returns the active user whose site is served at subdomain.
	GetUserBySubdomain(ctx context.Context, subdomain string) (domain.User, error)
	UpdateProfile(ctx context.Context, id int64, displayName, summary string, settings domain.Settings) error
	// EnsureAdmin creates the configured admin account if no admin exists yet.
	EnsureAdmin(ctx context.Context) error
}

// SocialService holds the persistence hooks of the social layer. Each of them is idempotent on the id of what it
// creates, and each queues the federation deliveries the action implies.
type SocialService interface {
	CreatePost(ctx context.Context, p domain.Post) (post domain.Post, created bool, err error)
	ListPosts(ctx context.Context, userID int64, limit int) ([]domain.Post, error)
	Follow(ctx context.Context, userID int64, target *url.URL) error
	Like(ctx context.Context, userID int64, object *url.URL) error
	Repost(ctx context.Context, userID int64, object *url.URL) error
	// Notify publishes a notification for the user's site.
	Notify(ctx context.Context, userID int64, kind string, payload any) error
}
