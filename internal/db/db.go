package db

import (
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal database error")
)

//go:generate mockgen -destination=../mocks/db.go -package=mock_db github.com/sidereusnuntius/fedhost/internal/db DB

// DB is the datastore. Every method is safe for concurrent use; multi-step invariants, such as code redemption
// and refresh token rotation, run inside a single transaction.
type DB interface {
	Users
	Subdomains
	OAuth
	Federation
	Social
	Sites
	RateLimits
}
