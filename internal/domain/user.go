package domain

import (
	"net/url"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Account is what the login session carries. It is registered with encoding/gob so scs can store it.
type Account struct {
	UserID   int64
	Username string
	Role     Role
}

func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	// Subdomain is empty until a SubdomainRegistration is verified, or when the user was created with one.
	Subdomain string
	// FederationID is fixed at registration time and never rewritten.
	FederationID *url.URL
	Active       bool
	Settings     Settings
	DisplayName  string
	Summary      string
	PublicKey    string
	Created      time.Time
	Updated      time.Time
	LastLogin    time.Time
}

// UserInternal adds the fields that must never leave the process.
type UserInternal struct {
	User
	PrivateKey string
}

// Settings is the free-form part of a user's profile.
type Settings struct {
	Picture string `json:"picture,omitempty"`
	Website string `json:"website,omitempty"`
	Locale  string `json:"locale,omitempty"`
}

type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationVerified RegistrationStatus = "verified"
)

type SubdomainRegistration struct {
	ID                int64
	UserID            int64
	Subdomain         string
	Status            RegistrationStatus
	VerificationToken string
	Created           time.Time
	Verified          time.Time
}
