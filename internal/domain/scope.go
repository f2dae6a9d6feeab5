package domain

import (
	"slices"
	"strings"
)

const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeFollow  = "follow"
)

// SupportedScopes is the closed set of scopes the server knows about, in canonical order.
var SupportedScopes = []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeRead, ScopeWrite, ScopeFollow}

// Scope is an ordered set of scope tokens without duplicates.
type Scope []string

// ParseScope splits a space-delimited scope string. Duplicates are dropped; order of first appearance is kept.
func ParseScope(s string) Scope {
	fields := strings.Fields(s)
	scope := make(Scope, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(scope, f) {
			scope = append(scope, f)
		}
	}
	return scope
}

func (s Scope) String() string {
	return strings.Join(s, " ")
}

func (s Scope) Has(token string) bool {
	return slices.Contains(s, token)
}

func (s Scope) HasAny(tokens ...string) bool {
	for _, t := range tokens {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every token of s is in other.
func (s Scope) SubsetOf(other Scope) bool {
	for _, t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// Unknown returns the tokens of s that are not in SupportedScopes.
func (s Scope) Unknown() []string {
	var unknown []string
	for _, t := range s {
		if !slices.Contains(SupportedScopes, t) {
			unknown = append(unknown, t)
		}
	}
	return unknown
}
