package domain

// Principal is the identity attached to an authenticated request, whatever the authentication mode.
type Principal struct {
	UserID   int64
	Username string
	Role     Role
	// ClientID is set when the request carries an OAuth access token.
	ClientID string
	Scope    Scope
}

// Anonymous is true for requests that carry no identity.
func (p Principal) Anonymous() bool {
	return p.UserID == 0 && p.ClientID == ""
}
