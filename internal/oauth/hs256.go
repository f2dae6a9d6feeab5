package oauth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

var ErrJWTDisabled = errors.New("JWT_SECRET is not configured")

type apiClaims struct {
	jwt.RegisteredClaims
	Username string      `json:"preferred_username"`
	Role     domain.Role `json:"role"`
}

// IssueJWT signs a short lived HS256 token for the jwt route authentication mode.
func (s *Service) IssueJWT(u domain.User) (token string, expiresIn int64, err error) {
	if s.cfg.JWTSecret == "" {
		return "", 0, ErrJWTDisabled
	}

	now := s.now()
	claims := apiClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.OAuthIssuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiresIn)),
		},
		Username: u.Username,
		Role:     u.Role,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	return token, int64(s.cfg.JWTExpiresIn.Seconds()), err
}

// ParseJWT verifies a token issued by IssueJWT.
func (s *Service) ParseJWT(token string) (domain.Principal, error) {
	if s.cfg.JWTSecret == "" {
		return domain.Principal{}, ErrJWTDisabled
	}

	var claims apiClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.OAuthIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return domain.Principal{UserID: id, Username: claims.Username, Role: claims.Role}, nil
}
