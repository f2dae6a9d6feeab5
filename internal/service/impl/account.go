package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/utils"
	"github.com/sidereusnuntius/fedhost/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the user does not exist, so that a failed login takes the same time whether
// or not the account is there.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not a real password"), BcryptCost)

// AuthenticateUser confirms the user's identity and, if their credentials are correct, returns data to be put
// in the login session, such as the user's name and id. user is either the user's username or their email.
func (s *AppService) AuthenticateUser(ctx context.Context, user, password string) (a domain.Account, authenticated bool, err error) {
	user = strings.TrimSpace(user)

	var u domain.User
	if err = validate.Email(user); err == nil {
		u, err = s.DB.GetUserByEmail(ctx, strings.ToLower(user))
	} else if err = validate.Username(user); err == nil {
		u, err = s.DB.GetUserByUsername(ctx, user)
	} else {
		err = errors.New("invalid username or email")
	}

	if verr := validate.Password(password); verr != nil && err == nil {
		err = verr
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		if errors.Is(err, db.ErrInternal) {
			return a, false, err
		}
		return a, false, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}

	hash := dummyHash
	if err == nil {
		hash = []byte(u.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || errors.Is(err, db.ErrNotFound) || !u.Active {
		return a, false, nil
	}

	if err = s.DB.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		log.Warn().Err(err).Int64("user", u.ID).Msg("failed to record last login")
	}

	return domain.Account{UserID: u.ID, Username: u.Username, Role: u.Role}, true, nil
}

func (s *AppService) CreateUser(ctx context.Context, req service.SignUp) (service.Registration, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))

	err := validate.SignUpForm(username, req.Password, email, subdomain)
	if err != nil {
		return service.Registration{}, fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}

	if subdomain != "" {
		if err = s.subdomainAvailable(ctx, subdomain, 0); err != nil {
			return service.Registration{}, err
		}
	}

	u, err := s.populateUser(username, email, req.Password, subdomain, domain.RoleUser)
	if err != nil {
		return service.Registration{}, err
	}

	id, err := s.DB.InsertUser(ctx, u)
	if errors.Is(err, db.ErrConflict) {
		return service.Registration{}, fmt.Errorf("%w: username or email already registered", service.ErrConflict)
	} else if err != nil {
		return service.Registration{}, err
	}
	u.ID = id

	reg := service.Registration{User: u.User}
	if subdomain != "" {
		if reg.VerificationToken, err = s.openRegistration(ctx, id, subdomain); err != nil {
			return reg, err
		}
	}

	log.Info().Int64("id", id).Str("username", username).Msg("registered user")
	return reg, nil
}

func (s *AppService) populateUser(username, email, password, subdomain string, role domain.Role) (u domain.UserInternal, err error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return
	}

	pub, priv, err := utils.GenerateKeysPem(s.Config.RsaKeySize)
	if err != nil {
		return
	}

	now := s.now()
	u = domain.UserInternal{
		User: domain.User{
			Username:     username,
			Email:        email,
			PasswordHash: string(hash),
			Role:         role,
			FederationID: s.Config.UserSiteURL(subdomain, username).JoinPath("user", username),
			Active:       true,
			PublicKey:    pub,
			Created:      now,
			Updated:      now,
		},
		PrivateKey: priv,
	}
	return
}

func (s *AppService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u, err := s.DB.GetUserByID(ctx, id)
	return u, s.mapNotFound(err)
}

func (s *AppService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if err := validate.Username(username); err != nil {
		return domain.User{}, fmt.Errorf("%w: %s", service.ErrNotFound, err)
	}
	u, err := s.DB.GetUserByUsername(ctx, username)
	return u, s.mapNotFound(err)
}

func (s *AppService) GetUserBySubdomain(ctx context.Context, subdomain string) (domain.User, error) {
	u, err := s.DB.GetUserBySubdomain(ctx, strings.ToLower(subdomain))
	if err != nil {
		return u, s.mapNotFound(err)
	}
	if !u.Active {
		return domain.User{}, service.ErrNotFound
	}
	return u, nil
}

func (s *AppService) UpdateProfile(ctx context.Context, id int64, displayName, summary string, settings domain.Settings) error {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > 100 {
		return fmt.Errorf("%w: display name too long", service.ErrInvalidInput)
	}
	if len(summary) > 2000 {
		return fmt.Errorf("%w: summary too long", service.ErrInvalidInput)
	}
	return s.mapNotFound(s.DB.UpdateProfile(ctx, id, displayName, summary, settings))
}

// EnsureAdmin creates the configured admin account if no admin exists yet. An empty ADMIN_PASSWORD is only
// accepted in development, where a random one is generated and logged once.
func (s *AppService) EnsureAdmin(ctx context.Context) error {
	exists, err := s.DB.AdminExists(ctx)
	if err != nil || exists {
		return err
	}

	password := s.Config.AdminPassword
	if password == "" {
		if s.Config.Env != config.Development {
			return errors.New("ADMIN_PASSWORD must be set outside of development")
		}
		if password, err = utils.RandomToken(12); err != nil {
			return err
		}
		log.Warn().Str("username", s.Config.AdminUsername).Str("password", password).
			Msg("ADMIN_PASSWORD is empty, generated a development admin password")
	}

	email := s.Config.AdminEmail
	if email == "" {
		email = s.Config.AdminUsername + "@" + s.Config.BaseDomain
	}

	if err = validate.SignUpForm(s.Config.AdminUsername, password, email, ""); err != nil {
		return fmt.Errorf("%w: admin account: %s", service.ErrInvalidInput, err)
	}

	u, err := s.populateUser(s.Config.AdminUsername, email, password, "", domain.RoleAdmin)
	if err != nil {
		return err
	}

	id, err := s.DB.InsertUser(ctx, u)
	if err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}
	log.Info().Int64("id", id).Str("username", s.Config.AdminUsername).Msg("created admin account")
	return nil
}

func (s *AppService) mapNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", service.ErrNotFound, err)
	}
	return err
}
