package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/utils"
	"github.com/sidereusnuntius/fedhost/internal/validate"
)

const verificationTokenBytes = 32

func (s *AppService) RequestSubdomain(ctx context.Context, userID int64, subdomain string) (string, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if err := validate.Subdomain(subdomain); err != nil {
		return "", fmt.Errorf("%w: %s", service.ErrInvalidInput, err)
	}

	u, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		return "", s.mapNotFound(err)
	}
	if u.Subdomain != "" {
		return "", fmt.Errorf("%w: user already has the subdomain %s", service.ErrConflict, u.Subdomain)
	}

	_, err = s.DB.GetSubdomainRegistration(ctx, userID)
	if err == nil {
		return "", fmt.Errorf("%w: a subdomain registration is already open", service.ErrConflict)
	} else if !errors.Is(err, db.ErrNotFound) {
		return "", err
	}

	if err = s.subdomainAvailable(ctx, subdomain, userID); err != nil {
		return "", err
	}
	return s.openRegistration(ctx, userID, subdomain)
}

// subdomainAvailable fails with ErrConflict if subdomain is claimed by a user, a registration, or is the username
// of someone other than self, whose default site label it is.
func (s *AppService) subdomainAvailable(ctx context.Context, subdomain string, self int64) error {
	taken, err := s.DB.SubdomainTaken(ctx, subdomain)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: subdomain %s is taken", service.ErrConflict, subdomain)
	}

	if validate.Username(subdomain) != nil {
		return nil
	}
	owner, err := s.DB.GetUserByUsername(ctx, subdomain)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != self:
		return fmt.Errorf("%w: subdomain %s is taken", service.ErrConflict, subdomain)
	}
	return nil
}

func (s *AppService) openRegistration(ctx context.Context, userID int64, subdomain string) (string, error) {
	token, err := utils.RandomToken(verificationTokenBytes)
	if err != nil {
		return "", err
	}

	err = s.DB.InsertSubdomainRegistration(ctx, domain.SubdomainRegistration{
		UserID:            userID,
		Subdomain:         subdomain,
		Status:            domain.RegistrationPending,
		VerificationToken: utils.HashToken(token),
		Created:           s.now(),
	})
	if errors.Is(err, db.ErrConflict) {
		return "", fmt.Errorf("%w: subdomain %s is taken", service.ErrConflict, subdomain)
	} else if err != nil {
		return "", err
	}

	log.Info().Int64("user", userID).Str("subdomain", subdomain).Msg("subdomain requested")
	return token, nil
}

func (s *AppService) VerifySubdomain(ctx context.Context, token string) (domain.SubdomainRegistration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.SubdomainRegistration{}, fmt.Errorf("%w: missing token", service.ErrInvalidInput)
	}

	r, err := s.DB.VerifySubdomain(ctx, utils.HashToken(token), s.now())
	if errors.Is(err, db.ErrNotFound) {
		return r, fmt.Errorf("%w: unknown or already used token", service.ErrNotFound)
	} else if err != nil {
		return r, err
	}
	r.VerificationToken = ""

	log.Info().Int64("user", r.UserID).Str("subdomain", r.Subdomain).Msg("subdomain verified")
	s.Events.Publish(events.Event{
		Type:    events.SubdomainVerified,
		Site:    r.Subdomain,
		Payload: r,
	})
	return r, nil
}
