package impl

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/db/impl/queries"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

func (d *dbImpl) InsertUser(ctx context.Context, u domain.UserInternal) (int64, error) {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return 0, err
	}

	created := u.Created
	if created.IsZero() {
		created = time.Now()
	}

	id, err := d.queries.CreateUser(ctx, queries.CreateUserParams{
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Subdomain:    nullString(u.Subdomain),
		FederationID: u.FederationID.String(),
		Settings:     string(settings),
		DisplayName:  u.DisplayName,
		Summary:      u.Summary,
		PublicKey:    u.PublicKey,
		PrivateKey:   u.PrivateKey,
		CreatedAt:    millis(created),
	})
	return id, d.HandleError(err)
}

func (d *dbImpl) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	row, err := d.queries.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, d.HandleError(err)
	}
	return userFromRow(row)
}

func (d *dbImpl) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row, err := d.queries.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, d.HandleError(err)
	}
	return userFromRow(row)
}

func (d *dbImpl) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row, err := d.queries.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, d.HandleError(err)
	}
	return userFromRow(row)
}

func (d *dbImpl) GetUserBySubdomain(ctx context.Context, subdomain string) (domain.User, error) {
	row, err := d.queries.GetUserBySubdomain(ctx, subdomain)
	if err != nil {
		return domain.User{}, d.HandleError(err)
	}
	return userFromRow(row)
}

func (d *dbImpl) GetUserByFederationID(ctx context.Context, iri *url.URL) (domain.User, error) {
	row, err := d.queries.GetUserByFederationID(ctx, iri.String())
	if err != nil {
		return domain.User{}, d.HandleError(err)
	}
	return userFromRow(row)
}

func (d *dbImpl) GetUserPrivateKeyByURI(ctx context.Context, iri *url.URL) (crypto.PrivateKey, error) {
	keyPem, err := d.queries.GetPrivateKeyByFederationID(ctx, iri.String())
	if err != nil {
		return nil, d.HandleError(err)
	}

	key, err := utils.ParsePrivateKeyPem(keyPem)
	if err != nil {
		return nil, fmt.Errorf("%w: private key of %s: %s", db.ErrInternal, iri, err)
	}
	return key, nil
}

func (d *dbImpl) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return d.HandleError(expectOne(d.queries.UpdateLastLogin(ctx, millis(at), id)))
}

func (d *dbImpl) SetUserActive(ctx context.Context, id int64, active bool) error {
	return d.HandleError(expectOne(d.queries.SetUserActive(ctx, active, millis(time.Now()), id)))
}

func (d *dbImpl) UpdateProfile(ctx context.Context, id int64, displayName, summary string, settings domain.Settings) error {
	s, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	return d.HandleError(expectOne(d.queries.UpdateProfile(ctx, queries.UpdateProfileParams{
		DisplayName: displayName,
		Summary:     summary,
		Settings:    string(s),
		UpdatedAt:   millis(time.Now()),
		ID:          id,
	})))
}

func (d *dbImpl) CountUsers(ctx context.Context) (int64, error) {
	n, err := d.queries.CountUsers(ctx)
	return n, d.HandleError(err)
}

func (d *dbImpl) AdminExists(ctx context.Context) (bool, error) {
	exists, err := d.queries.AdminExists(ctx)
	return exists, d.HandleError(err)
}

func (d *dbImpl) InsertSubdomainRegistration(ctx context.Context, r domain.SubdomainRegistration) error {
	created := r.Created
	if created.IsZero() {
		created = time.Now()
	}

	err := d.queries.CreateSubdomainRegistration(ctx, queries.CreateSubdomainRegistrationParams{
		UserID:            r.UserID,
		Subdomain:         r.Subdomain,
		VerificationToken: r.VerificationToken,
		CreatedAt:         millis(created),
	})
	return d.HandleError(err)
}

func (d *dbImpl) GetSubdomainRegistration(ctx context.Context, userID int64) (domain.SubdomainRegistration, error) {
	row, err := d.queries.GetSubdomainRegistrationByUser(ctx, userID)
	if err != nil {
		return domain.SubdomainRegistration{}, d.HandleError(err)
	}
	return registrationFromRow(row), nil
}

func (d *dbImpl) VerifySubdomain(ctx context.Context, token string, at time.Time) (r domain.SubdomainRegistration, err error) {
	err = d.WithTx(ctx, func(tx *queries.Queries) error {
		row, err := tx.GetPendingRegistrationByToken(ctx, token)
		if err != nil {
			return d.HandleError(err)
		}

		if err = expectOne(tx.MarkRegistrationVerified(ctx, millis(at), row.ID)); err != nil {
			return d.HandleError(err)
		}

		if err = expectOne(tx.SetUserSubdomain(ctx, row.Subdomain, millis(at), row.UserID)); err != nil {
			return d.HandleError(err)
		}

		r = registrationFromRow(row)
		r.Status = domain.RegistrationVerified
		r.Verified = at
		return nil
	})
	return
}

func (d *dbImpl) SubdomainTaken(ctx context.Context, subdomain string) (bool, error) {
	taken, err := d.queries.SubdomainTaken(ctx, subdomain)
	return taken, d.HandleError(err)
}

func userFromRow(row queries.User) (u domain.User, err error) {
	fid, err := url.Parse(row.FederationID)
	if err != nil {
		return u, fmt.Errorf("%w: malformed federation id %q", db.ErrInternal, row.FederationID)
	}

	var settings domain.Settings
	if row.Settings != "" {
		if err = json.Unmarshal([]byte(row.Settings), &settings); err != nil {
			return u, fmt.Errorf("%w: malformed settings of user %d", db.ErrInternal, row.ID)
		}
	}

	u = domain.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         domain.Role(row.Role),
		Subdomain:    row.Subdomain.String,
		FederationID: fid,
		Active:       row.IsActive,
		Settings:     settings,
		DisplayName:  row.DisplayName,
		Summary:      row.Summary,
		PublicKey:    row.PublicKey,
		Created:      fromMillis(row.CreatedAt),
		Updated:      fromMillis(row.UpdatedAt),
		LastLogin:    nullMillis(row.LastLogin),
	}
	return u, nil
}

func registrationFromRow(row queries.SubdomainRegistration) domain.SubdomainRegistration {
	return domain.SubdomainRegistration{
		ID:                row.ID,
		UserID:            row.UserID,
		Subdomain:         row.Subdomain,
		Status:            domain.RegistrationStatus(row.Status),
		VerificationToken: row.VerificationToken,
		Created:           fromMillis(row.CreatedAt),
		Verified:          nullMillis(row.VerifiedAt),
	}
}
