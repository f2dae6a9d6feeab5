package impl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/db/impl/queries"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

func (d *dbImpl) InsertClient(ctx context.Context, c domain.OAuthClient) error {
	uris, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return err
	}

	grants := make([]string, len(c.GrantTypes))
	for i, g := range c.GrantTypes {
		grants[i] = string(g)
	}

	created := c.Created
	if created.IsZero() {
		created = time.Now()
	}

	return d.HandleError(d.queries.CreateClient(ctx, queries.CreateClientParams{
		ID:           c.ID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		RedirectUris: string(uris),
		GrantTypes:   strings.Join(grants, " "),
		Scope:        c.Scope.String(),
		OwnerID:      nullInt(c.OwnerID),
		CreatedAt:    millis(created),
	}))
}

func (d *dbImpl) GetClient(ctx context.Context, id string) (domain.OAuthClient, error) {
	row, err := d.queries.GetClient(ctx, id)
	if err != nil {
		return domain.OAuthClient{}, d.HandleError(err)
	}
	return clientFromRow(row)
}

func (d *dbImpl) ListClientsByOwner(ctx context.Context, ownerID int64) ([]domain.OAuthClient, error) {
	rows, err := d.queries.ListClientsByOwner(ctx, ownerID)
	if err != nil {
		return nil, d.HandleError(err)
	}

	clients := make([]domain.OAuthClient, 0, len(rows))
	for _, row := range rows {
		c, err := clientFromRow(row)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func (d *dbImpl) DeactivateClient(ctx context.Context, id string, ownerID int64) error {
	return d.HandleError(expectOne(d.queries.DeactivateClient(ctx, id, ownerID)))
}

func (d *dbImpl) InsertCode(ctx context.Context, c domain.AuthorizationCode) error {
	return d.HandleError(d.queries.CreateCode(ctx, queries.OauthCode{
		Code:        c.Code,
		ClientID:    c.ClientID,
		UserID:      c.UserID,
		RedirectUri: c.RedirectURI,
		Scope:       c.Scope.String(),
		Nonce:       c.Nonce,
		ExpiresAt:   millis(c.Expires),
	}))
}

func (d *dbImpl) RedeemCode(ctx context.Context, code string, redeem db.Redeemer) error {
	return d.WithTx(ctx, func(tx *queries.Queries) error {
		row, err := tx.GetCode(ctx, code)
		if err != nil {
			return d.HandleError(err)
		}

		access, refresh, err := redeem(domain.AuthorizationCode{
			Code:        row.Code,
			ClientID:    row.ClientID,
			UserID:      row.UserID,
			RedirectURI: row.RedirectUri,
			Scope:       domain.ParseScope(row.Scope),
			Nonce:       row.Nonce,
			Expires:     fromMillis(row.ExpiresAt),
		})
		if err != nil {
			return err
		}

		if err = expectOne(tx.DeleteCode(ctx, code)); err != nil {
			return d.HandleError(err)
		}

		if refresh != nil {
			if err = tx.CreateRefreshToken(ctx, refreshToRow(*refresh)); err != nil {
				return d.HandleError(err)
			}
		}
		return d.HandleError(tx.CreateAccessToken(ctx, accessToRow(access)))
	})
}

func (d *dbImpl) RotateRefreshToken(ctx context.Context, hash string, rotate db.Rotator) (revoked []string, err error) {
	err = d.WithTx(ctx, func(tx *queries.Queries) error {
		row, err := tx.GetRefreshToken(ctx, hash)
		if err != nil {
			return d.HandleError(err)
		}

		access, refresh, err := rotate(refreshFromRow(row))
		if err != nil {
			return err
		}

		if err = expectOne(tx.DeleteRefreshToken(ctx, hash, row.ClientID)); err != nil {
			return d.HandleError(err)
		}

		revoked, err = tx.DeleteAccessTokensByRefresh(ctx, hash)
		if err != nil {
			return d.HandleError(err)
		}

		if err = tx.CreateRefreshToken(ctx, refreshToRow(refresh)); err != nil {
			return d.HandleError(err)
		}
		return d.HandleError(tx.CreateAccessToken(ctx, accessToRow(access)))
	})
	if err != nil {
		revoked = nil
	}
	return
}

func (d *dbImpl) InsertAccessToken(ctx context.Context, t domain.AccessToken) error {
	return d.HandleError(d.queries.CreateAccessToken(ctx, accessToRow(t)))
}

func (d *dbImpl) GetAccessToken(ctx context.Context, hash string) (domain.AccessToken, error) {
	row, err := d.queries.GetAccessToken(ctx, hash)
	if err != nil {
		return domain.AccessToken{}, d.HandleError(err)
	}

	return domain.AccessToken{
		Hash:        row.TokenHash,
		ClientID:    row.ClientID,
		UserID:      row.UserID.Int64,
		Scope:       domain.ParseScope(row.Scope),
		RefreshHash: row.RefreshHash.String,
		Expires:     fromMillis(row.ExpiresAt),
		Created:     fromMillis(row.CreatedAt),
	}, nil
}

func (d *dbImpl) DeleteAccessToken(ctx context.Context, hash string) error {
	return d.HandleError(expectOne(d.queries.DeleteAccessToken(ctx, hash)))
}

func (d *dbImpl) RevokeRefreshToken(ctx context.Context, hash, clientID string) (revoked []string, err error) {
	err = d.WithTx(ctx, func(tx *queries.Queries) error {
		if err := expectOne(tx.DeleteRefreshToken(ctx, hash, clientID)); err != nil {
			return d.HandleError(err)
		}

		hashes, err := tx.DeleteAccessTokensByRefresh(ctx, hash)
		if err != nil {
			return d.HandleError(err)
		}
		revoked = hashes
		return nil
	})
	return
}

func (d *dbImpl) DeleteExpiredTokens(ctx context.Context, now time.Time) (total int64, err error) {
	ms := millis(now)
	err = d.WithTx(ctx, func(tx *queries.Queries) error {
		for _, del := range []func(context.Context, int64) (int64, error){
			tx.DeleteExpiredCodes,
			tx.DeleteExpiredAccessTokens,
			tx.DeleteExpiredRefreshTokens,
		} {
			n, err := del(ctx, ms)
			if err != nil {
				return d.HandleError(err)
			}
			total += n
		}
		return nil
	})
	return
}

func (d *dbImpl) GetConsent(ctx context.Context, userID int64, clientID string) (domain.Consent, error) {
	row, err := d.queries.GetConsent(ctx, userID, clientID)
	if err != nil {
		return domain.Consent{}, d.HandleError(err)
	}

	return domain.Consent{
		UserID:   row.UserID,
		ClientID: row.ClientID,
		Scope:    domain.ParseScope(row.Scope),
		Created:  fromMillis(row.CreatedAt),
	}, nil
}

func (d *dbImpl) PutConsent(ctx context.Context, c domain.Consent) error {
	created := c.Created
	if created.IsZero() {
		created = time.Now()
	}

	return d.HandleError(d.queries.UpsertConsent(ctx, queries.OauthConsent{
		UserID:    c.UserID,
		ClientID:  c.ClientID,
		Scope:     c.Scope.String(),
		CreatedAt: millis(created),
	}))
}

func clientFromRow(row queries.OauthClient) (domain.OAuthClient, error) {
	var uris []string
	if err := json.Unmarshal([]byte(row.RedirectUris), &uris); err != nil {
		return domain.OAuthClient{}, fmt.Errorf("%w: malformed redirect uris of client %s", db.ErrInternal, row.ID)
	}

	fields := strings.Fields(row.GrantTypes)
	grants := make([]domain.GrantType, len(fields))
	for i, f := range fields {
		grants[i] = domain.GrantType(f)
	}

	return domain.OAuthClient{
		ID:           row.ID,
		SecretHash:   row.SecretHash,
		Name:         row.Name,
		RedirectURIs: uris,
		GrantTypes:   grants,
		Scope:        domain.ParseScope(row.Scope),
		OwnerID:      row.OwnerID.Int64,
		Active:       row.IsActive,
		Created:      fromMillis(row.CreatedAt),
	}, nil
}

func accessToRow(t domain.AccessToken) queries.OauthAccessToken {
	created := t.Created
	if created.IsZero() {
		created = time.Now()
	}

	return queries.OauthAccessToken{
		TokenHash:   t.Hash,
		ClientID:    t.ClientID,
		UserID:      nullInt(t.UserID),
		Scope:       t.Scope.String(),
		RefreshHash: sql.NullString{String: t.RefreshHash, Valid: t.RefreshHash != ""},
		ExpiresAt:   millis(t.Expires),
		CreatedAt:   millis(created),
	}
}

func refreshToRow(t domain.RefreshToken) queries.OauthRefreshToken {
	created := t.Created
	if created.IsZero() {
		created = time.Now()
	}

	return queries.OauthRefreshToken{
		TokenHash: t.Hash,
		ClientID:  t.ClientID,
		UserID:    nullInt(t.UserID),
		Scope:     t.Scope.String(),
		ExpiresAt: millis(t.Expires),
		CreatedAt: millis(created),
	}
}

func refreshFromRow(row queries.OauthRefreshToken) domain.RefreshToken {
	return domain.RefreshToken{
		Hash:     row.TokenHash,
		ClientID: row.ClientID,
		UserID:   row.UserID.Int64,
		Scope:    domain.ParseScope(row.Scope),
		Expires:  fromMillis(row.ExpiresAt),
		Created:  fromMillis(row.CreatedAt),
	}
}
